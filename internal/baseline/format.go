package baseline

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// FormatTable writes a human-readable table of results to w. Each row's
// relative column is its ratio divided by the first row's.
func FormatTable(results []Result, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-28s  %10s  %10s  %8s  %8s  %10s\n", "Tokenizer", "Chars", "Tokens", "Ratio", "Rel", "MS")
	fmt.Fprintln(sb, strings.Repeat("-", 82))

	for _, r := range results {
		rel := 0.0
		if results[0].Ratio > 0 {
			rel = r.Ratio / results[0].Ratio
		}
		fmt.Fprintf(sb, "%-28s  %10d  %10d  %8.3f  %8.2f  %10.1f\n",
			r.Name, r.Chars, r.Tokens, r.Ratio, rel, float64(r.Duration.Microseconds())/1000)
	}

	fmt.Fprint(w, sb.String())
}

type jsonResult struct {
	Result
	DurationMS float64 `json:"duration_ms"`
}

// FormatJSON writes results as an indented JSON array.
func FormatJSON(results []Result, w io.Writer) error {
	out := make([]jsonResult, len(results))
	for i, r := range results {
		out[i] = jsonResult{Result: r, DurationMS: float64(r.Duration.Microseconds()) / 1000}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// FormatYAML writes results as a YAML sequence.
func FormatYAML(results []Result, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(results); err != nil {
		return err
	}
	return enc.Close()
}
