package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-hindi-bpe/internal/bpe"
	"github.com/example/go-hindi-bpe/internal/text"
)

func newEncodeCmd() *cobra.Command {
	var (
		model      modelFlags
		format     string
		preprocess bool
	)

	cmd := &cobra.Command{
		Use:   "encode [text...]",
		Short: "Encode text into token ids (reads stdin lines when no text is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if format != "text" && format != "json" {
				return fmt.Errorf("--format must be 'text' or 'json'")
			}
			m, err := model.load(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			pre := text.NewPreprocessor(text.PreprocessOptions{NFC: cfg.Train.NFC})
			out := cmd.OutOrStdout()
			encodeOne := func(s string) error {
				if preprocess {
					clean, err := pre.Preprocess(s)
					if err != nil {
						return err
					}
					s = clean
				}
				return writeEncoding(out, m.Encode(s), format)
			}

			if len(args) > 0 {
				return encodeOne(strings.Join(args, " "))
			}
			for line, err := range text.ReaderLines(cmd.InOrStdin()) {
				if err != nil {
					return err
				}
				if err := encodeOne(line); err != nil {
					return err
				}
			}
			return nil
		},
	}

	model.register(cmd)
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text|json")
	cmd.Flags().BoolVar(&preprocess, "preprocess", false, "Clean input with the training preprocessor first")

	return cmd
}

func writeEncoding(w io.Writer, enc bpe.Encoding, format string) error {
	if format == "json" {
		if enc.IDs == nil {
			enc = bpe.Encoding{IDs: []int{}, Symbols: []string{}, WordStarts: []int{}}
		}
		je := json.NewEncoder(w)
		je.SetEscapeHTML(false)
		return je.Encode(enc)
	}

	ids := make([]string, len(enc.IDs))
	for i, id := range enc.IDs {
		ids[i] = strconv.Itoa(id)
	}
	_, err := fmt.Fprintf(w, "tokens: %s\nids: %s\n", strings.Join(enc.Symbols, " "), strings.Join(ids, " "))
	return err
}

func newDecodeCmd() *cobra.Command {
	var (
		model       modelFlags
		skipSpecial bool
	)

	cmd := &cobra.Command{
		Use:   "decode [id...]",
		Short: "Decode token ids into space-joined text (reads stdin when no ids are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read ids: %w", err)
				}
				args = strings.Fields(string(data))
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			m, err := model.load(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			s, err := m.DecodeWithOptions(ids, bpe.DecodeOptions{SkipSpecial: skipSpecial})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), s)
			return err
		},
	}

	model.register(cmd)
	cmd.Flags().BoolVar(&skipSpecial, "skip-special", false, "Drop special tokens from the output")

	return cmd
}

// parseIDs accepts ids separated by whitespace or commas.
func parseIDs(fields []string) ([]int, error) {
	var ids []int
	for _, f := range fields {
		for _, part := range strings.Split(f, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not an integer", bpe.ErrInvalidTokenID, part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
