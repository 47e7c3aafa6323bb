package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/example/go-hindi-bpe/internal/bpe"
	"github.com/example/go-hindi-bpe/internal/store"
)

type inspectReport struct {
	VocabSize    int           `json:"vocab_size" yaml:"vocab_size"`
	Specials     []string      `json:"specials" yaml:"specials"`
	UnkToken     string        `json:"unk_token" yaml:"unk_token"`
	PreTokenizer string        `json:"pre_tokenizer" yaml:"pre_tokenizer"`
	Merges       int           `json:"merges" yaml:"merges"`
	TopMerges    []inspectRule `json:"top_merges" yaml:"top_merges"`
	Longest      []string      `json:"longest_symbols" yaml:"longest_symbols"`
}

type inspectRule struct {
	Rank   int    `json:"rank" yaml:"rank"`
	Left   string `json:"left" yaml:"left"`
	Right  string `json:"right" yaml:"right"`
	Merged string `json:"merged" yaml:"merged"`
}

func newInspectCmd() *cobra.Command {
	var (
		model  modelFlags
		top    int
		format string
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show vocabulary size, special tokens and the first merges of a model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if top < 0 {
				return fmt.Errorf("--top must be >= 0")
			}
			m, err := model.load(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			r := buildInspectReport(m, top)
			out := cmd.OutOrStdout()
			switch format {
			case "text":
				writeInspectText(out, r)
				return nil
			case "json":
				enc := json.NewEncoder(out)
				enc.SetEscapeHTML(false)
				enc.SetIndent("", "  ")
				return enc.Encode(r)
			case "yaml":
				return yaml.NewEncoder(out).Encode(r)
			default:
				return fmt.Errorf("--format must be 'text', 'json' or 'yaml'")
			}
		},
	}

	model.register(cmd)
	cmd.Flags().IntVar(&top, "top", 10, "Number of merges and longest symbols to list")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text|json|yaml")

	return cmd
}

func buildInspectReport(m *bpe.Model, top int) inspectReport {
	merges := m.Merges()
	r := inspectReport{
		VocabSize:    m.VocabSize(),
		Specials:     m.Vocabulary().Specials(),
		UnkToken:     m.UnkToken(),
		PreTokenizer: string(m.PreTokenizer()),
		Merges:       len(merges),
		TopMerges:    []inspectRule{},
		Longest:      []string{},
	}
	for _, rule := range merges[:min(top, len(merges))] {
		r.TopMerges = append(r.TopMerges, inspectRule{
			Rank: rule.Rank, Left: rule.Left, Right: rule.Right, Merged: rule.Merged(),
		})
	}

	byLength := make([]string, len(merges))
	for i, rule := range merges {
		byLength[i] = rule.Merged()
	}
	slices.SortStableFunc(byLength, func(a, b string) int {
		return utf8.RuneCountInString(b) - utf8.RuneCountInString(a)
	})
	r.Longest = append(r.Longest, byLength[:min(top, len(byLength))]...)
	return r
}

func writeInspectText(w io.Writer, r inspectReport) {
	fmt.Fprintf(w, "vocab size:    %d\n", r.VocabSize)
	fmt.Fprintf(w, "merges:        %d\n", r.Merges)
	fmt.Fprintf(w, "specials:      %s\n", strings.Join(r.Specials, " "))
	fmt.Fprintf(w, "unk token:     %s\n", r.UnkToken)
	fmt.Fprintf(w, "pre-tokenizer: %s\n", r.PreTokenizer)
	if len(r.TopMerges) > 0 {
		fmt.Fprintln(w, "first merges:")
		for _, rule := range r.TopMerges {
			fmt.Fprintf(w, "  %5d  %s + %s -> %s\n", rule.Rank, rule.Left, rule.Right, rule.Merged)
		}
	}
	if len(r.Longest) > 0 {
		fmt.Fprintf(w, "longest:       %s\n", strings.Join(r.Longest, " "))
	}
}

func newConvertCmd() *cobra.Command {
	var (
		model  modelFlags
		prefix string
	)

	cmd := &cobra.Command{
		Use:   "convert <out>",
		Short: "Rewrite a model as tokenizer JSON, SQLite, or a vocab/merges pair",
		Long: "Rewrite a model in the format chosen by the extension of <out> (.json, .db, .sqlite).\n" +
			"With --prefix, <out> is a directory that receives <prefix>-vocab.json and <prefix>-merges.txt.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			m, err := model.load(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fs := afero.NewOsFs()
			if prefix != "" {
				vocabPath, mergesPath, err := store.ExportVocabMerges(fs, args[0], prefix, m)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "wrote %s and %s\n", vocabPath, mergesPath)
				return err
			}

			if err := store.Save(cmd.Context(), fs, args[0], m); err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "wrote %s\n", args[0])
			return err
		},
	}

	model.register(cmd)
	cmd.Flags().StringVar(&prefix, "prefix", "", "Export a vocab.json/merges.txt pair with this file prefix")

	return cmd
}
