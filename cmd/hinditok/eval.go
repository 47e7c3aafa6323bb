package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/example/go-hindi-bpe/internal/baseline"
	"github.com/example/go-hindi-bpe/internal/bpe"
	"github.com/example/go-hindi-bpe/internal/text"
)

func printCompression(w io.Writer, c bpe.Compression) {
	fmt.Fprintf(w, "Compression Ratio: %.2f\n", c.Ratio)
	if c.Passed {
		fmt.Fprintln(w, "Success: Compression ratio meets the requirement!")
		return
	}
	fmt.Fprintf(w, "Warning: Compression ratio is below the required threshold of %.1f!\n", c.Threshold)
}

func newEvalCmd() *cobra.Command {
	var (
		model      modelFlags
		corpusPath string
		format     string
		strict     bool
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Measure the compression ratio (characters per token) of a model on a corpus",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if corpusPath == "" {
				corpusPath = cfg.Paths.CorpusPath
			}
			m, err := model.load(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			corpus := &text.FileCorpus{Fs: afero.NewOsFs(), Path: corpusPath}
			c, err := bpe.CompressionRatio(m, corpus, cfg.Train.CompressionThreshold)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(c); err != nil {
					return err
				}
			case "yaml":
				if err := yaml.NewEncoder(out).Encode(c); err != nil {
					return err
				}
			case "text":
				fmt.Fprintf(out, "%d characters / %d tokens\n", c.Chars, c.Tokens)
				printCompression(out, c)
			default:
				return fmt.Errorf("--format must be 'text', 'json' or 'yaml'")
			}

			if strict {
				return c.Err()
			}
			return nil
		},
	}

	model.register(cmd)
	cmd.Flags().StringVar(&corpusPath, "corpus", "", "Corpus file (defaults to paths.corpus_path)")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text|json|yaml")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when the ratio misses train.compression_threshold")

	return cmd
}

func newCompareCmd() *cobra.Command {
	var (
		model         modelFlags
		corpusPath    string
		encodings     []string
		sentencePiece string
		format        string
	)

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare compression against tiktoken and SentencePiece baselines",
		Long: `Compare the model's compression ratio with other tokenizers on a corpus.

With no flags only the model is measured. Baselines are opt-in:
--tiktoken cl100k_base downloads the encoding's ranks file on first use
(cached under TIKTOKEN_CACHE_DIR when set), and --sentencepiece reads a
local .model file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if format != "table" && format != "json" && format != "yaml" {
				return fmt.Errorf("--format must be 'table', 'json' or 'yaml'")
			}
			if corpusPath == "" {
				corpusPath = cfg.Paths.CorpusPath
			}
			m, err := model.load(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			toks := []baseline.Tokenizer{baseline.Model{Model: m}}
			for _, name := range encodings {
				tt, err := baseline.NewTikToken(name)
				if err != nil {
					return err
				}
				toks = append(toks, tt)
			}
			if sentencePiece != "" {
				sp, err := baseline.NewSentencePiece(sentencePiece)
				if err != nil {
					return err
				}
				toks = append(toks, sp)
			}

			corpus := &text.FileCorpus{Fs: afero.NewOsFs(), Path: corpusPath}
			results, err := baseline.Compare(corpus, toks...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				return baseline.FormatJSON(results, out)
			case "yaml":
				return baseline.FormatYAML(results, out)
			default:
				baseline.FormatTable(results, out)
				return nil
			}
		},
	}

	model.register(cmd)
	cmd.Flags().StringVar(&corpusPath, "corpus", "", "Corpus file (defaults to paths.corpus_path)")
	cmd.Flags().StringSliceVar(&encodings, "tiktoken", nil, "tiktoken encodings to compare, e.g. "+baseline.DefaultTikTokenEncoding+" (fetched over the network on first use)")
	cmd.Flags().StringVar(&sentencePiece, "sentencepiece", "", "SentencePiece .model file to compare")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json|yaml")

	return cmd
}
