package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/example/go-hindi-bpe/internal/bpe"
	"github.com/example/go-hindi-bpe/internal/pretokenize"
)

// fakeBinder wraps a pflag.FlagSet to satisfy the flagBinder interface.
type fakeBinder struct {
	fs *pflag.FlagSet
}

func (f *fakeBinder) Flags() *pflag.FlagSet { return f.fs }

func newFlagBinder(t *testing.T, defaults Config, args ...string) *fakeBinder {
	t.Helper()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse(%v) error = %v", args, err)
	}
	return &fakeBinder{fs: fs}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Train.VocabSize != 4500 {
		t.Errorf("Train.VocabSize = %d; want 4500", cfg.Train.VocabSize)
	}
	if cfg.Train.VocabCeiling != 5000 {
		t.Errorf("Train.VocabCeiling = %d; want 5000", cfg.Train.VocabCeiling)
	}
	if cfg.Train.MinFrequency != 2 {
		t.Errorf("Train.MinFrequency = %d; want 2", cfg.Train.MinFrequency)
	}
	if want := []string{"<pad>", "<unk>", "<s>", "</s>"}; !reflect.DeepEqual(cfg.Train.SpecialTokens, want) {
		t.Errorf("Train.SpecialTokens = %v; want %v", cfg.Train.SpecialTokens, want)
	}
	if cfg.Train.PreTokenizer != "whitespace" {
		t.Errorf("Train.PreTokenizer = %q; want whitespace", cfg.Train.PreTokenizer)
	}
	if cfg.Train.CompressionThreshold != 3.2 {
		t.Errorf("Train.CompressionThreshold = %g; want 3.2", cfg.Train.CompressionThreshold)
	}
	if cfg.Paths.ModelPath != "output/hindi_tokenizer.json" {
		t.Errorf("Paths.ModelPath = %q", cfg.Paths.ModelPath)
	}
	if cfg.Paths.CorpusPath != "output/preprocessed_hindi.txt" {
		t.Errorf("Paths.CorpusPath = %q", cfg.Paths.CorpusPath)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("Server.ListenAddr = %q; want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Server.MaxTextBytes != 8192 {
		t.Errorf("Server.MaxTextBytes = %d; want 8192", cfg.Server.MaxTextBytes)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q; want info", cfg.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults = %v", err)
	}
}

func TestRegisterFlags(t *testing.T) {
	defaults := DefaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)

	checks := []struct {
		flag string
		want string
	}{
		{"vocab-size", "4500"},
		{"min-frequency", "2"},
		{"special-tokens", "[<pad>,<unk>,<s>,</s>]"},
		{"pretokenizer", "whitespace"},
		{"paths-model-path", "output/hindi_tokenizer.json"},
		{"server-listen-addr", ":8080"},
		{"log-level", "info"},
	}

	for _, c := range checks {
		f := fs.Lookup(c.flag)
		if f == nil {
			t.Errorf("flag %q not registered", c.flag)
			continue
		}
		if f.DefValue != c.want {
			t.Errorf("flag %q default = %q; want %q", c.flag, f.DefValue, c.want)
		}
	}
}

func TestRegisterFlags_EveryKeyHasAFlag(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, DefaultConfig())

	for _, fk := range flagKeys {
		if fs.Lookup(fk.flag) == nil {
			t.Errorf("key %s: flag --%s not registered", fk.key, fk.flag)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{Cmd: newFlagBinder(t, defaults), Defaults: defaults})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(cfg, defaults) {
		t.Errorf("Load() = %+v\nwant %+v", cfg, defaults)
	}
}

func TestLoad_FlagOverride(t *testing.T) {
	defaults := DefaultConfig()
	binder := newFlagBinder(t, defaults,
		"--vocab-size=1000",
		"--special-tokens=<unk>,<bos>",
		"--pretokenizer=punct",
		"--compression-threshold=2.5",
		"--nfc",
		"--log-level=debug",
	)

	cfg, err := Load(LoadOptions{Cmd: binder, Defaults: defaults})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Train.VocabSize != 1000 {
		t.Errorf("Train.VocabSize = %d; want 1000", cfg.Train.VocabSize)
	}
	if want := []string{"<unk>", "<bos>"}; !reflect.DeepEqual(cfg.Train.SpecialTokens, want) {
		t.Errorf("Train.SpecialTokens = %v; want %v", cfg.Train.SpecialTokens, want)
	}
	if cfg.Train.PreTokenizer != "punct" {
		t.Errorf("Train.PreTokenizer = %q; want punct", cfg.Train.PreTokenizer)
	}
	if cfg.Train.CompressionThreshold != 2.5 {
		t.Errorf("Train.CompressionThreshold = %g; want 2.5", cfg.Train.CompressionThreshold)
	}
	if !cfg.Train.NFC {
		t.Error("Train.NFC = false; want true")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q; want debug", cfg.LogLevel)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("HINDITOK_LOG_LEVEL", "warn")
	t.Setenv("HINDITOK_SERVER_LISTEN_ADDR", ":9999")
	t.Setenv("HINDITOK_TRAIN_VOCAB_SIZE", "300")

	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q; want warn", cfg.LogLevel)
	}
	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("Server.ListenAddr = %q; want :9999", cfg.Server.ListenAddr)
	}
	if cfg.Train.VocabSize != 300 {
		t.Errorf("Train.VocabSize = %d; want 300", cfg.Train.VocabSize)
	}
}

func TestLoad_ConfigFileBeatsFlagDefaults(t *testing.T) {
	cfgFile := writeConfig(t, "hinditok.yaml", `
log_level: error
train:
  vocab_size: 2000
  min_frequency: 3
paths:
  model_path: out/model.db
server:
  listen_addr: ":7777"
`)

	defaults := DefaultConfig()
	cfg, err := Load(LoadOptions{
		Cmd:        newFlagBinder(t, defaults),
		ConfigFile: cfgFile,
		Defaults:   defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q; want error", cfg.LogLevel)
	}
	if cfg.Train.VocabSize != 2000 {
		t.Errorf("Train.VocabSize = %d; want 2000", cfg.Train.VocabSize)
	}
	if cfg.Train.MinFrequency != 3 {
		t.Errorf("Train.MinFrequency = %d; want 3", cfg.Train.MinFrequency)
	}
	if cfg.Paths.ModelPath != "out/model.db" {
		t.Errorf("Paths.ModelPath = %q; want out/model.db", cfg.Paths.ModelPath)
	}
	if cfg.Server.ListenAddr != ":7777" {
		t.Errorf("Server.ListenAddr = %q; want :7777", cfg.Server.ListenAddr)
	}
	// Untouched keys keep their defaults.
	if cfg.Train.VocabCeiling != defaults.Train.VocabCeiling {
		t.Errorf("Train.VocabCeiling = %d; want %d", cfg.Train.VocabCeiling, defaults.Train.VocabCeiling)
	}
}

func TestLoad_ExplicitFlagBeatsConfigFile(t *testing.T) {
	cfgFile := writeConfig(t, "hinditok.yaml", "train:\n  vocab_size: 2000\n")

	defaults := DefaultConfig()
	cfg, err := Load(LoadOptions{
		Cmd:        newFlagBinder(t, defaults, "--vocab-size=800"),
		ConfigFile: cfgFile,
		Defaults:   defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Train.VocabSize != 800 {
		t.Errorf("Train.VocabSize = %d; want 800", cfg.Train.VocabSize)
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	cfgFile := writeConfig(t, "bad.yaml", ":\t:bad yaml:::")

	_, err := Load(LoadOptions{ConfigFile: cfgFile, Defaults: DefaultConfig()})
	if err == nil {
		t.Error("Load() = nil; want error for invalid config file")
	}
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	_, err := Load(LoadOptions{
		ConfigFile: "/nonexistent/path/hinditok.yaml",
		Defaults:   DefaultConfig(),
	})
	if err == nil {
		t.Error("Load() = nil; want error for missing explicit config file")
	}
}

func TestTrainOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Train.VocabSize = 1200
	cfg.Train.PreTokenizer = "none"
	cfg.Train.LimitAlphabet = 80

	opts, err := cfg.TrainOptions()
	if err != nil {
		t.Fatalf("TrainOptions() error = %v", err)
	}
	if opts.VocabSize != 1200 || opts.LimitAlphabet != 80 {
		t.Errorf("opts = %+v", opts)
	}
	if opts.PreTokenizer != pretokenize.ModeNone {
		t.Errorf("PreTokenizer = %q; want none", opts.PreTokenizer)
	}
	if opts.UnkToken != bpe.DefaultUnkToken {
		t.Errorf("UnkToken = %q; want %q", opts.UnkToken, bpe.DefaultUnkToken)
	}

	// The returned slice is a copy.
	opts.SpecialTokens[0] = "changed"
	if cfg.Train.SpecialTokens[0] != "<pad>" {
		t.Error("TrainOptions aliased the config special tokens")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantN   int
		ceiling bool
	}{
		{"defaults", func(*Config) {}, 0, false},
		{"vocab at ceiling", func(c *Config) { c.Train.VocabSize = 5000 }, 1, true},
		{"zero ceiling", func(c *Config) {
			c.Train.VocabCeiling = 0
			c.Train.VocabSize = 6000
		}, 1, false},
		{"negative ceiling", func(c *Config) { c.Train.VocabCeiling = -1 }, 1, false},
		{"bad pretokenizer", func(c *Config) { c.Train.PreTokenizer = "bytes" }, 1, false},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, 1, false},
		{"zero workers", func(c *Config) { c.Train.Workers = 0 }, 1, false},
		{"several", func(c *Config) {
			c.Train.MinFrequency = 0
			c.Server.MaxTextBytes = 0
			c.Server.RequestTimeout = 0
		}, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if got := len(multierr.Errors(err)); got != tt.wantN {
				t.Fatalf("Validate() reported %d problems (%v); want %d", got, err, tt.wantN)
			}
			if tt.wantN == 0 {
				return
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v; want ErrInvalidConfig", err)
			}
			if tt.ceiling && !errors.Is(err, bpe.ErrVocabularyCeilingExceeded) {
				t.Errorf("Validate() = %v; want ErrVocabularyCeilingExceeded", err)
			}
		})
	}
}
