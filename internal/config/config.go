package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/example/go-hindi-bpe/internal/bpe"
	"github.com/example/go-hindi-bpe/internal/pretokenize"
)

// ErrInvalidConfig wraps every problem reported by Validate.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Train    TrainConfig   `mapstructure:"train"`
	Paths    PathsConfig   `mapstructure:"paths"`
	Server   ServerConfig  `mapstructure:"server"`
	Dataset  DatasetConfig `mapstructure:"dataset"`
	LogLevel string        `mapstructure:"log_level"`
}

type TrainConfig struct {
	VocabSize            int      `mapstructure:"vocab_size"`
	VocabCeiling         int      `mapstructure:"vocab_ceiling"`
	MinFrequency         int      `mapstructure:"min_frequency"`
	SpecialTokens        []string `mapstructure:"special_tokens"`
	LimitAlphabet        int      `mapstructure:"limit_alphabet"`
	PreTokenizer         string   `mapstructure:"pretokenizer"`
	Workers              int      `mapstructure:"workers"`
	CompressionThreshold float64  `mapstructure:"compression_threshold"`
	NFC                  bool     `mapstructure:"nfc"`
}

type PathsConfig struct {
	CorpusPath string `mapstructure:"corpus_path"`
	RawPath    string `mapstructure:"raw_path"`
	ModelPath  string `mapstructure:"model_path"`
	OutputDir  string `mapstructure:"output_dir"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	Workers         int    `mapstructure:"workers"`
	MaxTextBytes    int    `mapstructure:"max_text_bytes"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

type DatasetConfig struct {
	URL    string `mapstructure:"url"`
	SHA256 string `mapstructure:"sha256"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Train: TrainConfig{
			VocabSize:            bpe.DefaultVocabSize,
			VocabCeiling:         bpe.DefaultVocabCeiling,
			MinFrequency:         bpe.DefaultMinFrequency,
			SpecialTokens:        bpe.DefaultSpecialTokens(),
			LimitAlphabet:        0,
			PreTokenizer:         string(pretokenize.ModeWhitespace),
			Workers:              4,
			CompressionThreshold: bpe.DefaultCompressionThreshold,
			NFC:                  false,
		},
		Paths: PathsConfig{
			CorpusPath: "output/preprocessed_hindi.txt",
			RawPath:    "raw_hindi_dataset.txt",
			ModelPath:  "output/hindi_tokenizer.json",
			OutputDir:  "output",
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         4,
			MaxTextBytes:    8192,
			RequestTimeout:  10,
			ShutdownTimeout: 10,
		},
		LogLevel: "info",
	}
}

// flagKeys maps each config key to its command-line flag.
var flagKeys = []struct{ key, flag string }{
	{"train.vocab_size", "vocab-size"},
	{"train.vocab_ceiling", "vocab-ceiling"},
	{"train.min_frequency", "min-frequency"},
	{"train.special_tokens", "special-tokens"},
	{"train.limit_alphabet", "limit-alphabet"},
	{"train.pretokenizer", "pretokenizer"},
	{"train.workers", "workers"},
	{"train.compression_threshold", "compression-threshold"},
	{"train.nfc", "nfc"},
	{"paths.corpus_path", "paths-corpus-path"},
	{"paths.raw_path", "paths-raw-path"},
	{"paths.model_path", "paths-model-path"},
	{"paths.output_dir", "paths-output-dir"},
	{"server.listen_addr", "server-listen-addr"},
	{"server.workers", "server-workers"},
	{"server.max_text_bytes", "server-max-text-bytes"},
	{"server.request_timeout", "server-request-timeout"},
	{"server.shutdown_timeout", "server-shutdown-timeout"},
	{"dataset.url", "dataset-url"},
	{"dataset.sha256", "dataset-sha256"},
	{"log_level", "log-level"},
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.Int("vocab-size", defaults.Train.VocabSize, "Target vocabulary size (must be below --vocab-ceiling)")
	fs.Int("vocab-ceiling", defaults.Train.VocabCeiling, "Hard vocabulary ceiling")
	fs.Int("min-frequency", defaults.Train.MinFrequency, "Minimum pair frequency for a merge")
	fs.StringSlice("special-tokens", defaults.Train.SpecialTokens, "Ordered special tokens; they take the lowest ids")
	fs.Int("limit-alphabet", defaults.Train.LimitAlphabet, "Keep at most N base characters (0 = no limit)")
	fs.String("pretokenizer", defaults.Train.PreTokenizer, "Word splitting: whitespace|punct|none")
	fs.Int("workers", defaults.Train.Workers, "Goroutines for the initial pair count")
	fs.Float64("compression-threshold", defaults.Train.CompressionThreshold, "Advisory characters-per-token threshold")
	fs.Bool("nfc", defaults.Train.NFC, "Apply Unicode NFC before character filtering")
	fs.String("paths-corpus-path", defaults.Paths.CorpusPath, "Preprocessed training corpus")
	fs.String("paths-raw-path", defaults.Paths.RawPath, "Raw dataset text")
	fs.String("paths-model-path", defaults.Paths.ModelPath, "Model file (.json, .db or .sqlite)")
	fs.String("paths-output-dir", defaults.Paths.OutputDir, "Directory for training artifacts")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-workers", defaults.Server.Workers, "Concurrent encode/decode requests (0 = unlimited)")
	fs.Int("server-max-text-bytes", defaults.Server.MaxTextBytes, "Maximum request text size in bytes")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request timeout in seconds")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown drain period in seconds")
	fs.String("dataset-url", defaults.Dataset.URL, "Raw dataset download URL")
	fs.String("dataset-sha256", defaults.Dataset.SHA256, "Expected SHA-256 of the raw dataset")
	fs.String("log-level", defaults.LogLevel, "Log level: debug|info|warn|error")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("HINDITOK")
	replacer := strings.NewReplacer("-", "_", ".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("hinditok")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

// bindFlags binds every registered flag to its nested key. Flags left at
// their default lose to the environment and the config file.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, fk := range flagKeys {
		f := fs.Lookup(fk.flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(fk.key, f); err != nil {
			return fmt.Errorf("bind flag --%s: %w", fk.flag, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("train.vocab_size", c.Train.VocabSize)
	v.SetDefault("train.vocab_ceiling", c.Train.VocabCeiling)
	v.SetDefault("train.min_frequency", c.Train.MinFrequency)
	v.SetDefault("train.special_tokens", c.Train.SpecialTokens)
	v.SetDefault("train.limit_alphabet", c.Train.LimitAlphabet)
	v.SetDefault("train.pretokenizer", c.Train.PreTokenizer)
	v.SetDefault("train.workers", c.Train.Workers)
	v.SetDefault("train.compression_threshold", c.Train.CompressionThreshold)
	v.SetDefault("train.nfc", c.Train.NFC)
	v.SetDefault("paths.corpus_path", c.Paths.CorpusPath)
	v.SetDefault("paths.raw_path", c.Paths.RawPath)
	v.SetDefault("paths.model_path", c.Paths.ModelPath)
	v.SetDefault("paths.output_dir", c.Paths.OutputDir)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("dataset.url", c.Dataset.URL)
	v.SetDefault("dataset.sha256", c.Dataset.SHA256)
	v.SetDefault("log_level", c.LogLevel)
}

// TrainOptions converts the train section into trainer options.
func (c Config) TrainOptions() (bpe.TrainOptions, error) {
	mode, err := pretokenize.ParseMode(c.Train.PreTokenizer)
	if err != nil {
		return bpe.TrainOptions{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	opts := bpe.DefaultTrainOptions()
	opts.VocabSize = c.Train.VocabSize
	opts.VocabCeiling = c.Train.VocabCeiling
	opts.MinFrequency = c.Train.MinFrequency
	opts.SpecialTokens = append([]string(nil), c.Train.SpecialTokens...)
	opts.LimitAlphabet = c.Train.LimitAlphabet
	opts.PreTokenizer = mode
	opts.Workers = c.Train.Workers
	return opts, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var err error
	add := func(format string, args ...any) {
		err = multierr.Append(err, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if opts, convErr := c.TrainOptions(); convErr != nil {
		err = multierr.Append(err, convErr)
	} else if trainErr := opts.Validate(); trainErr != nil {
		for _, e := range multierr.Errors(trainErr) {
			err = multierr.Append(err, fmt.Errorf("%w: train: %w", ErrInvalidConfig, e))
		}
	}
	if c.Train.Workers < 1 {
		add("train.workers must be >= 1, got %d", c.Train.Workers)
	}
	if c.Train.CompressionThreshold <= 0 {
		add("train.compression_threshold must be > 0, got %g", c.Train.CompressionThreshold)
	}
	if c.Server.Workers < 0 {
		add("server.workers must be >= 0, got %d", c.Server.Workers)
	}
	if c.Server.MaxTextBytes < 1 {
		add("server.max_text_bytes must be >= 1, got %d", c.Server.MaxTextBytes)
	}
	if c.Server.RequestTimeout < 1 {
		add("server.request_timeout must be >= 1, got %d", c.Server.RequestTimeout)
	}
	if c.Server.ShutdownTimeout < 0 {
		add("server.shutdown_timeout must be >= 0, got %d", c.Server.ShutdownTimeout)
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		add("log_level %q (want debug|info|warn|error)", c.LogLevel)
	}

	return err
}
