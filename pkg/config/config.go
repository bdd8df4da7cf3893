// Package config loads taskbot settings from config.yaml and TASKBOT_* environment
// variables, and manages the encrypted secrets file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/estimate"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/logx"
)

// File and environment conventions.
const (
	ConfigFileName = "config.yaml"
	EnvPrefix      = "TASKBOT"
	DefaultDataDir = ".taskbot"
)

// History backends.
const (
	HistorySQLite = "sqlite"
	HistoryFile   = "file"
)

// Secret names looked up in the secrets file, then the environment.
const (
	SecretSlackBotToken = "SLACK_BOT_TOKEN"
	SecretSlackAppToken = "SLACK_APP_TOKEN"
	SecretAnthropicKey  = "ANTHROPIC_API_KEY"
	SecretOpenAIKey     = "OPENAI_API_KEY"
	SecretGoogleKey     = "GOOGLE_GENAI_API_KEY"
)

// Config is the full runtime configuration.
type Config struct {
	DataDir   string          `yaml:"data_dir" mapstructure:"data_dir"`
	Slack     SlackConfig     `yaml:"slack" mapstructure:"slack"`
	Models    ModelsConfig    `yaml:"models" mapstructure:"models"`
	Pipelines PipelinesConfig `yaml:"pipelines" mapstructure:"pipelines"`
	Tokens    TokensConfig    `yaml:"tokens" mapstructure:"tokens"`
	Sheets    SheetsConfig    `yaml:"sheets" mapstructure:"sheets"`
	History   HistoryConfig   `yaml:"history" mapstructure:"history"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Dispatch  DispatchConfig  `yaml:"dispatch" mapstructure:"dispatch"`
	Currency  CurrencyConfig  `yaml:"currency" mapstructure:"currency"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// SlackConfig controls inbound filtering. Tokens are secrets, not config.
type SlackConfig struct {
	// DMOnly ignores messages outside direct-message channels.
	DMOnly bool `yaml:"dm_only" mapstructure:"dm_only"`
}

// ModelsConfig binds each kind of call to a model tier.
type ModelsConfig struct {
	Classify   llm.Tier `yaml:"classify" mapstructure:"classify"`
	Draft      llm.Tier `yaml:"draft" mapstructure:"draft"`
	Trends     llm.Tier `yaml:"trends" mapstructure:"trends"`
	Research   llm.Tier `yaml:"research" mapstructure:"research"`
	OllamaHost string   `yaml:"ollama_host" mapstructure:"ollama_host"`
}

type PipelinesConfig struct {
	ProposalCount int `yaml:"proposal_count" mapstructure:"proposal_count"`
	// ResearchBudget is the wall-clock limit for one research run.
	ResearchBudget time.Duration `yaml:"research_budget" mapstructure:"research_budget"`
	// Estimates are shown before a kind has any history.
	Estimates map[string]estimate.Range `yaml:"estimates" mapstructure:"estimates"`
}

// TokensConfig lists the reply words each phase recognises. Matching is
// case-insensitive on the trimmed message.
type TokensConfig struct {
	Yes      []string `yaml:"yes" mapstructure:"yes"`
	No       []string `yaml:"no" mapstructure:"no"`
	Finalize []string `yaml:"finalize" mapstructure:"finalize"`
	Cancel   []string `yaml:"cancel" mapstructure:"cancel"`
	// GoBack phrases match anywhere in the message.
	GoBack []string `yaml:"go_back" mapstructure:"go_back"`
	Help   []string `yaml:"help" mapstructure:"help"`
}

type SheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id" mapstructure:"spreadsheet_id"`
	Tab             string `yaml:"tab" mapstructure:"tab"`
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
}

type HistoryConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"`
	// Path is the SQLite file or the flat-file directory; relative paths
	// resolve under DataDir.
	Path string `yaml:"path" mapstructure:"path"`
}

type OutputConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

type DispatchConfig struct {
	// MailboxDepth bounds queued messages per conversation.
	MailboxDepth int `yaml:"mailbox_depth" mapstructure:"mailbox_depth"`
	// DedupBackend is "memory" or "sqlite".
	DedupBackend string        `yaml:"dedup_backend" mapstructure:"dedup_backend"`
	DedupTTL     time.Duration `yaml:"dedup_ttl" mapstructure:"dedup_ttl"`
}

type CurrencyConfig struct {
	USDToJPY float64 `yaml:"usd_to_jpy" mapstructure:"usd_to_jpy"`
}

type MetricsConfig struct {
	// Addr is where /healthz, /metrics and /status listen; empty disables.
	Addr string `yaml:"addr" mapstructure:"addr"`
}

type LogConfig struct {
	Keep         int      `yaml:"keep" mapstructure:"keep"`
	Debug        bool     `yaml:"debug" mapstructure:"debug"`
	DebugDomains []string `yaml:"debug_domains" mapstructure:"debug_domains"`
}

// Default returns the built-in configuration.
func Default() *Config {
	haiku := llm.Tier{
		Provider:         "anthropic",
		Model:            "claude-haiku-4-5",
		InputPerMillion:  0.80,
		OutputPerMillion: 4.00,
		MaxTokens:        4000,
		Timeout:          3 * time.Minute,
	}
	classify := haiku
	classify.MaxTokens = 200
	classify.Timeout = 30 * time.Second

	search := haiku
	search.InputPerMillion = 1.00
	search.OutputPerMillion = 5.00
	search.MaxTokens = 2000
	search.Timeout = 5 * time.Minute

	research := search
	research.MaxTokens = 8000
	research.Timeout = 20 * time.Minute

	return &Config{
		DataDir: DefaultDataDir,
		Slack:   SlackConfig{DMOnly: true},
		Models: ModelsConfig{
			Classify:   classify,
			Draft:      haiku,
			Trends:     search,
			Research:   research,
			OllamaHost: "http://localhost:11434",
		},
		Pipelines: PipelinesConfig{
			ProposalCount:  4,
			ResearchBudget: 20 * time.Minute,
			Estimates: map[string]estimate.Range{
				string(estimate.KindResearch): estimate.DefaultRanges[estimate.KindResearch],
				string(estimate.KindDraft):    estimate.DefaultRanges[estimate.KindDraft],
			},
		},
		Tokens: TokensConfig{
			Yes:      []string{"はい", "yes", "ok", "実行", "よろしく", "お願い", "go", "y", "👍", "おねがい"},
			No:       []string{"いいえ", "no", "キャンセル", "やめて", "n", "🙅", "やめる"},
			Finalize: []string{"確定", "ok", "はい", "yes", "承認", "よし", "いいよ", "👍", "決定"},
			Cancel:   []string{"やめる", "キャンセル", "cancel", "やめて", "中止", "stop", "終了"},
			GoBack: []string{"他の案", "やり直し", "別のテーマ", "最初から", "別の案",
				"案変えて", "テーマ変えて", "案一覧", "案を見直す", "他の選択肢"},
			Help: []string{"help", "ヘルプ", "使い方", "何ができる", "?", "？"},
		},
		Sheets:   SheetsConfig{},
		History:  HistoryConfig{Backend: HistorySQLite, Path: "taskbot.db"},
		Output:   OutputConfig{Dir: "output"},
		Dispatch: DispatchConfig{MailboxDepth: 4, DedupBackend: "memory", DedupTTL: 10 * time.Minute},
		Currency: CurrencyConfig{USDToJPY: 150},
		Metrics:  MetricsConfig{Addr: "127.0.0.1:9464"},
		Log:      LogConfig{Keep: 5},
	}
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("slack.dm_only", d.Slack.DMOnly)

	tiers := map[string]llm.Tier{
		"classify": d.Models.Classify,
		"draft":    d.Models.Draft,
		"trends":   d.Models.Trends,
		"research": d.Models.Research,
	}
	for name, t := range tiers {
		prefix := "models." + name + "."
		v.SetDefault(prefix+"provider", t.Provider)
		v.SetDefault(prefix+"model", t.Model)
		v.SetDefault(prefix+"input_per_million", t.InputPerMillion)
		v.SetDefault(prefix+"output_per_million", t.OutputPerMillion)
		v.SetDefault(prefix+"max_tokens", t.MaxTokens)
		v.SetDefault(prefix+"timeout", t.Timeout)
	}
	v.SetDefault("models.ollama_host", d.Models.OllamaHost)

	v.SetDefault("pipelines.proposal_count", d.Pipelines.ProposalCount)
	v.SetDefault("pipelines.research_budget", d.Pipelines.ResearchBudget)
	for kind, r := range d.Pipelines.Estimates {
		prefix := "pipelines.estimates." + kind + "."
		v.SetDefault(prefix+"minutes_low", r.MinutesLow)
		v.SetDefault(prefix+"minutes_high", r.MinutesHigh)
		v.SetDefault(prefix+"cost_low", r.CostLow)
		v.SetDefault(prefix+"cost_high", r.CostHigh)
	}

	v.SetDefault("tokens.yes", d.Tokens.Yes)
	v.SetDefault("tokens.no", d.Tokens.No)
	v.SetDefault("tokens.finalize", d.Tokens.Finalize)
	v.SetDefault("tokens.cancel", d.Tokens.Cancel)
	v.SetDefault("tokens.go_back", d.Tokens.GoBack)
	v.SetDefault("tokens.help", d.Tokens.Help)

	v.SetDefault("sheets.spreadsheet_id", d.Sheets.SpreadsheetID)
	v.SetDefault("sheets.tab", d.Sheets.Tab)
	v.SetDefault("sheets.credentials_file", d.Sheets.CredentialsFile)

	v.SetDefault("history.backend", d.History.Backend)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("output.dir", d.Output.Dir)

	v.SetDefault("dispatch.mailbox_depth", d.Dispatch.MailboxDepth)
	v.SetDefault("dispatch.dedup_backend", d.Dispatch.DedupBackend)
	v.SetDefault("dispatch.dedup_ttl", d.Dispatch.DedupTTL)

	v.SetDefault("currency.usd_to_jpy", d.Currency.USDToJPY)
	v.SetDefault("metrics.addr", d.Metrics.Addr)

	v.SetDefault("log.keep", d.Log.Keep)
	v.SetDefault("log.debug", d.Log.Debug)
	v.SetDefault("log.debug_domains", d.Log.DebugDomains)
}

// Load reads path (or ./config.yaml, then <data_dir>/config.yaml when path is
// empty) over the defaults and applies TASKBOT_* overrides, e.g.
// TASKBOT_SHEETS_SPREADSHEET_ID. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(ConfigFileName, filepath.Ext(ConfigFileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(v.GetString("data_dir"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logx.Infof("no config file found, using defaults")
	} else {
		logx.Infof("loaded config from %s", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the pipelines cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Pipelines.ProposalCount < 1 {
		errs = append(errs, fmt.Errorf("pipelines.proposal_count must be at least 1, got %d", c.Pipelines.ProposalCount))
	}
	if c.Dispatch.MailboxDepth < 1 {
		errs = append(errs, fmt.Errorf("dispatch.mailbox_depth must be at least 1, got %d", c.Dispatch.MailboxDepth))
	}
	if c.Currency.USDToJPY <= 0 {
		errs = append(errs, fmt.Errorf("currency.usd_to_jpy must be positive"))
	}
	switch c.History.Backend {
	case HistorySQLite, HistoryFile:
	default:
		errs = append(errs, fmt.Errorf("history.backend must be %q or %q, got %q", HistorySQLite, HistoryFile, c.History.Backend))
	}
	switch c.Dispatch.DedupBackend {
	case "memory", HistorySQLite:
	default:
		errs = append(errs, fmt.Errorf("dispatch.dedup_backend must be memory or sqlite, got %q", c.Dispatch.DedupBackend))
	}
	if len(c.Tokens.Yes) == 0 || len(c.Tokens.Cancel) == 0 || len(c.Tokens.Finalize) == 0 {
		errs = append(errs, fmt.Errorf("tokens.yes, tokens.cancel and tokens.finalize must not be empty"))
	}
	for name, t := range map[string]llm.Tier{
		"classify": c.Models.Classify, "draft": c.Models.Draft,
		"trends": c.Models.Trends, "research": c.Models.Research,
	} {
		if t.Model == "" {
			errs = append(errs, fmt.Errorf("models.%s.model is required", name))
		}
	}
	return errors.Join(errs...)
}

// Resolve returns p joined under DataDir unless it is absolute.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// EstimateDefaults converts the configured ranges for estimate.NewEstimator.
func (c *Config) EstimateDefaults() map[estimate.Kind]estimate.Range {
	out := make(map[estimate.Kind]estimate.Range, len(estimate.DefaultRanges))
	for k, r := range estimate.DefaultRanges {
		out[k] = r
	}
	for k, r := range c.Pipelines.Estimates {
		out[estimate.Kind(k)] = r
	}
	return out
}

// WriteDefault writes the default configuration as YAML. It refuses to
// replace an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to encode default config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
