// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. It is constructed once at
// process start and passed by injection into each component constructor.
type Config struct {
	Ledger     LedgerConfig     `yaml:"ledger" mapstructure:"ledger"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Arxiv      ArxivConfig      `yaml:"arxiv" mapstructure:"arxiv"`
	OpenAlex   OpenAlexConfig   `yaml:"openalex" mapstructure:"openalex"`
	CVF        CVFConfig        `yaml:"cvf" mapstructure:"cvf"`
	Reddit     RedditConfig     `yaml:"reddit" mapstructure:"reddit"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" mapstructure:"retrieval"`
	Reflection ReflectionConfig `yaml:"reflection" mapstructure:"reflection"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	LinkedIn   LinkedInConfig   `yaml:"linkedin" mapstructure:"linkedin"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// LedgerConfig configures the dedup ledger.
type LedgerConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// StoreConfig configures the run-history database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LLMConfig holds settings for the OpenAI-compatible generation endpoint.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SearchConfig holds the topic keywords applied across all sources.
type SearchConfig struct {
	Keywords []string `yaml:"keywords" mapstructure:"keywords"`
}

// ArxivConfig holds arXiv API settings.
type ArxivConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// OpenAlexConfig holds OpenAlex API settings.
type OpenAlexConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// Mailto enrolls requests in the OpenAlex polite pool.
	Mailto string `yaml:"mailto" mapstructure:"mailto"`
}

// CVFConfig holds CVF open access scrape settings.
type CVFConfig struct {
	BaseURL string   `yaml:"base_url" mapstructure:"base_url"`
	Venues  []string `yaml:"venues" mapstructure:"venues"`
	Years   []int    `yaml:"years" mapstructure:"years"`
}

// RedditConfig holds Reddit JSON API settings.
type RedditConfig struct {
	BaseURL    string   `yaml:"base_url" mapstructure:"base_url"`
	Subreddits []string `yaml:"subreddits" mapstructure:"subreddits"`
	UserAgent  string   `yaml:"user_agent" mapstructure:"user_agent"`
}

// RetrievalConfig configures the volume-adaptive retrieval loop.
type RetrievalConfig struct {
	DefaultDaysBack     int `yaml:"default_days_back" mapstructure:"default_days_back"`
	MaxResultsPerSource int `yaml:"max_results_per_source" mapstructure:"max_results_per_source"`
	TargetItems         int `yaml:"target_items" mapstructure:"target_items"`
	MaxBatchSize        int `yaml:"max_batch_size" mapstructure:"max_batch_size"`
}

// ReflectionConfig configures the critique/revision loop.
type ReflectionConfig struct {
	MaxIterations int     `yaml:"max_iterations" mapstructure:"max_iterations"`
	Temperature   float64 `yaml:"temperature" mapstructure:"temperature"`
}

// OutputConfig configures report writing.
type OutputConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// LinkedInConfig configures the publishing stub.
type LinkedInConfig struct {
	DryRun bool `yaml:"dry_run" mapstructure:"dry_run"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LITAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ledger.path", "data/ledger.csv")
	v.SetDefault("store.path", "data/runs.db")
	v.SetDefault("llm.base_url", "http://localhost:8000/v1")
	v.SetDefault("llm.api_key", "EMPTY")
	v.SetDefault("llm.model", "meta-llama/Llama-3.1-8B-Instruct")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout_secs", 120)
	v.SetDefault("search.keywords", []string{
		"gaussian splatting",
		"3DGS",
		"3D Gaussian Splatting",
		"splatting radiance field",
		"neural gaussian",
	})
	v.SetDefault("arxiv.base_url", "https://export.arxiv.org/api/query")
	v.SetDefault("openalex.base_url", "https://api.openalex.org")
	v.SetDefault("openalex.mailto", "researcher@example.edu.au")
	v.SetDefault("cvf.base_url", "https://openaccess.thecvf.com")
	v.SetDefault("cvf.venues", []string{"CVPR", "ICCV", "ECCV"})
	v.SetDefault("cvf.years", []int{2024, 2023, 2022})
	v.SetDefault("reddit.base_url", "https://www.reddit.com")
	v.SetDefault("reddit.subreddits", []string{"PlayCanvas", "GaussianSplatting"})
	v.SetDefault("reddit.user_agent", "literature-agent/1.0 (research paper monitoring)")
	v.SetDefault("retrieval.default_days_back", 7)
	v.SetDefault("retrieval.max_results_per_source", 50)
	v.SetDefault("retrieval.target_items", 3)
	v.SetDefault("retrieval.max_batch_size", 50)
	v.SetDefault("reflection.max_iterations", 1)
	v.SetDefault("reflection.temperature", 0.3)
	v.SetDefault("output.dir", "output")
	v.SetDefault("linkedin.dry_run", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration is usable for a pipeline run.
func (c *Config) Validate() error {
	var problems []string

	if c.Ledger.Path == "" {
		problems = append(problems, "ledger.path is required")
	}
	if c.LLM.BaseURL == "" {
		problems = append(problems, "llm.base_url is required")
	}
	if c.LLM.Model == "" {
		problems = append(problems, "llm.model is required")
	}
	if len(c.Search.Keywords) == 0 {
		problems = append(problems, "search.keywords must not be empty")
	}
	if c.Retrieval.MaxBatchSize < c.Retrieval.MaxResultsPerSource {
		problems = append(problems, "retrieval.max_batch_size must be >= retrieval.max_results_per_source")
	}
	if c.Retrieval.TargetItems <= 0 {
		problems = append(problems, "retrieval.target_items must be > 0")
	}
	if c.Reflection.MaxIterations < 0 {
		problems = append(problems, "reflection.max_iterations must be >= 0")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
