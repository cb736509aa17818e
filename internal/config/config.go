package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Source failure policies.
const (
	PolicySkip  = "skip"
	PolicyAbort = "abort"
)

type Config struct {
	Output              OutputConfig       `yaml:"output"`
	LookbackDays        int                `yaml:"lookback_days" validate:"gte=1,lte=365"`
	MaxResults          int                `yaml:"max_results" validate:"gte=1,lte=10000"`
	SourceOrder         []string           `yaml:"source_order" validate:"dive,oneof=pubmed arxiv"`
	SourceFailurePolicy string             `yaml:"source_failure_policy" validate:"oneof=skip abort"`
	Connectivity        ConnectivityConfig `yaml:"connectivity"`
	PubMed              PubMedConfig       `yaml:"pubmed"`
	Arxiv               ArxivConfig        `yaml:"arxiv"`
	LLM                 LLMConfig          `yaml:"llm"`
	Logging             LoggingConfig      `yaml:"logging"`
	Metrics             MetricsConfig      `yaml:"metrics"`
	Schedule            ScheduleConfig     `yaml:"schedule"`
	Publisher           PublisherConfig    `yaml:"publisher"`
}

type OutputConfig struct {
	Path        string `yaml:"path"`
	Folder      string `yaml:"folder"`
	FrontMatter bool   `yaml:"front_matter"`
}

// Dir is the directory that receives briefings and the ledger.
func (o OutputConfig) Dir() string {
	return filepath.Join(o.Path, o.Folder)
}

type ConnectivityConfig struct {
	Enabled bool          `yaml:"enabled"`
	Address string        `yaml:"address" validate:"required,hostname_port"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

type PubMedConfig struct {
	Enabled          bool          `yaml:"enabled"`
	BaseURL          string        `yaml:"base_url" validate:"omitempty,url"`
	APIKey           string        `yaml:"api_key"`
	CoreJournals     []string      `yaml:"core_journals"`
	ExtendedJournals []string      `yaml:"extended_journals"`
	Keywords         []string      `yaml:"keywords"`
	Species          []string      `yaml:"species"`
	BatchSize        int           `yaml:"batch_size" validate:"gte=1,lte=200"`
	BatchDelay       time.Duration `yaml:"batch_delay" validate:"gte=0"`
	SearchTimeout    time.Duration `yaml:"search_timeout" validate:"gt=0"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout" validate:"gt=0"`
}

type ArxivConfig struct {
	Enabled    bool          `yaml:"enabled"`
	BaseURL    string        `yaml:"base_url" validate:"omitempty,url"`
	Categories []string      `yaml:"categories"`
	Keywords   []string      `yaml:"keywords"`
	PageSize   int           `yaml:"page_size" validate:"gte=1,lte=100"`
	PageDelay  time.Duration `yaml:"page_delay" validate:"gte=0"`
	Timeout    time.Duration `yaml:"timeout" validate:"gt=0"`
}

type LLMConfig struct {
	Provider          string        `yaml:"provider" validate:"omitempty,oneof=openrouter openai claude anthropic gemini"`
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url" validate:"omitempty,url"`
	Temperature       float64       `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens         int           `yaml:"max_tokens" validate:"gte=1"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	EnableTranslation bool          `yaml:"enable_translation"`
	EnableHighlights  bool          `yaml:"enable_highlights"`
	TargetLanguage    string        `yaml:"target_language"`
	TitleDelay        time.Duration `yaml:"title_delay" validate:"gte=0"`
	AbstractDelay     time.Duration `yaml:"abstract_delay" validate:"gte=0"`
}

// Configured reports whether an LLM provider can be called at all.
func (l LLMConfig) Configured() bool {
	return l.Provider != "" && l.APIKey != ""
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

type ScheduleConfig struct {
	Cron       string `yaml:"cron"`
	RunOnStart bool   `yaml:"run_on_start"`
}

type PublisherConfig struct {
	Types   []string      `yaml:"types" validate:"dive,oneof=stdout email web discord"`
	Email   EmailConfig   `yaml:"email"`
	Web     WebConfig     `yaml:"web"`
	Discord DiscordConfig `yaml:"discord"`
}

// Has reports whether the named publisher is enabled.
func (p PublisherConfig) Has(name string) bool {
	for _, t := range p.Types {
		if t == name {
			return true
		}
	}
	return false
}

type DiscordConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

type EmailConfig struct {
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

type WebConfig struct {
	Addr string `yaml:"addr"`
}

// EnabledSources lists the enabled sources in run order. Enabled sources
// missing from source_order run after the listed ones.
func (c *Config) EnabledSources() []string {
	enabled := map[string]bool{"pubmed": c.PubMed.Enabled, "arxiv": c.Arxiv.Enabled}
	var out []string
	for _, name := range append(append([]string{}, c.SourceOrder...), "pubmed", "arxiv") {
		if enabled[name] {
			out = append(out, name)
			enabled[name] = false
		}
	}
	return out
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return ""
	})
}

// providerKeyEnv maps LLM providers to the environment variable holding
// their key when the config leaves it empty.
var providerKeyEnv = map[string]string{
	"openrouter": "OPENROUTER_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"claude":     "ANTHROPIC_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"gemini":     "GEMINI_API_KEY",
}

func applyEnvFallbacks(cfg *Config) {
	if cfg.PubMed.APIKey == "" {
		cfg.PubMed.APIKey = os.Getenv("PUBMED_API_KEY")
	}
	if cfg.LLM.APIKey == "" {
		if env, ok := providerKeyEnv[cfg.LLM.Provider]; ok {
			cfg.LLM.APIKey = os.Getenv(env)
		}
	}
}

// Default returns the configuration used when a key is absent from the file.
func Default() Config {
	return Config{
		Output: OutputConfig{
			Path:   ".",
			Folder: "briefings",
		},
		LookbackDays:        7,
		MaxResults:          200,
		SourceOrder:         []string{"pubmed", "arxiv"},
		SourceFailurePolicy: PolicySkip,
		Connectivity: ConnectivityConfig{
			Enabled: true,
			Address: "8.8.8.8:53",
			Timeout: 5 * time.Second,
		},
		PubMed: PubMedConfig{
			Enabled:       true,
			BatchSize:     50,
			BatchDelay:    150 * time.Millisecond,
			SearchTimeout: 30 * time.Second,
			FetchTimeout:  60 * time.Second,
		},
		Arxiv: ArxivConfig{
			PageSize:  100,
			PageDelay: 500 * time.Millisecond,
			Timeout:   30 * time.Second,
		},
		LLM: LLMConfig{
			Provider:          "openrouter",
			Temperature:       0.1,
			MaxTokens:         2000,
			Timeout:           90 * time.Second,
			EnableTranslation: true,
			EnableHighlights:  true,
			TargetLanguage:    "Chinese",
			TitleDelay:        200 * time.Millisecond,
			AbstractDelay:     300 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Schedule: ScheduleConfig{
			Cron: "0 8 * * *",
		},
		Publisher: PublisherConfig{
			Email: EmailConfig{SMTPPort: 587},
			Web:   WebConfig{Addr: ":8080"},
		},
	}
}

// defaultModels holds the model used per provider when none is configured.
var defaultModels = map[string]string{
	"openrouter": "google/gemini-2.0-flash-001",
	"openai":     "gpt-4o-mini",
	"claude":     "claude-sonnet-4-20250514",
	"anthropic":  "claude-sonnet-4-20250514",
	"gemini":     "gemini-2.0-flash",
}

func setDefaults(cfg *Config) {
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaultModels[cfg.LLM.Provider]
	}
	if cfg.Output.Folder == "" {
		cfg.Output.Folder = "briefings"
	}
	if cfg.Output.Path == "" {
		cfg.Output.Path = "."
	}
	if len(cfg.SourceOrder) == 0 {
		cfg.SourceOrder = []string{"pubmed", "arxiv"}
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func check(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: %s failed %q validation (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("config: %w", err)
	}
	seen := make(map[string]bool, len(cfg.SourceOrder))
	for _, name := range cfg.SourceOrder {
		if seen[name] {
			return fmt.Errorf("config: source %q listed twice in source_order", name)
		}
		seen[name] = true
	}
	if !cfg.PubMed.Enabled && !cfg.Arxiv.Enabled {
		return fmt.Errorf("config: at least one of pubmed.enabled or arxiv.enabled must be true")
	}
	if cfg.Publisher.Has("discord") && cfg.Publisher.Discord.WebhookURL == "" {
		return fmt.Errorf("config: publisher.discord.webhook_url is required for discord publisher")
	}
	if cfg.Publisher.Has("email") {
		if cfg.Publisher.Email.SMTPHost == "" {
			return fmt.Errorf("config: publisher.email.smtp_host is required for email publisher")
		}
		if len(cfg.Publisher.Email.To) == 0 {
			return fmt.Errorf("config: publisher.email.to is required for email publisher")
		}
		if cfg.Publisher.Email.From == "" {
			return fmt.Errorf("config: publisher.email.from is required for email publisher")
		}
	}
	return nil
}

// Load reads the config file, expands environment variables, applies defaults,
// and validates the configuration. A .env file next to the working directory
// is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse: %w", err)
	}

	setDefaults(&cfg)
	applyEnvFallbacks(&cfg)

	if err := check(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
