// Package config reads the game settings from the environment.
package config

import (
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/myrjola/turingtrial/internal/errors"
)

var ErrInvalidConfig = errors.NewSentinel("invalid configuration")

const (
	BackendOpenAI = "openai"
	BackendGemini = "gemini"
)

type Config struct {
	// Backend selects the completion service, openai or gemini.
	Backend       string `env:"TURINGTRIAL_BACKEND"  envDefault:"openai"`
	Model         string `env:"TURINGTRIAL_MODEL"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	GeminiAPIKey  string `env:"GEMINI_API_KEY"`

	// InvestigationBudget and VerdictBudget are counted in ticks.
	InvestigationBudget int           `env:"TURINGTRIAL_INVESTIGATION_BUDGET" envDefault:"300"`
	VerdictBudget       int           `env:"TURINGTRIAL_VERDICT_BUDGET"       envDefault:"60"`
	TickInterval        time.Duration `env:"TURINGTRIAL_TICK_INTERVAL"        envDefault:"1s"`
	CorrectChoice       string        `env:"TURINGTRIAL_CORRECT_CHOICE"       envDefault:"no"`
	CompletionTimeout   time.Duration `env:"TURINGTRIAL_COMPLETION_TIMEOUT"   envDefault:"30s"`

	DatabaseURL string     `env:"TURINGTRIAL_DATABASE_URL" envDefault:":memory:"`
	PromptDir   string     `env:"TURINGTRIAL_PROMPT_DIR"`
	LogFile     string     `env:"TURINGTRIAL_LOG_FILE"     envDefault:"turingtrial.log"`
	LogLevel    slog.Level `env:"TURINGTRIAL_LOG_LEVEL"    envDefault:"INFO"`
	DebugAddr   string     `env:"TURINGTRIAL_DEBUG_ADDR"`
	Bell        bool       `env:"TURINGTRIAL_BELL"         envDefault:"true"`
}

// Load parses environ, typically env.ToMap(os.Environ()), into a validated Config.
func Load(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, errors.Wrap(errors.Join(ErrInvalidConfig, err), "parse environment")
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Environ returns the process environment merged with the .env files that exist. Variables already set in the
// process take precedence.
func Environ(environ []string, files ...string) (map[string]string, error) {
	merged := make(map[string]string)
	for _, file := range files {
		values, err := godotenv.Read(file)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, errors.Wrap(err, "read env file", slog.String("file", file))
		}
		for k, v := range values {
			if _, ok := merged[k]; !ok {
				merged[k] = v
			}
		}
	}
	for k, v := range env.ToMap(environ) {
		merged[k] = v
	}
	return merged, nil
}

func (c Config) validate() error {
	var errs []error
	if c.Backend != BackendOpenAI && c.Backend != BackendGemini {
		errs = append(errs, errors.Wrap(ErrInvalidConfig, "unknown backend", slog.String("backend", c.Backend)))
	}
	if c.InvestigationBudget <= 0 || c.VerdictBudget <= 0 {
		errs = append(errs, errors.Wrap(ErrInvalidConfig, "budgets must be positive",
			slog.Int("investigation_budget", c.InvestigationBudget), slog.Int("verdict_budget", c.VerdictBudget)))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, errors.Wrap(ErrInvalidConfig, "tick interval must be positive",
			slog.Duration("tick_interval", c.TickInterval)))
	}
	if c.CompletionTimeout < 0 {
		errs = append(errs, errors.Wrap(ErrInvalidConfig, "completion timeout must not be negative",
			slog.Duration("completion_timeout", c.CompletionTimeout)))
	}
	return errors.Join(errs...)
}

// APIKey returns the key of the selected backend.
func (c Config) APIKey() string {
	if c.Backend == BackendGemini {
		return c.GeminiAPIKey
	}
	return c.OpenAIAPIKey
}
