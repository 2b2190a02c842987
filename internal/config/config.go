package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       App       `mapstructure:"app"`
	AI        AI        `mapstructure:"ai"`
	Database  Database  `mapstructure:"database"`
	Logging   Logging   `mapstructure:"logging"`
	Wikipedia Wikipedia `mapstructure:"wikipedia"`
	Portraits Portraits `mapstructure:"portraits"`
	Puzzle    Puzzle    `mapstructure:"puzzle"`
	Jobs      Jobs      `mapstructure:"jobs"`
	Server    Server    `mapstructure:"server"`
}

// App holds general application configuration
type App struct {
	Debug      bool   `mapstructure:"debug"`
	DataDir    string `mapstructure:"data_dir"`
	ConfigFile string `mapstructure:"config_file"`
}

// AI holds text generation provider configuration
type AI struct {
	Provider string       `mapstructure:"provider"`
	Gemini   GeminiConfig `mapstructure:"gemini"`
	OpenAI   OpenAIConfig `mapstructure:"openai"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Timeout     string  `mapstructure:"timeout"`
	MaxTokens   int32   `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
}

// OpenAIConfig holds configuration for any OpenAI-compatible endpoint
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
	Timeout string `mapstructure:"timeout"`
}

// Database holds storage configuration
type Database struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	LogLevel string `mapstructure:"log_level"`
}

// Logging holds logger configuration
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Wikipedia holds encyclopedia lookup configuration
type Wikipedia struct {
	APIURL    string `mapstructure:"api_url"`
	RestURL   string `mapstructure:"rest_url"`
	UserAgent string `mapstructure:"user_agent"`
	Timeout   string `mapstructure:"timeout"`
	CacheSize int    `mapstructure:"cache_size"`
}

// Portraits holds image generation subprocess configuration
type Portraits struct {
	Command              string   `mapstructure:"command"`
	Args                 []string `mapstructure:"args"`
	OutputDir            string   `mapstructure:"output_dir"`
	PublicPrefix         string   `mapstructure:"public_prefix"`
	Timeout              string   `mapstructure:"timeout"`
	MaxAttempts          int      `mapstructure:"max_attempts"`
	VariantSwitchAttempt int      `mapstructure:"variant_switch_attempt"`
	VariantPause         string   `mapstructure:"variant_pause"`
	MaxSide              int      `mapstructure:"max_side"`
}

// Puzzle holds daily puzzle assembly configuration
type Puzzle struct {
	Strategy     string `mapstructure:"strategy"`
	MinBirthYear int    `mapstructure:"min_birth_year"`
	MaxBirthYear int    `mapstructure:"max_birth_year"`
	ExcludeDays  int    `mapstructure:"exclude_days"`
	Timeout      string `mapstructure:"timeout"`
}

// Jobs holds background queue configuration
type Jobs struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
	// LockTTL is how long a job key claimed in the database outlives a
	// process that died holding it.
	LockTTL string `mapstructure:"lock_ttl"`
}

// Server holds the read-only HTTP API configuration
type Server struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	ReadTimeout  string   `mapstructure:"read_timeout"`
	WriteTimeout string   `mapstructure:"write_timeout"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".starlinks")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.App.ConfigFile = viper.ConfigFileUsed()

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// Reset clears the cached configuration and viper state.
func Reset() {
	globalConfig = nil
	viper.Reset()
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.data_dir", ".starlinks")

	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	viper.SetDefault("ai.gemini.timeout", "90s")
	viper.SetDefault("ai.gemini.max_tokens", 8192)
	viper.SetDefault("ai.gemini.temperature", 0.7)
	viper.SetDefault("ai.openai.model", "gpt-4o-mini")
	viper.SetDefault("ai.openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("ai.openai.timeout", "90s")

	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", ".starlinks/starlinks.db")
	viper.SetDefault("database.log_level", "warn")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	viper.SetDefault("wikipedia.api_url", "https://en.wikipedia.org/w/api.php")
	viper.SetDefault("wikipedia.rest_url", "https://en.wikipedia.org/api/rest_v1")
	viper.SetDefault("wikipedia.user_agent", "StarlinksBot/1.0 (daily celebrity puzzle; contact admin@example.com)")
	viper.SetDefault("wikipedia.timeout", "5s")
	viper.SetDefault("wikipedia.cache_size", 512)

	viper.SetDefault("portraits.command", "python3")
	viper.SetDefault("portraits.args", []string{"scripts/generate_portraits.py"})
	viper.SetDefault("portraits.output_dir", "public/portraits")
	viper.SetDefault("portraits.public_prefix", "/portraits")
	viper.SetDefault("portraits.timeout", "10m")
	viper.SetDefault("portraits.max_attempts", 4)
	viper.SetDefault("portraits.variant_switch_attempt", 3)
	viper.SetDefault("portraits.variant_pause", "15s")
	viper.SetDefault("portraits.max_side", 768)

	viper.SetDefault("puzzle.strategy", "combined")
	viper.SetDefault("puzzle.min_birth_year", 1900)
	viper.SetDefault("puzzle.max_birth_year", 2010)
	viper.SetDefault("puzzle.exclude_days", 30)
	viper.SetDefault("puzzle.timeout", "3m")

	viper.SetDefault("jobs.workers", 1)
	viper.SetDefault("jobs.queue_size", 32)
	viper.SetDefault("jobs.lock_ttl", "2h")

	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.cors_origins", []string{"http://localhost:5173"})
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys("ai.openai.api_key", []string{
		"OPENAI_API_KEY",
	})

	bindEnvKeys("ai.openai.base_url", []string{
		"OPENAI_BASE_URL",
	})

	bindEnvKeys("database.dsn", []string{
		"STARLINKS_DATABASE_DSN",
		"DATABASE_URL",
	})

	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"STARLINKS_DEBUG",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	if config.App.DataDir != "" {
		config.App.DataDir = expandPath(config.App.DataDir)
	}
	if config.Portraits.OutputDir != "" {
		config.Portraits.OutputDir = expandPath(config.Portraits.OutputDir)
	}
	if config.Database.Driver == "sqlite" && config.Database.DSN != "" {
		config.Database.DSN = expandPath(config.Database.DSN)
	}
	if config.App.Debug {
		config.Logging.Level = "debug"
	}

	durations := map[string]string{
		"ai.gemini.timeout":       config.AI.Gemini.Timeout,
		"ai.openai.timeout":       config.AI.OpenAI.Timeout,
		"wikipedia.timeout":       config.Wikipedia.Timeout,
		"portraits.timeout":       config.Portraits.Timeout,
		"portraits.variant_pause": config.Portraits.VariantPause,
		"puzzle.timeout":          config.Puzzle.Timeout,
		"server.read_timeout":     config.Server.ReadTimeout,
		"server.write_timeout":    config.Server.WriteTimeout,
		"jobs.lock_ttl":           config.Jobs.LockTTL,
	}

	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig ensures required configuration is coherent.
// API keys are checked lazily by the commands that need a generator.
func validateConfig(config *Config) error {
	var errors []string

	switch config.AI.Provider {
	case "gemini", "openai":
	default:
		errors = append(errors, fmt.Sprintf("Unknown AI provider: %s. Supported: gemini, openai", config.AI.Provider))
	}

	switch config.Database.Driver {
	case "sqlite", "postgres":
	default:
		errors = append(errors, fmt.Sprintf("Unknown database driver: %s. Supported: sqlite, postgres", config.Database.Driver))
	}
	if config.Database.DSN == "" {
		errors = append(errors, "database.dsn is required. Set STARLINKS_DATABASE_DSN or database.dsn in config file")
	}

	switch config.Puzzle.Strategy {
	case "combined", "legacy":
	default:
		errors = append(errors, fmt.Sprintf("Unknown puzzle strategy: %s. Supported: combined, legacy", config.Puzzle.Strategy))
	}
	if config.Puzzle.MinBirthYear < 1900 || config.Puzzle.MaxBirthYear > 2100 || config.Puzzle.MinBirthYear > config.Puzzle.MaxBirthYear {
		errors = append(errors, fmt.Sprintf("puzzle birth year range %d-%d must lie within 1900-2100", config.Puzzle.MinBirthYear, config.Puzzle.MaxBirthYear))
	}

	if config.Portraits.MaxAttempts <= 0 {
		errors = append(errors, "portraits.max_attempts must be positive")
	}
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		errors = append(errors, fmt.Sprintf("server.port %d is out of range", config.Server.Port))
	}
	if config.Jobs.Workers <= 0 {
		errors = append(errors, "jobs.workers must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// Duration parses a validated duration string, falling back when empty.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
