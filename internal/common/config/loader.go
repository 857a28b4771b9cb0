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

const (
	ProviderHTTP      = "http"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderDisabled  = "disabled"

	KnowledgeSourceFile          = "file"
	KnowledgeSourceElasticsearch = "elasticsearch"
	KnowledgeSourceMemory        = "memory"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml on top
// and lets environment variables override individual keys.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return build(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return build(v)
}

func build(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env", "../../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars replaces ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

func overrideEmptyConfig(cfg *Config) {
	if cfg.APIs.GenAI.APIKey == "" {
		for _, name := range []string{"GENAI_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY"} {
			if val := os.Getenv(name); val != "" {
				cfg.APIs.GenAI.APIKey = val
				break
			}
		}
	}
	if cfg.APIs.GenAI.Auth.ClientSecret == "" {
		if val := os.Getenv("GENAI_CLIENT_SECRET"); val != "" {
			cfg.APIs.GenAI.Auth.ClientSecret = val
		}
	}
	if cfg.Notifications.Escalation.Zoho.AccessToken == "" {
		if val := os.Getenv("ZOHO_ACCESS_TOKEN"); val != "" {
			cfg.Notifications.Escalation.Zoho.AccessToken = val
		}
	}
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "helpdesk-workers"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10000
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}
	if cfg.Camunda.ProcessID == "" {
		cfg.Camunda.ProcessID = "helpdesk-ticket"
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}

	genai := &cfg.APIs.GenAI
	if genai.Provider == "" {
		genai.Provider = ProviderHTTP
	}
	if genai.Timeout == 0 {
		genai.Timeout = 30000
	}
	if genai.MaxTokens == 0 {
		genai.MaxTokens = 300
	}

	if cfg.Knowledge.Source == "" {
		cfg.Knowledge.Source = KnowledgeSourceFile
	}
	if cfg.Knowledge.Manifest == "" {
		cfg.Knowledge.Manifest = "./configs/knowledge-base.json"
	}
	if cfg.Knowledge.Directory == "" {
		cfg.Knowledge.Directory = "./knowledge_base"
	}
	if cfg.Knowledge.Index == "" {
		cfg.Knowledge.Index = "helpdesk-policies"
	}

	p := &cfg.Pipeline
	if p.MaxTicketLength == 0 {
		p.MaxTicketLength = 2000
	}
	if p.ClassifierTimeout == 0 {
		p.ClassifierTimeout = 10000
	}
	if p.ResponderTimeout == 0 {
		p.ResponderTimeout = 30000
	}
	if p.ResponderMaxTokens == 0 {
		p.ResponderMaxTokens = genai.MaxTokens
	}
	if p.ScorerTimeout == 0 {
		p.ScorerTimeout = 10000
	}
	if p.SinkTimeout == 0 {
		p.SinkTimeout = 5000
	}

	if cfg.Audit.Postgres.Table == "" {
		cfg.Audit.Postgres.Table = "helpdesk_ticket_log"
	}
	if cfg.Notifications.Escalation.Region == "" {
		cfg.Notifications.Escalation.Region = "us-east-1"
	}
}

// validateConfig checks only what the enabled features need.
func validateConfig(cfg *Config) error {
	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda is enabled")
	}

	switch cfg.APIs.GenAI.Provider {
	case ProviderHTTP:
		if cfg.APIs.GenAI.BaseURL == "" {
			return fmt.Errorf("apis.genai.base_url is required for the http provider")
		}
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
		if cfg.APIs.GenAI.APIKey == "" {
			return fmt.Errorf("apis.genai.api_key is required for the %s provider", cfg.APIs.GenAI.Provider)
		}
	case ProviderDisabled:
	default:
		return fmt.Errorf("apis.genai.provider %q is not supported", cfg.APIs.GenAI.Provider)
	}
	if a := cfg.APIs.GenAI.Auth; a.ClientID != "" && a.TokenURL == "" && (a.KeycloakURL == "" || a.Realm == "") {
		return fmt.Errorf("apis.genai.auth needs token_url or keycloak_url and realm")
	}

	switch cfg.Knowledge.Source {
	case KnowledgeSourceFile, KnowledgeSourceMemory:
	case KnowledgeSourceElasticsearch:
		if len(cfg.Database.Elasticsearch.GetAddresses()) == 0 {
			return fmt.Errorf("database.elasticsearch.addresses or url is required for the elasticsearch knowledge source")
		}
	default:
		return fmt.Errorf("knowledge.source %q is not supported", cfg.Knowledge.Source)
	}

	if cfg.Knowledge.CacheTTL > 0 && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when knowledge.cache_ttl is set")
	}

	if cfg.Audit.Postgres.Enabled {
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	}

	if cfg.Pipeline.MaxTicketLength < 1 {
		return fmt.Errorf("pipeline.max_ticket_length must be positive")
	}

	esc := cfg.Notifications.Escalation
	if esc.Enabled && esc.TopicARN == "" && !esc.Email.Enabled && !esc.Zoho.Enabled {
		return fmt.Errorf("notifications.escalation needs a topic_arn, email or zoho settings")
	}
	if esc.Email.Enabled && (esc.Email.FromEmail == "" || len(esc.Email.To) == 0) {
		return fmt.Errorf("notifications.escalation.email needs from_email and to")
	}
	if z := esc.Zoho; z.Enabled && z.AccessToken == "" && (z.RefreshToken == "" || z.ClientID == "") {
		return fmt.Errorf("notifications.escalation.zoho needs access_token or refresh_token with client_id")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
