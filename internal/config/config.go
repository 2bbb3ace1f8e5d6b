package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"security-gate/internal/domain"
)

// Config representa todas as configurações da aplicação
type Config struct {
	// Server Configuration
	ServerPort string
	GinMode    string

	// Logging Configuration
	LogLevel  string
	LogFormat string

	// Gate Configuration
	RateLimit         domain.RateLimitConfig
	Security          domain.SecurityConfig
	TrustProxyHeaders bool

	// CSRF Configuration
	CSRFSecret          string
	CSRFSecretGenerated bool

	// Event Sink Configuration
	EventSink         string
	EventSinkCapacity int

	// Redis Configuration
	RedisHost      string
	RedisPort      string
	RedisPassword  string
	RedisDB        int
	RedisEventsKey string

	// Security policy file
	PolicyFile string
}

// SecurityPolicy representa o arquivo YAML de política. As listas são
// somadas às definidas no ambiente; limites não nulos em rate_limit
// substituem os do ambiente.
type SecurityPolicy struct {
	RateLimit         domain.RateLimitConfig `yaml:"rate_limit"`
	BlockedIPs        []string               `yaml:"blocked_ips"`
	BlockedUserAgents []string               `yaml:"blocked_user_agents"`
	AllowedOrigins    []string               `yaml:"allowed_origins"`
}

// ConfigLoader carrega .env, variáveis de ambiente e a política YAML
type ConfigLoader struct {
	config *Config
}

// NewConfigLoader cria uma nova instância do ConfigLoader
func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

// LoadConfig carrega e valida as configurações
func (c *ConfigLoader) LoadConfig() (*Config, error) {
	// Carrega o arquivo .env se existir
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using system environment variables")
	}

	config, err := c.loadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load environment config: %w", err)
	}

	if config.PolicyFile != "" {
		policy, err := c.LoadSecurityPolicy(config.PolicyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load security policy: %w", err)
		}
		applyPolicy(config, policy)
	}

	config.Security.BlockedUserAgents = lowerAll(config.Security.BlockedUserAgents)

	if err := c.validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if config.CSRFSecret == "" {
		secret, err := generateSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate CSRF secret: %w", err)
		}
		config.CSRFSecret = secret
		config.CSRFSecretGenerated = true
	}

	c.config = config
	return config, nil
}

// LoadSecurityPolicy lê a política de segurança de um arquivo YAML
func (c *ConfigLoader) LoadSecurityPolicy(path string) (*SecurityPolicy, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Printf("Warning: security policy file %s not found, using only environment values\n", path)
		return &SecurityPolicy{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read security policy file: %w", err)
	}

	var policy SecurityPolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse security policy file: %w", err)
	}

	return &policy, nil
}

// GetConfig retorna a configuração atual
func (c *ConfigLoader) GetConfig() *Config {
	return c.config
}

// loadFromEnv carrega configurações das variáveis de ambiente
func (c *ConfigLoader) loadFromEnv() (*Config, error) {
	defaults := domain.DefaultRateLimitConfig()
	security := domain.DefaultSecurityConfig()

	config := &Config{
		// Server defaults
		ServerPort: getEnvWithDefault("SERVER_PORT", "8080"),
		GinMode:    getEnvWithDefault("GIN_MODE", "debug"),

		// Logging defaults
		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "json"),

		CSRFSecret: os.Getenv("CSRF_SECRET"),
		EventSink:  strings.ToLower(getEnvWithDefault("EVENT_SINK", "memory")),

		// Redis defaults
		RedisHost:      getEnvWithDefault("REDIS_HOST", "localhost"),
		RedisPort:      getEnvWithDefault("REDIS_PORT", "6379"),
		RedisPassword:  getEnvWithDefault("REDIS_PASSWORD", ""),
		RedisEventsKey: getEnvWithDefault("REDIS_EVENTS_KEY", "security:events"),

		PolicyFile: os.Getenv("SECURITY_POLICY_FILE"),
	}

	ints := []struct {
		key    string
		target *int
		def    int
	}{
		{"RATE_LIMIT_PER_MINUTE", &config.RateLimit.RequestsPerMinute, defaults.RequestsPerMinute},
		{"RATE_LIMIT_PER_HOUR", &config.RateLimit.RequestsPerHour, defaults.RequestsPerHour},
		{"RATE_LIMIT_PER_DAY", &config.RateLimit.RequestsPerDay, defaults.RequestsPerDay},
		{"RATE_LIMIT_BURST", &config.RateLimit.BurstLimit, defaults.BurstLimit},
		{"BLOCK_DURATION", &config.RateLimit.BlockDuration, defaults.BlockDuration},
		{"CSRF_TOKEN_TTL", &security.CSRFTokenTTL, security.CSRFTokenTTL},
		{"EVENT_SINK_CAPACITY", &config.EventSinkCapacity, 1000},
		{"REDIS_DB", &config.RedisDB, 0},
	}
	for _, field := range ints {
		value, err := getIntEnv(field.key, field.def)
		if err != nil {
			return nil, err
		}
		*field.target = value
	}
	config.RateLimit.BurstWindowSeconds = defaults.BurstWindowSeconds

	maxRequestSize, err := strconv.ParseInt(getEnvWithDefault("MAX_REQUEST_SIZE", strconv.FormatInt(security.MaxRequestSize, 10)), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_REQUEST_SIZE value: %w", err)
	}
	security.MaxRequestSize = maxRequestSize

	bools := []struct {
		key    string
		target *bool
		def    bool
	}{
		{"ENABLE_CSRF_PROTECTION", &security.EnableCSRFProtection, security.EnableCSRFProtection},
		{"ENABLE_XSS_PROTECTION", &security.EnableXSSProtection, security.EnableXSSProtection},
		{"ENABLE_CONTENT_TYPE_VALIDATION", &security.EnableContentTypeValidation, security.EnableContentTypeValidation},
		{"TRUSTED_PROXY_HEADERS", &config.TrustProxyHeaders, true},
	}
	for _, field := range bools {
		value, err := getBoolEnv(field.key, field.def)
		if err != nil {
			return nil, err
		}
		*field.target = value
	}

	security.BlockedIPs = splitList(os.Getenv("BLOCKED_IPS"))
	security.BlockedUserAgents = splitList(os.Getenv("BLOCKED_USER_AGENTS"))
	security.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))
	config.Security = security

	return config, nil
}

// validateConfig valida se as configurações são válidas
func (c *ConfigLoader) validateConfig(config *Config) error {
	positives := []struct {
		name  string
		value int64
	}{
		{"RATE_LIMIT_PER_MINUTE", int64(config.RateLimit.RequestsPerMinute)},
		{"RATE_LIMIT_PER_HOUR", int64(config.RateLimit.RequestsPerHour)},
		{"RATE_LIMIT_PER_DAY", int64(config.RateLimit.RequestsPerDay)},
		{"RATE_LIMIT_BURST", int64(config.RateLimit.BurstLimit)},
		{"BLOCK_DURATION", int64(config.RateLimit.BlockDuration)},
		{"MAX_REQUEST_SIZE", config.Security.MaxRequestSize},
		{"CSRF_TOKEN_TTL", int64(config.Security.CSRFTokenTTL)},
		{"EVENT_SINK_CAPACITY", int64(config.EventSinkCapacity)},
	}
	for _, field := range positives {
		if field.value <= 0 {
			return fmt.Errorf("%w: %s must be greater than 0", domain.ErrInvalidConfig, field.name)
		}
	}

	if config.RedisDB < 0 || config.RedisDB > 15 {
		return fmt.Errorf("%w: REDIS_DB must be between 0 and 15", domain.ErrInvalidConfig)
	}

	switch config.EventSink {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("%w: EVENT_SINK must be one of memory, redis, none", domain.ErrInvalidConfig)
	}

	for _, entry := range config.Security.BlockedIPs {
		if !validIPEntry(entry) {
			return fmt.Errorf("%w: BLOCKED_IPS entry %q is not an IP address or CIDR range", domain.ErrInvalidConfig, entry)
		}
	}

	return nil
}

// applyPolicy soma as listas da política às do ambiente, sem duplicar
func applyPolicy(config *Config, policy *SecurityPolicy) {
	overrides := []struct {
		target *int
		value  int
	}{
		{&config.RateLimit.RequestsPerMinute, policy.RateLimit.RequestsPerMinute},
		{&config.RateLimit.RequestsPerHour, policy.RateLimit.RequestsPerHour},
		{&config.RateLimit.RequestsPerDay, policy.RateLimit.RequestsPerDay},
		{&config.RateLimit.BurstLimit, policy.RateLimit.BurstLimit},
		{&config.RateLimit.BlockDuration, policy.RateLimit.BlockDuration},
	}
	for _, o := range overrides {
		if o.value != 0 {
			*o.target = o.value
		}
	}

	security := &config.Security
	security.BlockedIPs = mergeLists(security.BlockedIPs, policy.BlockedIPs)
	security.BlockedUserAgents = mergeLists(security.BlockedUserAgents, policy.BlockedUserAgents)
	security.AllowedOrigins = mergeLists(security.AllowedOrigins, policy.AllowedOrigins)
}

func mergeLists(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	result := make([]string, 0, len(base)+len(extra))

	for _, list := range [][]string{base, extra} {
		for _, item := range list {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			if _, ok := seen[item]; ok {
				continue
			}
			seen[item] = struct{}{}
			result = append(result, item)
		}
	}
	return result
}

func validIPEntry(entry string) bool {
	if strings.Contains(entry, "/") {
		_, _, err := net.ParseCIDR(entry)
		return err == nil
	}
	return net.ParseIP(entry) != nil
}

// splitList separa valores por vírgula; nunca retorna nil
func splitList(value string) []string {
	result := make([]string, 0)
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	return result
}

func lowerAll(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		result = append(result, strings.ToLower(value))
	}
	return result
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// getEnvWithDefault retorna o valor da variável de ambiente ou um valor padrão
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value, err := strconv.Atoi(getEnvWithDefault(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return value, nil
}

func getBoolEnv(key string, defaultValue bool) (bool, error) {
	value, err := strconv.ParseBool(getEnvWithDefault(key, strconv.FormatBool(defaultValue)))
	if err != nil {
		return false, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return value, nil
}
