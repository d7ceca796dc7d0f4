package models

// ProviderConfig holds configuration for one LLM provider backend
type ProviderConfig struct {
	APIKey    string            `yaml:"api_key" json:"api_key,omitzero"`
	BaseURL   string            `yaml:"base_url" json:"base_url,omitzero"`
	TimeoutMs int               `yaml:"timeout_ms" json:"timeout_ms,omitzero"`
	Headers   map[string]string `yaml:"headers" json:"headers,omitzero"`
}

// CacheConfig holds configuration for the two-tier result cache
type CacheConfig struct {
	Enabled           bool    `yaml:"enabled" json:"enabled"`
	TTLSeconds        int     `yaml:"ttl_seconds" json:"ttl_seconds,omitzero"`
	SemanticEnabled   bool    `yaml:"semantic_enabled" json:"semantic_enabled"`
	SemanticThreshold float64 `yaml:"semantic_threshold" json:"semantic_threshold,omitzero"`
	SweepSeconds      int     `yaml:"sweep_seconds" json:"sweep_seconds,omitzero"`
}

// ExecutorConfig holds configuration for the resilient execution wrapper
type ExecutorConfig struct {
	MinIntervalMs    int `yaml:"min_interval_ms" json:"min_interval_ms,omitzero"`
	DefaultTimeoutMs int `yaml:"default_timeout_ms" json:"default_timeout_ms,omitzero"`
	MaxRetries       int `yaml:"max_retries" json:"max_retries,omitzero"`
	BackoffBaseMs    int `yaml:"backoff_base_ms" json:"backoff_base_ms,omitzero"`
}

// CircuitBreakerConfig holds per-provider circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled          bool `yaml:"enabled" json:"enabled"`
	FailureThreshold int  `yaml:"failure_threshold" json:"failure_threshold,omitzero"`
	SuccessThreshold int  `yaml:"success_threshold" json:"success_threshold,omitzero"`
	OpenTimeoutMs    int  `yaml:"open_timeout_ms" json:"open_timeout_ms,omitzero"`
}

// DispatchConfig holds the dispatcher's registered profiles and policy defaults
type DispatchConfig struct {
	Profiles          []CapabilityProfile  `yaml:"profiles" json:"profiles"`
	EmbeddingProvider string               `yaml:"embedding_provider" json:"embedding_provider,omitzero"`
	EmbeddingModel    string               `yaml:"embedding_model" json:"embedding_model,omitzero"`
	Cache             CacheConfig          `yaml:"cache" json:"cache"`
	Executor          ExecutorConfig       `yaml:"executor" json:"executor"`
	CircuitBreaker    CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
}

// RedisConfig holds configuration for Redis
type RedisConfig struct {
	URL string `yaml:"url" json:"url,omitzero"`
}

// DatabaseConfig holds configuration for the audit log database
type DatabaseConfig struct {
	Driver string `yaml:"driver" json:"driver,omitzero"` // "postgres", "mysql" or "sqlite"
	DSN    string `yaml:"dsn" json:"dsn,omitzero"`
}

// AuthConfig holds configuration for the HTTP auth middleware
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" json:"-"`
}
