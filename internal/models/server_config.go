package models

// ServerConfig holds server configuration
type ServerConfig struct {
	Port         string `yaml:"port"`
	Host         string `yaml:"host"`
	Environment  string `yaml:"environment,omitempty"`
	LogLevel     string `yaml:"log_level,omitempty"`
	ReadTimeout  int    `yaml:"read_timeout,omitempty"`
	WriteTimeout int    `yaml:"write_timeout,omitempty"`
}

// IsProduction reports whether the server runs in production mode.
func (s ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}

// Addr returns the listen address, defaulting to :8080.
func (s ServerConfig) Addr() string {
	port := s.Port
	if port == "" {
		port = "8080"
	}
	return s.Host + ":" + port
}
