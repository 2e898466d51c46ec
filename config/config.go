package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/upb/api-gateway/access"
	"github.com/upb/api-gateway/jwtauth"
	"github.com/upb/api-gateway/proxy"
	"github.com/upb/api-gateway/utils"
)

// Default gateway layout: token endpoint and user registration are open,
// everything else needs a bearer token.
const (
	DefaultRouteRules = "* /api/security/oauth/token public;" +
		"GET /api/usuario/** public;" +
		"POST /api/usuario/crearUsuario public"
	DefaultUpstreams = "/api/security=http://localhost:9100;" +
		"/api/usuario=http://localhost:8001"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	JWT           JWTConfig
	Gateway       GatewayConfig
	CORS          CORSConfig
	Observability ObservabilityConfig
	Environment   string `validate:"required"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int           `validate:"gt=0,max=65535"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	IdleTimeout     time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

// JWTConfig holds the token verification settings. SigningKey is never logged.
type JWTConfig struct {
	SigningKey       string
	SigningKeyFile   string
	Algorithm        string        `validate:"required"`
	ClockSkew        time.Duration `validate:"gte=0"`
	Issuer           string
	Audience         string
	AuthoritiesClaim string `validate:"required"`
}

// GatewayConfig holds the parsed route rules and upstream table
type GatewayConfig struct {
	RouteRules []access.RoutePattern
	Upstreams  []proxy.Route
}

// CORSConfig holds the cross-origin settings handed to go-chi/cors
type CORSConfig struct {
	AllowedOrigins   []string `validate:"required,min=1"`
	AllowedMethods   []string `validate:"required,min=1"`
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int `validate:"gte=0"`
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string `validate:"required,oneof=debug info warn error"`
	LogFormat      string `validate:"required,oneof=json text console"`
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	rules, err := access.ParseRules(getEnv("GATEWAY_ROUTE_RULES", DefaultRouteRules))
	if err != nil {
		return nil, fmt.Errorf("invalid GATEWAY_ROUTE_RULES: %w", err)
	}

	upstreams, err := proxy.ParseRoutes(getEnv("GATEWAY_UPSTREAMS", DefaultUpstreams))
	if err != nil {
		return nil, fmt.Errorf("invalid GATEWAY_UPSTREAMS: %w", err)
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		JWT: JWTConfig{
			SigningKey:       os.Getenv("JWT_SIGNING_KEY"),
			SigningKeyFile:   getEnv("JWT_SIGNING_KEY_FILE", ""),
			Algorithm:        getEnv("JWT_ALGORITHM", "HS256"),
			ClockSkew:        getEnvAsDuration("JWT_CLOCK_SKEW", jwtauth.DefaultClockSkew),
			Issuer:           getEnv("JWT_ISSUER", ""),
			Audience:         getEnv("JWT_AUDIENCE", ""),
			AuthoritiesClaim: getEnv("JWT_AUTHORITIES_CLAIM", jwtauth.DefaultAuthoritiesClaim),
		},
		Gateway: GatewayConfig{
			RouteRules: rules,
			Upstreams:  upstreams,
		},
		CORS: CORSConfig{
			AllowedOrigins:   getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*"}),
			AllowedMethods:   getEnvAsList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders:   getEnvAsList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
			AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           getEnvAsInt("CORS_MAX_AGE", 300),
		},
		Observability: ObservabilityConfig{
			LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
			LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "json")),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks struct constraints and the cross-field rules
func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return err
	}

	// Signing key: exactly one source
	switch {
	case c.JWT.SigningKey == "" && c.JWT.SigningKeyFile == "":
		return fmt.Errorf("signing key is required: set JWT_SIGNING_KEY or JWT_SIGNING_KEY_FILE")
	case c.JWT.SigningKey != "" && c.JWT.SigningKeyFile != "":
		return fmt.Errorf("set only one of JWT_SIGNING_KEY and JWT_SIGNING_KEY_FILE")
	}

	if !isSupportedAlgorithm(c.JWT.Algorithm) {
		return fmt.Errorf("unsupported JWT_ALGORITHM %q (supported: %s)",
			c.JWT.Algorithm, strings.Join(jwtauth.SupportedAlgorithms, ", "))
	}

	// go-chi/cors reflects any origin matching a pattern, so with credentials
	// every origin has to be listed exactly
	if c.CORS.AllowCredentials {
		for _, origin := range c.CORS.AllowedOrigins {
			if strings.Contains(origin, "*") {
				return fmt.Errorf("CORS_ALLOWED_ORIGINS entry %q is a wildcard and cannot be combined with CORS_ALLOW_CREDENTIALS=true", origin)
			}
		}
	}

	if c.IsProduction() && len(c.Gateway.Upstreams) == 0 {
		return fmt.Errorf("at least one upstream is required in production")
	}

	return nil
}

// LoadSigningKey reads the key material from the configured source and
// parses it for the configured algorithm. It is called at startup and on
// every reload.
func (c *JWTConfig) LoadSigningKey() (*jwtauth.SigningKey, error) {
	material := []byte(c.SigningKey)
	if c.SigningKeyFile != "" {
		data, err := os.ReadFile(c.SigningKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read signing key file: %w", err)
		}
		material = data
	}

	key, err := jwtauth.ParseSigningKey(c.Algorithm, material)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	return key, nil
}

// ExtractorConfig returns the claim validation settings
func (c *JWTConfig) ExtractorConfig() jwtauth.ExtractorConfig {
	return jwtauth.ExtractorConfig{
		ClockSkew:        c.ClockSkew,
		AuthoritiesClaim: c.AuthoritiesClaim,
		Issuer:           c.Issuer,
		Audience:         c.Audience,
	}
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func isSupportedAlgorithm(alg string) bool {
	for _, a := range jwtauth.SupportedAlgorithms {
		if a == alg {
			return true
		}
	}
	return false
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8090)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8090
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated value, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
