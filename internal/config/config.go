package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the API process reads from its environment.
// Nothing outside this package reads raw environment variables.
type Config struct {
	App     AppConfig
	Storage StorageConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Kafka   KafkaConfig
	Review  ReviewConfig
}

type AppConfig struct {
	Env      string
	Port     int
	LogLevel string
}

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type StorageConfig struct {
	// Driver is memory or postgres.
	Driver string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is optional. Without a host the per-auditor claim cap is off.
type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// KafkaConfig is optional. Without brokers outcome events go to the log.
type KafkaConfig struct {
	Brokers     []string
	NotifyTopic string
	ClientID    string
}

type ReviewConfig struct {
	// ClaimLimitPerAuditor caps IN_PROGRESS tasks per auditor when Redis is
	// configured. Zero disables the cap.
	ClaimLimitPerAuditor int
	PolicyFile           string
	OverdueSweepInterval time.Duration
	// NotificationHistory is how many outcome notifications are kept per
	// customer for GET /v1/notifications.
	NotificationHistory int

	// Workflow is read from PolicyFile, or defaults when no file is set.
	Workflow WorkflowPolicy
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(os.Getenv("STORAGE_DRIVER")))
	if c.Storage.Driver == StoragePostgres {
		c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
		c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
		c.DB.Password = os.Getenv("DB_PASSWORD")
		c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
		c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	}

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	if c.Redis.Host != "" {
		n, err := optionalInt("REDIS_PORT", 6379)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Kafka.Brokers = splitList(os.Getenv("KAFKA_BROKERS"))
	c.Kafka.NotifyTopic = strings.TrimSpace(os.Getenv("KAFKA_NOTIFY_TOPIC"))
	c.Kafka.ClientID = strings.TrimSpace(os.Getenv("KAFKA_CLIENT_ID"))

	{
		n, err := optionalInt("CLAIM_LIMIT_PER_AUDITOR", 0)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Review.ClaimLimitPerAuditor = n
	}
	c.Review.OverdueSweepInterval = mustDuration("OVERDUE_SWEEP_INTERVAL")
	{
		n, err := optionalInt("NOTIFICATION_HISTORY_PER_CUSTOMER", 50)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Review.NotificationHistory = n
	}
	c.Review.PolicyFile = strings.TrimSpace(os.Getenv("WORKFLOW_POLICY_FILE"))
	if c.Review.PolicyFile != "" {
		p, err := LoadWorkflowPolicy(c.Review.PolicyFile)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Review.Workflow = p
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// applyDefaults fills optional values. Production must still set DB_SSLMODE
// explicitly; Validate rejects it otherwise.
func (c *Config) applyDefaults() {
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageMemory
	}
	if c.Storage.Driver == StoragePostgres && c.DB.SSLMode == "" && !c.IsProduction() {
		c.DB.SSLMode = "disable"
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.ClientID == "" {
		c.Kafka.ClientID = "bank-risk-audit"
	}
	if c.Review.OverdueSweepInterval <= 0 {
		c.Review.OverdueSweepInterval = 5 * time.Minute
	}
	if c.Review.NotificationHistory <= 0 {
		c.Review.NotificationHistory = 50
	}
}

func (c Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	switch c.Storage.Driver {
	case StorageMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("STORAGE_DRIVER=memory is not allowed in production"))
		}
	case StoragePostgres:
		errs = append(errs, c.DB.validate(c.IsProduction())...)
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER must be memory or postgres, got %q", c.Storage.Driver))
	}

	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}
	if c.Review.ClaimLimitPerAuditor < 0 {
		errs = append(errs, fmt.Errorf("CLAIM_LIMIT_PER_AUDITOR must be >= 0, got %d", c.Review.ClaimLimitPerAuditor))
	}
	if c.Review.ClaimLimitPerAuditor > 0 && c.Redis.Host == "" {
		errs = append(errs, errors.New("CLAIM_LIMIT_PER_AUDITOR requires REDIS_HOST"))
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.NotifyTopic == "" {
		errs = append(errs, errors.New("KAFKA_NOTIFY_TOPIC is required when KAFKA_BROKERS is set"))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if err := c.Review.Workflow.Validate(); err != nil {
		errs = append(errs, err)
	}

	return joinErrors(errs)
}

func (d DBConfig) validate(production bool) []error {
	var errs []error
	if d.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if d.Port <= 0 || d.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if d.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if d.SSLMode == "" && production {
		errs = append(errs, errors.New("DB_SSLMODE is required in production"))
	}
	if d.SSLMode != "" && !isValidSSLMode(d.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", d.SSLMode))
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Contains the password; never log it.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisEnabled() bool { return c.Redis.Host != "" }

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c Config) KafkaEnabled() bool { return len(c.Kafka.Brokers) > 0 }

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string, def int) (int, error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return def, nil
	}
	return mustInt(key)
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
