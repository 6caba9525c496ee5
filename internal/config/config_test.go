package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bank-risk-audit/internal/workflow"
)

func validLocal() Config {
	c := Config{
		App:  AppConfig{Env: "local", Port: 8080},
		Auth: AuthConfig{JWTSecret: "secret"},
	}
	c.applyDefaults()
	return c
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_LocalMemoryDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Storage.Driver != StorageMemory {
		t.Fatalf("expected memory driver default, got %q", c.Storage.Driver)
	}
	if c.Review.OverdueSweepInterval != 5*time.Minute {
		t.Fatalf("unexpected sweep interval %v", c.Review.OverdueSweepInterval)
	}
	if c.Review.NotificationHistory != 50 {
		t.Fatalf("unexpected notification history size %d", c.Review.NotificationHistory)
	}
	if !c.Review.Workflow.ClaimRankCheckEnabled() {
		t.Fatalf("expected claim rank check on by default")
	}
	if !c.Review.Workflow.ExactStageEnabled() {
		t.Fatalf("exact stage should default on")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := Config{
		App:     AppConfig{Env: "production", Port: 8080},
		Storage: StorageConfig{Driver: StoragePostgres},
		DB:      DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "risk"},
		Auth:    AuthConfig{JWTSecret: "secret", JWTIssuer: "iss", JWTAudience: "aud"},
	}
	c.applyDefaults()
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "DB_SSLMODE") {
		t.Fatalf("expected DB_SSLMODE error, got %v", err)
	}
}

func TestValidate_LocalDefaultsSSLMode(t *testing.T) {
	c := validLocal()
	c.Storage.Driver = StoragePostgres
	c.DB = DBConfig{Host: "localhost", Port: 5432, User: "postgres", Name: "risk"}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestValidate_ClaimLimitNeedsRedis(t *testing.T) {
	c := validLocal()
	c.Review.ClaimLimitPerAuditor = 3
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error without redis")
	}
	c.Redis = RedisConfig{Host: "localhost", Port: 6379}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_KafkaNeedsTopic(t *testing.T) {
	c := validLocal()
	c.Kafka.Brokers = []string{"localhost:9092"}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error without topic")
	}
}

func TestLoad_FromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workflow.yaml")
	if err := os.WriteFile(path, []byte("max_rechecks_per_stage: 2\nexact_stage: false\nsla_hours:\n  SENIOR: 12\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("KAFKA_NOTIFY_TOPIC", "risk.outcomes")
	t.Setenv("WORKFLOW_POLICY_FILE", path)

	c, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[1] != "k2:9092" || c.Kafka.ClientID == "" {
		t.Fatalf("unexpected kafka config: %+v", c.Kafka)
	}
	if c.Review.Workflow.MaxRechecksPerStage != 2 || c.Review.Workflow.ExactStageEnabled() {
		t.Fatalf("unexpected workflow policy: %+v", c.Review.Workflow)
	}
}

func TestParseWorkflowPolicy(t *testing.T) {
	p, err := ParseWorkflowPolicy([]byte("sla_hours:\n  JUNIOR: 1\n  MID: 0\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sla := p.SLA(map[workflow.Stage]time.Duration{
		workflow.StageJunior: 2 * time.Hour,
		workflow.StageMid:    4 * time.Hour,
	})
	if sla[workflow.StageJunior] != time.Hour {
		t.Fatalf("override not applied: %v", sla)
	}
	if _, ok := sla[workflow.StageMid]; ok {
		t.Fatalf("zero hours should drop the deadline")
	}

	p, err = ParseWorkflowPolicy([]byte("claim_rank_check: false\n"))
	if err != nil || p.ClaimRankCheckEnabled() {
		t.Fatalf("expected claim rank check off, got %+v err=%v", p, err)
	}

	if _, err := ParseWorkflowPolicy([]byte("sla_hours:\n  BOARD: 3\n")); err == nil {
		t.Fatalf("expected unknown stage error")
	}
	if _, err := ParseWorkflowPolicy([]byte("max_retries: 3\n")); err == nil {
		t.Fatalf("expected unknown key error")
	}
}
