// Package config loads the coordinator's runtime configuration from
// environment variables, in the teacher pack's viper idiom (see
// SahilParikh03-Caesar-Trade-master's internal/config).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds every setting the coordinator binary needs at startup.
type Config struct {
	Env         string `mapstructure:"env"`
	HTTPListen  string `mapstructure:"http_listen"`
	MetricsAddr string `mapstructure:"metrics_listen"`
	LogLevel    string `mapstructure:"log_level"`

	DB       DBConfig
	Shares   SharesConfig
	KMS      KMSConfig
	Chain    ChainConfig
	Policy   PolicyConfig
	Session  SessionConfig
}

// DBConfig holds PostgreSQL connection settings for the signer and audit
// repositories, which have no non-Postgres implementation in this repo.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// SharesConfig selects and configures the share store backend.
type SharesConfig struct {
	Backend     string `mapstructure:"backend"` // "file" or "postgres"
	FileDir     string `mapstructure:"file_dir"`
	DatabaseURL string `mapstructure:"database_url"`
	// StaticPassword is the fallback encryption password when KMS is not
	// configured. Production deployments should set KMS instead.
	StaticPassword string `mapstructure:"static_password"`
}

// KMSConfig configures envelope-decryption of the share-store password via
// AWS KMS. CiphertextBlobHex is empty when KMS is unused.
type KMSConfig struct {
	Region            string `mapstructure:"region"`
	LocalEndpoint     string `mapstructure:"local_endpoint"`
	CiphertextBlobHex string `mapstructure:"ciphertext_blob_hex"`
}

// ChainConfig points the chain.Adapter at an RPC endpoint.
type ChainConfig struct {
	RPCURL string `mapstructure:"rpc_url"`
}

// PolicyConfig selects the Rules Engine: a rules document path, or a flat
// legacy max-value-wei fallback when unset.
type PolicyConfig struct {
	RulesFile        string `mapstructure:"rules_file"`
	LegacyMaxValueWei string `mapstructure:"legacy_max_value_wei"`
}

// SessionConfig tunes the Session Table.
type SessionConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent"`
	TTLSeconds    int `mapstructure:"ttl_seconds"`
	SweepSeconds  int `mapstructure:"sweep_seconds"`
}

// Load reads configuration from environment variables prefixed with SIGNER_,
// following the teacher pack's viper-with-defaults pattern.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SIGNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("env", "development")
	v.SetDefault("http_listen", "0.0.0.0:8080")
	v.SetDefault("metrics_listen", "0.0.0.0:9090")
	v.SetDefault("log_level", "info")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "signer")
	v.SetDefault("db.password", "signer")
	v.SetDefault("db.dbname", "signer")
	v.SetDefault("db.sslmode", "disable")

	v.SetDefault("shares.backend", "file")
	v.SetDefault("shares.file_dir", "./data/shares")
	v.SetDefault("shares.static_password", "development-password-change-in-production")

	v.SetDefault("kms.region", "us-east-1")

	v.SetDefault("chain.rpc_url", "")

	v.SetDefault("session.max_concurrent", 1000)
	v.SetDefault("session.ttl_seconds", 120)
	v.SetDefault("session.sweep_seconds", 10)

	cfg := &Config{
		Env:         v.GetString("env"),
		HTTPListen:  v.GetString("http_listen"),
		MetricsAddr: v.GetString("metrics_listen"),
		LogLevel:    v.GetString("log_level"),

		DB: DBConfig{
			Host:     v.GetString("db.host"),
			Port:     v.GetInt("db.port"),
			User:     v.GetString("db.user"),
			Password: v.GetString("db.password"),
			DBName:   v.GetString("db.dbname"),
			SSLMode:  v.GetString("db.sslmode"),
		},
		Shares: SharesConfig{
			Backend:        v.GetString("shares.backend"),
			FileDir:        v.GetString("shares.file_dir"),
			DatabaseURL:    v.GetString("shares.database_url"),
			StaticPassword: v.GetString("shares.static_password"),
		},
		KMS: KMSConfig{
			Region:            v.GetString("kms.region"),
			LocalEndpoint:     v.GetString("kms.local_endpoint"),
			CiphertextBlobHex: v.GetString("kms.ciphertext_blob_hex"),
		},
		Chain: ChainConfig{
			RPCURL: v.GetString("chain.rpc_url"),
		},
		Policy: PolicyConfig{
			RulesFile:         v.GetString("policy.rules_file"),
			LegacyMaxValueWei: v.GetString("policy.legacy_max_value_wei"),
		},
		Session: SessionConfig{
			MaxConcurrent: v.GetInt("session.max_concurrent"),
			TTLSeconds:    v.GetInt("session.ttl_seconds"),
			SweepSeconds:  v.GetInt("session.sweep_seconds"),
		},
	}

	if cfg.Chain.RPCURL == "" {
		return nil, fmt.Errorf("config: SIGNER_CHAIN_RPC_URL is required")
	}

	return cfg, nil
}
