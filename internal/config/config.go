// Package config provides configuration loading for blobvault.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Storage       BackendConfig       `mapstructure:"storage"`
	Crypto        CryptoConfig        `mapstructure:"crypto"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	MaxBlobSize int64  `mapstructure:"max_blob_size"`
}

type BackendConfig struct {
	Backend string            `mapstructure:"backend"`
	Config  map[string]string `mapstructure:"config"`
}

type CryptoConfig struct {
	KeyID           string `mapstructure:"key_id"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxEntries  int           `mapstructure:"max_entries"`
	MaxItemSize int           `mapstructure:"max_item_size"`
	TTL         time.Duration `mapstructure:"ttl"`
}

type ObservabilityConfig struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_blob_size", 10<<20)

	v.SetDefault("storage.backend", "s3")

	v.SetDefault("crypto.key_id", "")
	v.SetDefault("crypto.region", "us-east-1")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.max_entries", 100)
	v.SetDefault("cache.max_item_size", 1<<20)
	v.SetDefault("cache.ttl", 5*time.Minute)

	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "text")
}

// BindServeFlags binds cobra flags to viper for the serve command.
func BindServeFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.Flags()
	f.String("addr", "", "HTTP listen address")
	f.String("backend", "", "storage backend (s3, badger, memory)")
	f.String("key-id", "", "KMS key identifier (empty disables encryption)")
	f.String("log-level", "", "log level (debug, info, warn, error)")
	f.String("log-format", "", "log format (json, text)")

	_ = v.BindPFlag("server.addr", f.Lookup("addr"))
	_ = v.BindPFlag("storage.backend", f.Lookup("backend"))
	_ = v.BindPFlag("crypto.key_id", f.Lookup("key-id"))
	_ = v.BindPFlag("observability.log_level", f.Lookup("log-level"))
	_ = v.BindPFlag("observability.log_format", f.Lookup("log-format"))
}

// Load reads config from flags, env, and file, returning the merged Config.
// Environment variables use the BLOBVAULT_ prefix; the bare BUCKET and
// KEY_ID names are honored as well for drop-in compatibility with the
// function-runtime deployment this service descends from.
func Load(v *viper.Viper, configFile string) (Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("BLOBVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("blobvault")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/blobvault")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && configFile != "" {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.Storage.Config == nil {
		cfg.Storage.Config = make(map[string]string)
	}
	if bucket := os.Getenv("BUCKET"); bucket != "" && cfg.Storage.Config["bucket"] == "" {
		cfg.Storage.Config["bucket"] = bucket
	}
	if keyID := os.Getenv("KEY_ID"); keyID != "" && cfg.Crypto.KeyID == "" {
		cfg.Crypto.KeyID = keyID
	}

	return cfg, nil
}
