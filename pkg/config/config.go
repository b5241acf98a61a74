package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cdcbridge/synchdb/pkg/pipeline"
	"github.com/spf13/viper"
)

// Config holds application-wide configuration: the source connectors
// this process runs, the destination it applies to, the connector
// registry's capacity, and the optional CDC-event fanout-sink pipeline.
type Config struct {
	Connectors  []ConnectorConfig `mapstructure:"connectors"`
	Destination DestinationConfig `mapstructure:"destination"`
	Manager     ManagerConfig     `mapstructure:"manager"`
	Admin       AdminConfig       `mapstructure:"admin"`
	Pipeline    pipeline.Config   `mapstructure:"pipeline"`
	Mirror      MirrorConfig      `mapstructure:"mirror"`

	// Postgres carries the bonus postgres-as-source (logical replication)
	// settings the teacher's own cmd/pgo/pipeline.go demo used, kept for
	// the postgres-logrepl connector kind (SPEC_FULL.md §8).
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// ConnectorConfig is one CDC connector's configuration, per spec.md
// §4.I's Config block: which upstream it captures from, how it talks to
// that upstream, and the per-connector error/batch-size knobs.
type ConnectorConfig struct {
	Name  string `mapstructure:"name"`
	Kind  string `mapstructure:"kind"` // "mysql", "sqlserver", "oracle-debezium", "oracle-olr", "postgres-logrepl"
	UseDB bool   `mapstructure:"useDB"`
	Mode  string `mapstructure:"mode"` // "text-sql" (default) or "tuple"

	// SourceConnString is the Debezium/Kafka bootstrap address or OLR
	// redo-log socket address, depending on Kind.
	SourceConnString string `mapstructure:"sourceConnString"`
	Topic            string `mapstructure:"topic"` // Debezium-backed kinds: the CDC topic to consume

	ErrorStrategy   string        `mapstructure:"errorStrategy"` // "skip" (default), "retry", "exit"
	LogEventOnError bool          `mapstructure:"logEventOnError"`
	NaptimeMs       time.Duration `mapstructure:"naptimeMs"`
	MaxBatchSize    int           `mapstructure:"maxBatchSize"`
}

// DestinationConfig configures the single PostgreSQL destination every
// connector applies to.
type DestinationConfig struct {
	ConnString string `mapstructure:"connString"`
}

// ManagerConfig configures the connector registry (spec.md §5).
type ManagerConfig struct {
	MaxConnectors int `mapstructure:"maxConnectors"`
}

// AdminConfig configures the admin surface's HTTP control plane
// (spec.md §6), served by "pgo synchdb run" and called into by every
// other "pgo synchdb <verb>" subcommand.
type AdminConfig struct {
	Addr       string `mapstructure:"addr"`       // default "127.0.0.1:7878"
	ObjmapPath string `mapstructure:"objmapPath"` // default "./objmap.yaml"
}

// MirrorConfig selects which of Pipeline.Peers receive a copy of every
// DML record a connector applies to the destination, post-commit
// (spec.md §3's batch-atomicity invariant only binds the destination
// write and the offset advance; mirroring is a best-effort audit/
// fanout sink on top of that, never a source of truth).
type MirrorConfig struct {
	Peers []string `mapstructure:"peers"`
}

// PostgresConfig is the teacher's original logical-replication source
// settings, retained for the postgres-logrepl connector kind.
type PostgresConfig struct {
	LogReplConnString string `mapstructure:"logrepl_conn_string"`
	Tables            string `mapstructure:"tables"`
}

// GetPeerConfig returns the raw connector-specific configuration for the
// named fanout-sink peer, or nil if no such peer is configured.
func (c *Config) GetPeerConfig(name string) json.RawMessage {
	for _, p := range c.Pipeline.Peers {
		if p.Name == name {
			return p.Config
		}
	}
	return nil
}

// LoadConfig reads config from cfgFile, or from $HOME/.config/pgo.yaml /
// ./pgo.yaml if cfgFile is empty, with PGO_-prefixed environment
// variables overriding any value.
func LoadConfig(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("pgo")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("PGO")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		fmt.Println("Using config file:", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if cfg.Manager.MaxConnectors <= 0 {
		cfg.Manager.MaxConnectors = 30
	}
	if cfg.Admin.Addr == "" {
		cfg.Admin.Addr = "127.0.0.1:7878"
	}
	if cfg.Admin.ObjmapPath == "" {
		cfg.Admin.ObjmapPath = "./objmap.yaml"
	}

	return &cfg, nil
}
