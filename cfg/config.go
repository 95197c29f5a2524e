package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// DaemonConfiguration controls the connection to the wallet daemon
type DaemonConfiguration struct {
	NatsURL            string `toml:"nats_url"`
	WalletService      string `toml:"wallet_service"`       // Service name the wallet daemon answers on
	OriginService      string `toml:"origin_service"`       // Service name this client identifies as
	CallTimeoutMS      int    `toml:"call_timeout_ms"`      // Request/reply timeout
	SubscribeTimeoutMS int    `toml:"subscribe_timeout_ms"` // Subscribe acknowledgment timeout
}

// CacheConfiguration controls the query result cache
type CacheConfiguration struct {
	RetentionSize    int `toml:"retention_size"`    // Evicted values kept for stale reads
	RetentionSeconds int `toml:"retention_seconds"` // How long an idle entry survives without consumers
}

// SyncConfiguration controls push-driven cache synchronization
type SyncConfiguration struct {
	DedupeEnabled  bool `toml:"dedupe_enabled"`  // Drop redelivered pushes after reconnect
	DedupeCapacity int  `toml:"dedupe_capacity"` // Approximate distinct pushes tracked
}

// CompressionConfiguration controls payload compression on the wire
type CompressionConfiguration struct {
	Level        int `toml:"level"`          // 0=off, 1=fastest, 2=default, 3=better, 4=best
	MinSizeBytes int `toml:"min_size_bytes"` // Payloads below this are sent uncompressed
}

// AdminConfiguration for the read API
type AdminConfiguration struct {
	Enabled     bool   `toml:"enabled"`
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Port    int    `toml:"port"`
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// Configuration is the root config
type Configuration struct {
	ClientID uint64 `toml:"client_id"`

	Daemon      DaemonConfiguration      `toml:"daemon"`
	Cache       CacheConfiguration       `toml:"cache"`
	Sync        SyncConfiguration        `toml:"sync"`
	Compression CompressionConfiguration `toml:"compression"`
	Admin       AdminConfiguration       `toml:"admin"`
	Prometheus  PrometheusConfiguration  `toml:"prometheus"`
	Logging     LoggingConfiguration     `toml:"logging"`
}

var (
	ConfigPathFlag = flag.String("config", "", "Path to TOML configuration file")
	NatsURLFlag    = flag.String("nats-url", "", "NATS server URL (overrides config)")
	VerboseFlag    = flag.Bool("verbose", false, "Enable debug logging")
)

// Config holds the loaded configuration with defaults applied
var Config = &Configuration{
	Daemon: DaemonConfiguration{
		NatsURL:            "nats://127.0.0.1:4222",
		WalletService:      "llc_wallet",
		OriginService:      "wallet_ui",
		CallTimeoutMS:      5000, // Daemon replies are local, 5s is generous
		SubscribeTimeoutMS: 5000,
	},
	Cache: CacheConfiguration{
		RetentionSize:    256,
		RetentionSeconds: 60,
	},
	Sync: SyncConfiguration{
		DedupeEnabled:  true,
		DedupeCapacity: 1 << 20,
	},
	Compression: CompressionConfiguration{
		Level:        2,
		MinSizeBytes: 1024,
	},
	Admin: AdminConfiguration{
		Enabled:     true,
		BindAddress: "127.0.0.1",
		Port:        8575,
	},
	Prometheus: PrometheusConfiguration{
		Enabled: true,
		Address: "127.0.0.1",
		Port:    9090,
	},
	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	// Apply CLI overrides
	if *NatsURLFlag != "" {
		Config.Daemon.NatsURL = *NatsURLFlag
	}
	if *VerboseFlag {
		Config.Logging.Verbose = true
	}

	// Auto-generate client ID if not set
	if Config.ClientID == 0 {
		var err error
		Config.ClientID, err = generateClientID()
		if err != nil {
			return fmt.Errorf("failed to generate client ID: %w", err)
		}
		log.Info().Uint64("client_id", Config.ClientID).Msg("Auto-generated client ID")
	}

	return nil
}

// generateClientID creates a unique client ID based on machine ID
func generateClientID() (uint64, error) {
	id, err := machineid.ProtectedID("lambosync")
	if err != nil {
		return 0, err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64(), nil
}

// Validate checks configuration for errors
func Validate() error {
	if Config.Daemon.NatsURL == "" {
		return fmt.Errorf("daemon.nats_url is required")
	}
	if Config.Daemon.WalletService == "" {
		return fmt.Errorf("daemon.wallet_service is required")
	}
	if Config.Daemon.CallTimeoutMS <= 0 {
		return fmt.Errorf("daemon.call_timeout_ms must be positive")
	}
	if Config.Cache.RetentionSize < 0 {
		return fmt.Errorf("cache.retention_size must not be negative")
	}
	if Config.Compression.Level < 0 || Config.Compression.Level > 4 {
		return fmt.Errorf("invalid compression level: %d (must be 0-4)", Config.Compression.Level)
	}
	if Config.Sync.DedupeEnabled && Config.Sync.DedupeCapacity <= 0 {
		return fmt.Errorf("sync.dedupe_capacity must be positive when dedupe is enabled")
	}
	if Config.Admin.Enabled && (Config.Admin.Port < 1 || Config.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", Config.Admin.Port)
	}
	if Config.Prometheus.Enabled && (Config.Prometheus.Port < 1 || Config.Prometheus.Port > 65535) {
		return fmt.Errorf("invalid prometheus port: %d", Config.Prometheus.Port)
	}
	return nil
}
