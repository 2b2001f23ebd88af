// Package config holds the single configuration record for both the Hub
// and the Client Runtime, with every recognized option enumerated rather
// than scattered through ad-hoc environment lookups.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ClassifierRule is one row of the Request Classifier's data-driven table:
// a keyword heuristic mapped to a wait budget and a specialist agent.
type ClassifierRule struct {
	Class      string   `yaml:"class"`
	Keywords   []string `yaml:"keywords"`
	WaitMs     int      `yaml:"waitMs"`
	Specialist string   `yaml:"specialist"`
}

// DefaultClassifierTable is the §4.10 table: media-creation, news-query,
// automation, and the general fallback. It is data, edited here or in a
// config file, never hard-coded into the dispatch loop.
func DefaultClassifierTable() []ClassifierRule {
	return []ClassifierRule{
		{Class: "media-creation", Keywords: []string{"song", "music", "compose", "track"}, WaitMs: 60000, Specialist: "media-creation"},
		{Class: "news-query", Keywords: []string{"news", "latest", "headline"}, WaitMs: 15000, Specialist: "news"},
		{Class: "automation", Keywords: []string{"upload", "comment", "quota"}, WaitMs: 30000, Specialist: "automation"},
		{Class: "general", Keywords: nil, WaitMs: 20000, Specialist: ""},
	}
}

// HubConfig is the Hub's recognized configuration surface.
type HubConfig struct {
	HTTP struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"http"`
	Socket struct {
		Path    string `yaml:"path"`
		Enabled bool   `yaml:"enabled"`
	} `yaml:"socket"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	// MaxWaitMs is T_max from §4.5 — waitForMentions timeouts above this
	// value fail with TimeoutTooLarge.
	MaxWaitMs int `yaml:"maxWaitMs"`

	// MentionBufferCap is the soft cap B on a per-agent mention buffer.
	MentionBufferCap int `yaml:"mentionBufferCap"`

	// ReconnectGraceWindow is how long a disconnected session's registry
	// entry and mention buffer survive before the agent is fully evicted.
	ReconnectGraceWindow time.Duration `yaml:"reconnectGraceWindow"`

	// PushChannelCap is the per-session downstream frame channel bound of
	// §4.1. The registry does not read it: every downstream channel is
	// created with a fixed capacity of 256 frames, the default here.
	PushChannelCap int `yaml:"pushChannelCap"`

	// DedupeWindow bounds how long a client-generated correlation id is
	// remembered for createThread/sendMessage deduplication (§4.11).
	DedupeWindow time.Duration `yaml:"dedupeWindow"`

	// SessionSigningKey signs the JWT handed back on openSession and
	// presented again on every /rpc call, scoping a session to its application.
	SessionSigningKey string `yaml:"sessionSigningKey"`

	Classifier []ClassifierRule `yaml:"classifier"`
}

// DefaultHubConfig enumerates every recognized Hub option.
func DefaultHubConfig() HubConfig {
	var cfg HubConfig
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 8080
	cfg.Socket.Path = "/tmp/meshhub.sock"
	cfg.Socket.Enabled = true
	cfg.Logging.Level = "info"
	cfg.MaxWaitMs = 60000
	cfg.MentionBufferCap = 1024
	cfg.ReconnectGraceWindow = 30 * time.Second
	cfg.PushChannelCap = 256
	cfg.DedupeWindow = 30 * time.Second
	cfg.SessionSigningKey = "dev-only-meshhub-signing-key"
	cfg.Classifier = DefaultClassifierTable()
	return cfg
}

// LoadHubConfig reads a YAML file at path, falling back to defaults for
// any field the file leaves unset. An empty path returns the defaults.
func LoadHubConfig(path string) (HubConfig, error) {
	cfg := DefaultHubConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// KeepaliveMode is the recognized enum for RuntimeConfig.KeepaliveMode (§4.8).
type KeepaliveMode string

const (
	KeepaliveOff    KeepaliveMode = "off"
	KeepaliveActive KeepaliveMode = "active"
)

// RuntimeConfig is the Client Runtime's recognized configuration surface,
// populated from the environment variables enumerated in §6.
type RuntimeConfig struct {
	HubURL                string
	AgentId               string
	KeepaliveMode         KeepaliveMode
	KeepaliveIntervalMs   int
	WaitTimeoutMs         int
	ReconnectMaxBackoffMs int
}

// LoadRuntimeConfigFromEnv reads HUB_URL, AGENT_ID, KEEPALIVE_MODE,
// KEEPALIVE_INTERVAL_MS, WAIT_TIMEOUT_MS, and RECONNECT_MAX_BACKOFF_MS,
// applying the defaults documented in §4.8 and §6 for anything unset.
func LoadRuntimeConfigFromEnv() RuntimeConfig {
	cfg := RuntimeConfig{
		HubURL:                os.Getenv("HUB_URL"),
		AgentId:               os.Getenv("AGENT_ID"),
		KeepaliveMode:         KeepaliveOff,
		KeepaliveIntervalMs:   3000,
		WaitTimeoutMs:         20000,
		ReconnectMaxBackoffMs: 16000,
	}
	if mode := os.Getenv("KEEPALIVE_MODE"); mode == string(KeepaliveActive) {
		cfg.KeepaliveMode = KeepaliveActive
	}
	if v := envInt("KEEPALIVE_INTERVAL_MS"); v > 0 {
		cfg.KeepaliveIntervalMs = v
	}
	if v := envInt("WAIT_TIMEOUT_MS"); v > 0 {
		cfg.WaitTimeoutMs = v
	}
	if v := envInt("RECONNECT_MAX_BACKOFF_MS"); v > 0 {
		cfg.ReconnectMaxBackoffMs = v
	}
	return cfg
}

func envInt(name string) int {
	v, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		return 0
	}
	return v
}
