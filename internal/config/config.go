// internal/config/config.go
//
// This package handles configuration and the ~/.trivia directory structure.
// The session lock, the session snapshot and the journey log all live there.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/trivia-terminal/internal/lock"
	"github.com/kingrea/trivia-terminal/internal/session"
)

const (
	// TriviaDir is the directory created under the user's home.
	TriviaDir = ".trivia"

	defaultBaseURL = "http://127.0.0.1:8787"
)

const defaultProjectConfigYAML = `# trivia configuration
version: 1

api:
  base_url: http://127.0.0.1:8787
  timeout: 10s
  # token: set TRIVIA_API_TOKEN instead of committing it here

session:
  question_units: 10
  tick: 1s
  feedback_dwell: 2s
  auto_advance: true
  # resume adopts a locked session for the same category, fresh discards it.
  recovery: resume
  # refuse keeps an existing lock for another session, overwrite replaces it.
  lock_policy: refuse

polling:
  interval: 3s

wallet:
  address: ""
`

// APIConfig points the client at the backend.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Token   string        `yaml:"token,omitempty"`
}

// SessionConfig captures countdown, dwell and recovery preferences.
type SessionConfig struct {
	QuestionUnits int           `yaml:"question_units"`
	Tick          time.Duration `yaml:"tick"`
	FeedbackDwell time.Duration `yaml:"feedback_dwell"`
	AutoAdvance   *bool         `yaml:"auto_advance,omitempty"`
	Recovery      string        `yaml:"recovery"`
	LockPolicy    string        `yaml:"lock_policy"`
}

// PollingConfig controls mint and forge status polling.
type PollingConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// WalletConfig holds the address rewards are minted to.
type WalletConfig struct {
	Address string `yaml:"address"`
}

// ProjectConfig models ~/.trivia/config.yaml.
type ProjectConfig struct {
	Version int           `yaml:"version"`
	API     APIConfig     `yaml:"api"`
	Session SessionConfig `yaml:"session"`
	Polling PollingConfig `yaml:"polling"`
	Wallet  WalletConfig  `yaml:"wallet"`
}

// Config holds the runtime configuration for the client.
type Config struct {
	// Home is the ~/.trivia directory, or TRIVIA_HOME when set.
	Home string

	Project ProjectConfig
}

// DefaultHome resolves the trivia directory: TRIVIA_HOME wins, then
// $HOME/.trivia.
func DefaultHome() (string, error) {
	if home := strings.TrimSpace(os.Getenv("TRIVIA_HOME")); home != "" {
		return filepath.Clean(home), nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home: %w", err)
	}
	return filepath.Join(userHome, TriviaDir), nil
}

// InitTriviaDir creates the directory structure in home.
//
// Structure created:
// ~/.trivia/
// ├── config.yaml
// ├── logs/    <- journey.log
// └── state/   <- session lock and snapshot
func InitTriviaDir(home string) error {
	dirs := []string{
		filepath.Join(home, "logs"),
		filepath.Join(home, "state"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(home, "config.yaml"))
}

// LoadEnv reads .env files into the process environment without overriding
// variables that are already set. Missing files are ignored.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("config: load %s: %w", path, err)
		}
	}
	return nil
}

// NewConfig loads home/config.yaml and applies environment overrides.
func NewConfig(home string) (*Config, error) {
	cfg := &Config{
		Home:    home,
		Project: defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	cfg.Project.applyEnv()
	if err := cfg.Project.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.Home, "logs")
}

// LogPath returns the journey log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.LogsDir(), "journey.log")
}

// StateDir returns the path to the state directory
func (c *Config) StateDir() string {
	return filepath.Join(c.Home, "state")
}

// ProjectConfigPath returns the on-disk location for the config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.Home, "config.yaml")
}

// SessionConfig converts the session section for the orchestrator.
func (c *Config) SessionConfig() session.Config {
	s := c.Project.Session
	recovery, _ := session.ParseRecoveryPolicy(s.Recovery)
	return session.Config{
		QuestionUnits: s.QuestionUnits,
		TickUnit:      s.Tick,
		FeedbackDwell: s.FeedbackDwell,
		AutoAdvance:   s.AutoAdvance == nil || *s.AutoAdvance,
		Recovery:      recovery,
	}
}

// LockPolicy returns the configured acquire policy.
func (c *Config) LockPolicy() lock.Policy {
	policy, _ := lock.ParsePolicy(c.Project.Session.LockPolicy)
	return policy
}

// PollInterval returns the mint and forge polling interval.
func (c *Config) PollInterval() time.Duration {
	return c.Project.Polling.Interval
}

// WalletAddress returns the configured reward wallet.
func (c *Config) WalletAddress() string {
	return c.Project.Wallet.Address
}

// SetWalletAddress updates the reward wallet and writes it to config.yaml.
// Only wallet.address changes on disk.
func (c *Config) SetWalletAddress(address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("config: wallet address is required")
	}
	if err := c.saveWalletAddress(address); err != nil {
		return err
	}
	c.Project.Wallet.Address = address
	return nil
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.API.BaseURL) == "" {
		pc.API.BaseURL = defaultBaseURL
	}
	if pc.API.Timeout == 0 {
		pc.API.Timeout = 10 * time.Second
	}
	def := session.DefaultConfig()
	if pc.Session.QuestionUnits == 0 {
		pc.Session.QuestionUnits = def.QuestionUnits
	}
	if pc.Session.Tick == 0 {
		pc.Session.Tick = def.TickUnit
	}
	if pc.Session.FeedbackDwell == 0 {
		pc.Session.FeedbackDwell = def.FeedbackDwell
	}
	if pc.Session.Recovery == "" {
		pc.Session.Recovery = string(def.Recovery)
	}
	if pc.Session.LockPolicy == "" {
		pc.Session.LockPolicy = string(lock.PolicyRefuse)
	}
	if pc.Polling.Interval == 0 {
		pc.Polling.Interval = 3 * time.Second
	}
}

func (pc *ProjectConfig) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("TRIVIA_API_URL")); v != "" {
		pc.API.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("TRIVIA_API_TOKEN")); v != "" {
		pc.API.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("TRIVIA_RECOVERY")); v != "" {
		pc.Session.Recovery = v
	}
	if v := strings.TrimSpace(os.Getenv("TRIVIA_WALLET")); v != "" {
		pc.Wallet.Address = v
	}
	pc.normalize()
}

func (pc *ProjectConfig) normalize() {
	pc.API.BaseURL = strings.TrimRight(strings.TrimSpace(pc.API.BaseURL), "/")
	pc.API.Token = strings.TrimSpace(pc.API.Token)
	pc.Session.Recovery = normalizeName(pc.Session.Recovery)
	pc.Session.LockPolicy = normalizeName(pc.Session.LockPolicy)
	pc.Wallet.Address = strings.TrimSpace(pc.Wallet.Address)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if !strings.HasPrefix(pc.API.BaseURL, "http://") && !strings.HasPrefix(pc.API.BaseURL, "https://") {
		return fmt.Errorf("api.base_url must be an http(s) URL")
	}
	if pc.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}
	if pc.Session.QuestionUnits < 1 {
		return fmt.Errorf("session.question_units must be >= 1")
	}
	if pc.Session.Tick <= 0 || pc.Session.FeedbackDwell <= 0 {
		return fmt.Errorf("session.tick and session.feedback_dwell must be positive")
	}
	if _, err := session.ParseRecoveryPolicy(pc.Session.Recovery); err != nil {
		return fmt.Errorf("session.recovery: %w", err)
	}
	if _, err := lock.ParsePolicy(pc.Session.LockPolicy); err != nil {
		return fmt.Errorf("session.lock_policy: %w", err)
	}
	if pc.Polling.Interval <= 0 {
		return fmt.Errorf("polling.interval must be positive")
	}
	return nil
}

func normalizeName(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}

// saveWalletAddress edits wallet.address in config.yaml as written on disk.
// Environment overrides live only in memory and never reach the file.
func (c *Config) saveWalletAddress(address string) error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte(defaultProjectConfigYAML)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("config: %s is not a mapping", path)
	}
	wallet := mappingValue(doc.Content[0], "wallet")
	if wallet.Kind != yaml.MappingNode {
		*wallet = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}
	addr := mappingValue(wallet, "address")
	*addr = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: address, LineComment: addr.LineComment}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.MkdirAll(c.Home, 0o755); err != nil {
		return fmt.Errorf("config: ensure trivia dir: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("config: write config: %w", err)
	}
	return nil
}

// mappingValue returns the value node for key, appending an empty one when
// the key is absent.
func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null"},
	)
	return m.Content[len(m.Content)-1]
}
