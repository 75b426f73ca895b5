package devserver

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultHost is the loopback interface used when no host override is provided.
	DefaultHost = "127.0.0.1"
	// DefaultPort matches the client's default api.base_url.
	DefaultPort = 8787
	// DefaultMaxBodyBytes limits request payloads to 64 KB.
	DefaultMaxBodyBytes int64 = 64 << 10
	// DefaultReadTimeout guards hung clients.
	DefaultReadTimeout = 15 * time.Second
	// DefaultWriteTimeout bounds handler writes.
	DefaultWriteTimeout = 15 * time.Second
	// DefaultIdleTimeout bounds keep-alive connections.
	DefaultIdleTimeout = 60 * time.Second
	// DefaultQuestionsPerSession caps how many bank questions a session gets.
	DefaultQuestionsPerSession = 5
)

// Settings captures runtime configuration for the development backend.
type Settings struct {
	Host                string
	Port                int
	Token               string
	BankPath            string
	QuestionsPerSession int
	MaxBodyBytes        int64
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	IdleTimeout         time.Duration
}

// SettingsFromEnv builds Settings from defaults and TRIVIA_DEV_* variables.
func SettingsFromEnv() Settings {
	settings := Settings{
		Host:                DefaultHost,
		Port:                DefaultPort,
		QuestionsPerSession: DefaultQuestionsPerSession,
	}
	settings.applyEnvOverrides()
	settings.normalize()
	return settings
}

func (s *Settings) applyEnvOverrides() {
	if host := strings.TrimSpace(os.Getenv("TRIVIA_DEV_HOST")); host != "" {
		s.Host = host
	}
	if port := strings.TrimSpace(os.Getenv("TRIVIA_DEV_PORT")); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil && isValidPort(parsed) {
			s.Port = parsed
		}
	}
	if token := strings.TrimSpace(os.Getenv("TRIVIA_DEV_TOKEN")); token != "" {
		s.Token = token
	}
	if bank := strings.TrimSpace(os.Getenv("TRIVIA_DEV_BANK")); bank != "" {
		s.BankPath = bank
	}
	if n := strings.TrimSpace(os.Getenv("TRIVIA_DEV_QUESTIONS")); n != "" {
		if parsed, err := strconv.Atoi(n); err == nil && parsed > 0 {
			s.QuestionsPerSession = parsed
		}
	}
}

func (s *Settings) normalize() {
	s.Host = strings.TrimSpace(s.Host)
	if s.Host == "" {
		s.Host = DefaultHost
	}
	if s.Port != 0 && !isValidPort(s.Port) {
		s.Port = DefaultPort
	}
	if s.QuestionsPerSession < 0 {
		s.QuestionsPerSession = DefaultQuestionsPerSession
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
}

// Address returns the TCP bind address in host:port form. Port 0 picks a
// free port.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the HTTP base URL for the server.
func (s Settings) URL() string {
	return "http://" + s.Address()
}

func isValidPort(port int) bool {
	return port > 0 && port <= 65535
}
