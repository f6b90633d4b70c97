package sserelay

import (
	"fmt"
	"time"
)

// Policy selects what a connection receives when broadcasts arrive faster
// than it can write them.
type Policy string

const (
	// PolicyLatest keeps a single pending broadcast shared by all
	// connections. A new broadcast replaces the previous one, so a slow
	// client only receives the most recent broadcast once it becomes
	// writable again. A payload already being written is always completed.
	PolicyLatest Policy = "latest"

	// PolicyQueue appends every broadcast to a per-connection backlog.
	// Connections whose backlog grows beyond Config.MaxBacklog are closed.
	PolicyQueue Policy = "queue"
)

// Config holds relay configuration. The zero value is not usable, start from
// DefaultConfig.
type Config struct {
	// Address is the host or IP the listening socket is bound to. Host
	// names are resolved once when the relay is created.
	Address string `yaml:"address"`

	// Port is the TCP port to listen on. Zero picks a free port, use
	// Relay.Addr to find it.
	Port int `yaml:"port"`

	// Backlog is passed to listen(2). Zero or less uses SOMAXCONN.
	Backlog int `yaml:"backlog"`

	// PollTimeout bounds how long a single epoll wait may block. It is
	// also the longest time Run needs to notice context cancellation.
	PollTimeout time.Duration `yaml:"poll_timeout"`

	// MaxEvents is the number of readiness events fetched per poll.
	MaxEvents int `yaml:"max_events"`

	// Reconnect is sent to clients as a "retry:" hint right after the
	// response headers. Setting Reconnect to zero disables the hint.
	Reconnect time.Duration `yaml:"reconnect"`

	// Policy is the broadcast delivery policy, PolicyLatest by default.
	Policy Policy `yaml:"policy"`

	// MaxBacklog limits per-connection backlog length for PolicyQueue.
	MaxBacklog int `yaml:"max_backlog"`

	// HistoryTTL is how long closed connections stay visible in Status.
	HistoryTTL time.Duration `yaml:"history_ttl"`

	// RetryMin and RetryMax bound the backoff used by the queue worker
	// after a failed pop.
	RetryMin time.Duration `yaml:"retry_min"`
	RetryMax time.Duration `yaml:"retry_max"`
}

// DefaultConfig is the recommended relay configuration. It listens on the
// same address as pysse.
var DefaultConfig = Config{
	Address:     "127.0.0.1",
	Port:        1234,
	PollTimeout: 500 * time.Millisecond,
	MaxEvents:   100,
	Policy:      PolicyLatest,
	MaxBacklog:  256,
	HistoryTTL:  5 * time.Minute,
	RetryMin:    100 * time.Millisecond,
	RetryMax:    10 * time.Second,
}

// Validate reports configuration values the relay can not run with.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PollTimeout <= 0 {
		return fmt.Errorf("poll timeout must be positive, got %s", c.PollTimeout)
	}
	if c.MaxEvents <= 0 {
		return fmt.Errorf("max events must be positive, got %d", c.MaxEvents)
	}
	switch c.Policy {
	case PolicyLatest:
	case PolicyQueue:
		if c.MaxBacklog <= 0 {
			return fmt.Errorf("max backlog must be positive for policy %q", c.Policy)
		}
	default:
		return fmt.Errorf("unknown delivery policy %q", c.Policy)
	}
	if c.RetryMin <= 0 || c.RetryMax < c.RetryMin {
		return fmt.Errorf("invalid retry backoff %s..%s", c.RetryMin, c.RetryMax)
	}
	return nil
}
