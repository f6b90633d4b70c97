//go:build linux

package sserelay

import (
	"fmt"
	"os"
	"time"
)

// Status is a snapshot of relay state. It can be serialized to JSON and is
// what the admin handler reports.
type Status struct {
	Node        string             `json:"node"`
	Status      string             `json:"status"`
	Addr        string             `json:"addr"`
	Reported    int64              `json:"reported_at"`
	StartupTime int64              `json:"startup_time"`
	Broadcasts  uint64             `json:"msgs_broadcast"`
	Connections []ConnectionStatus `json:"connections"`
	Closed      []ConnectionStatus `json:"recently_closed"`
}

// Status returns a snapshot of status metadata for the relay. It is safe to
// call from any goroutine.
//
// Primarily intended for logging and reporting.
func (r *Relay) Status() Status {
	return Status{
		Node:        nodeName(),
		Status:      "OK",
		Addr:        r.Addr().String(),
		Reported:    time.Now().Unix(),
		StartupTime: r.startup.Unix(),
		Broadcasts:  r.broadcasts.Load(),
		Connections: r.tracker.openConnections(),
		Closed:      r.tracker.closedConnections(),
	}
}

// nodeName is the host name, prefixed with the platform for parity with the
// other relay implementations.
func nodeName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("go-%s", host)
}
