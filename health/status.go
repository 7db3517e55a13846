// Package health reports whether the controller's channels are usable.
//
// Each channel contributes a Status through a Probe. A Monitor evaluates the
// probes on demand, aggregates them and serves the result as JSON.
package health

import (
	"regexp"
	"strings"
	"time"

	"github.com/c360/sensorfusion/bus"
)

// Status values.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

var (
	endpointRegex   = regexp.MustCompile(`(?:tcp|ipc|inproc|nats|https?)://[^\s"]+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}(?::\d{1,5})?\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|secret)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status is the health of one channel or of the whole process.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics are the counters attached to a channel status.
type Metrics struct {
	ErrorCount        int64 `json:"error_count"`
	MessagesProcessed int64 `json:"messages_processed"`
}

// IsHealthy reports whether the status is healthy.
func (s Status) IsHealthy() bool { return s.Status == StatusHealthy }

// IsDegraded reports whether the status is degraded.
func (s Status) IsDegraded() bool { return s.Status == StatusDegraded }

// IsUnhealthy reports whether the status is unhealthy.
func (s Status) IsUnhealthy() bool { return s.Status == StatusUnhealthy }

// WithMetrics returns a copy of s carrying m.
func (s Status) WithMetrics(m *Metrics) Status {
	s.Metrics = m
	return s
}

func newStatus(component, status, message string) Status {
	return Status{
		Component: component,
		Healthy:   status == StatusHealthy,
		Status:    status,
		Message:   sanitize(message),
		Timestamp: time.Now(),
	}
}

// NewHealthy returns a healthy status.
func NewHealthy(component, message string) Status {
	return newStatus(component, StatusHealthy, message)
}

// NewDegraded returns a degraded status. A degraded channel is expected to
// recover on its own.
func NewDegraded(component, message string) Status {
	return newStatus(component, StatusDegraded, message)
}

// NewUnhealthy returns an unhealthy status.
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StatusUnhealthy, message)
}

// FromChannel maps a bus connection state to a status. A channel that is
// reconnecting is degraded; one that has drained is unhealthy because it
// will not come back.
func FromChannel(name string, state bus.State, processed, errs int64) Status {
	var s Status
	switch state {
	case bus.Connected:
		s = NewHealthy(name, "connected")
	case bus.Connecting, bus.Disconnected:
		s = NewDegraded(name, state.String())
	default:
		s = NewUnhealthy(name, "channel stopped")
	}
	return s.WithMetrics(&Metrics{ErrorCount: errs, MessagesProcessed: processed})
}

// Aggregate folds subs into one status named component. Any unhealthy sub
// makes it unhealthy, otherwise any degraded sub makes it degraded.
func Aggregate(component string, subs []Status) Status {
	if len(subs) == 0 {
		return NewHealthy(component, "no channels registered")
	}

	worst := StatusHealthy
	for _, sub := range subs {
		switch {
		case sub.IsUnhealthy():
			worst = StatusUnhealthy
		case sub.IsDegraded() && worst == StatusHealthy:
			worst = StatusDegraded
		}
	}

	var s Status
	switch worst {
	case StatusUnhealthy:
		s = NewUnhealthy(component, "one or more channels are unhealthy")
	case StatusDegraded:
		s = NewDegraded(component, "one or more channels are degraded")
	default:
		s = NewHealthy(component, "all channels are healthy")
	}
	s.SubStatuses = append([]Status(nil), subs...)
	return s
}

// sanitize strips endpoints, addresses and credentials from messages that
// are served over HTTP.
func sanitize(msg string) string {
	if msg == "" {
		return ""
	}
	msg = endpointRegex.ReplaceAllString(msg, "[ENDPOINT]")
	msg = ipAddrRegex.ReplaceAllString(msg, "[IP]")
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "password") || strings.Contains(lower, "token") || strings.Contains(lower, "secret") {
		msg = credentialRegex.ReplaceAllString(msg, "[REDACTED]")
	}
	return msg
}
