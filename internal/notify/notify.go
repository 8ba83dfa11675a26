// Package notify delivers deployment results to email and chat channels.
//
// Delivery is best effort: every configured channel gets exactly one
// attempt, channels are independent of one another, and failures are
// logged rather than returned.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Kind identifies a notification channel. The values double as the
// configuration keys.
type Kind string

const (
	Email      Kind = "email"
	Slack      Kind = "slack_webhook"
	Mattermost Kind = "mattermost_webhook"
)

// Destinations maps a channel to its address or webhook URL.
type Destinations map[Kind]string

const (
	StatusSuccess = "Success"
	StatusFailed  = "Failed"
)

// DefaultSendTimeout bounds a single channel send.
const DefaultSendTimeout = 10 * time.Second

// ErrNotConfigured is returned by senders that lack the credentials they need.
var ErrNotConfigured = errors.New("notification channel not configured")

// Message is the deployment summary sent to every channel.
type Message struct {
	ID            string
	Project       string
	Status        string
	Ref           string
	Commit        string
	Pusher        string
	FailedCommand string
	// FailedIndex is the zero-based index of the failed command, -1 if none.
	FailedIndex int
	Error       string
	Output      string
	Duration    time.Duration
	Timestamp   time.Time
}

// Succeeded reports whether the deployment succeeded.
func (m Message) Succeeded() bool {
	return m.Status == StatusSuccess
}

// Step is the one-based position of the failed command.
func (m Message) Step() int {
	return m.FailedIndex + 1
}

// Sender delivers a message to one destination of its channel.
type Sender interface {
	Send(ctx context.Context, destination string, msg Message) error
}

// Dispatcher fans a message out to the configured channels of a project.
type Dispatcher struct {
	senders map[Kind]Sender
	timeout time.Duration
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher using the given senders.
func NewDispatcher(logger *slog.Logger, senders map[Kind]Sender) *Dispatcher {
	return &Dispatcher{
		senders: senders,
		timeout: DefaultSendTimeout,
		logger:  logger,
	}
}

// WithTimeout sets the per-channel send timeout.
func (d *Dispatcher) WithTimeout(timeout time.Duration) *Dispatcher {
	d.timeout = timeout
	return d
}

// Dispatch sends msg to every destination that has a sender and waits for
// all attempts to finish. It never fails; problems are logged.
func (d *Dispatcher) Dispatch(ctx context.Context, destinations Destinations, msg Message) {
	kinds := lo.Filter(lo.Keys(destinations), func(kind Kind, _ int) bool {
		if destinations[kind] == "" {
			return false
		}
		if _, ok := d.senders[kind]; !ok {
			d.logger.Warn("no sender for notification channel", "project", msg.Project, "channel", kind)
			return false
		}
		return true
	})
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	var wg sync.WaitGroup
	for _, kind := range kinds {
		wg.Add(1)
		go func(kind Kind) {
			defer wg.Done()
			d.send(ctx, kind, destinations[kind], msg)
		}(kind)
	}
	wg.Wait()
}

func (d *Dispatcher) send(ctx context.Context, kind Kind, destination string, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("notification sender panicked", "project", msg.Project, "channel", kind, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := d.senders[kind].Send(ctx, destination, msg)
	switch {
	case errors.Is(err, ErrNotConfigured):
		d.logger.Warn("notification skipped", "project", msg.Project, "channel", kind, "error", err)
	case err != nil:
		d.logger.Error("notification failed", "project", msg.Project, "channel", kind, "error", err)
	default:
		d.logger.Info("notification sent", "project", msg.Project, "channel", kind,
			"duration_ms", time.Since(start).Milliseconds())
	}
}
