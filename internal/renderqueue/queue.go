package renderqueue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"slidecast/internal/config"
	"slidecast/internal/services"
)

// ErrUnavailable marks broker failures. It carries services.ErrQueueUnavailable.
var ErrUnavailable = fmt.Errorf("render queue: %w", services.ErrQueueUnavailable)

// ErrLeaseLost is returned when a lease expired and the message moved on.
var ErrLeaseLost = errors.New("render queue: lease lost")

// QueueError wraps a broker failure with the operation that hit it.
type QueueError struct {
	Op  string
	Err error
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("render queue %s: %v", e.Op, e.Err)
}

func (e *QueueError) Unwrap() []error { return []error{e.Err, ErrUnavailable} }

func queueErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &QueueError{Op: op, Err: err}
}

// Message references one render job.
type Message struct {
	JobID      string    `json:"jobId"`
	Priority   int       `json:"priority"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Lease is a time-bounded claim on a message.
type Lease struct {
	Message
	Token      string
	Consumer   string
	ExpiresAt  time.Time
	Deliveries int
}

// Stats summarizes broker depth.
type Stats struct {
	Backend     string `json:"backend"`
	Ready       int    `json:"ready"`
	Delayed     int    `json:"delayed"`
	Leased      int    `json:"leased"`
	DeadLetters int    `json:"deadLetters"`
}

// Broker is a durable queue with leases. Enqueue is idempotent per job: a job
// with a live message is not enqueued twice. Lease returns nil when nothing
// is deliverable. Higher priorities are delivered first; within a priority
// delivery is approximately FIFO.
type Broker interface {
	Enqueue(ctx context.Context, msg Message) error
	Lease(ctx context.Context, consumer string, leaseFor time.Duration) (*Lease, error)
	Extend(ctx context.Context, lease *Lease, leaseFor time.Duration) error
	Ack(ctx context.Context, lease *Lease) error
	Nack(ctx context.Context, lease *Lease, delay time.Duration) error
	DeadLetter(ctx context.Context, lease *Lease, reason string) error
	Has(ctx context.Context, jobID string) (bool, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Open selects the broker configured in cfg.
func Open(ctx context.Context, cfg *config.Config) (Broker, error) {
	switch cfg.Queue.Backend {
	case config.QueueRedis:
		return NewRedis(ctx, RedisOptions{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
			Prefix:   cfg.Queue.RedisPrefix,
		})
	case config.QueueSQLite, "":
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, fmt.Errorf("ensure directories: %w", err)
		}
		return OpenSQLite(cfg.QueueDBPath())
	default:
		return nil, services.Wrap(services.ErrConfiguration, "queue", "open", fmt.Sprintf("unknown backend %q", cfg.Queue.Backend), nil)
	}
}

// Backoff returns the nack delay before delivery attempt+1: base doubled per
// prior attempt, capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(base) * math.Pow(2, float64(attempt-1))
	if max > 0 && delay > float64(max) {
		return max
	}
	return time.Duration(delay)
}

func newToken() string {
	return uuid.NewString()
}
