package broadcast

import (
	"context"
	"time"

	"horobot/internal/delivery"
	"horobot/internal/transport"
)

type Config struct {
	// Workers > 1 delivers through a bounded pool.
	Workers int
	// ContinueOnError keeps the firing going past failed users.
	ContinueOnError bool
}

type Roster interface {
	Members(ctx context.Context) ([]transport.Member, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, userID string) (delivery.Outcome, error)
}

// Pruner drops per-day state that no longer matches today.
type Pruner interface {
	Prune(today string) int
}

// Summary describes one firing. It is the payload of the
// eventbus.TypeFiringFinished event.
type Summary struct {
	RunID      string    `json:"run_id"`
	Date       string    `json:"date"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Members     int `json:"members"`
	AlreadySent int `json:"already_sent"`
	Sent        int `json:"sent"`
	Fallback    int `json:"fallback"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`

	Aborted bool   `json:"aborted,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Started is the payload of eventbus.TypeFiringStarted.
type Started struct {
	RunID string `json:"run_id"`
	Date  string `json:"date"`
}

func (s *Summary) count(o delivery.Outcome) {
	switch o {
	case delivery.Sent:
		s.Sent++
	case delivery.SentFallback:
		s.Fallback++
	default:
		s.Skipped++
	}
}
