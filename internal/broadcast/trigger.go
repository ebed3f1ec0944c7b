package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"horobot/internal/eventbus"
	logx "horobot/pkg/logx"
)

type Trigger struct {
	roster  Roster
	deliver Deliverer
	today   func() string
	pruner  Pruner
	bus     eventbus.Bus
	log     logx.Logger

	marker *SentMarker

	cfgMu sync.RWMutex
	cfg   Config

	// fireMu serializes firings (cron and the start-up run can overlap).
	fireMu sync.Mutex

	lastMu sync.RWMutex
	last   *Summary
}

type Options struct {
	Roster  Roster
	Deliver Deliverer
	// Today returns the current date string; it drives marker rollover.
	Today  func() string
	Pruner Pruner
	Bus    eventbus.Bus
}

func New(opts Options, cfg Config, log logx.Logger) (*Trigger, error) {
	if opts.Roster == nil || opts.Deliver == nil || opts.Today == nil {
		return nil, errors.New("broadcast: roster, deliverer and clock are required")
	}
	return &Trigger{
		roster:  opts.Roster,
		deliver: opts.Deliver,
		today:   opts.Today,
		pruner:  opts.Pruner,
		bus:     opts.Bus,
		log:     log.With(logx.String("comp", "broadcast")),
		marker:  NewSentMarker(),
		cfg:     cfg,
	}, nil
}

func (t *Trigger) Apply(cfg Config) {
	t.cfgMu.Lock()
	t.cfg = cfg
	t.cfgMu.Unlock()
}

func (t *Trigger) config() Config {
	t.cfgMu.RLock()
	defer t.cfgMu.RUnlock()
	return t.cfg
}

func (t *Trigger) Marker() *SentMarker { return t.marker }

// Last returns the summary of the most recent firing.
func (t *Trigger) Last() (Summary, bool) {
	t.lastMu.RLock()
	defer t.lastMu.RUnlock()
	if t.last == nil {
		return Summary{}, false
	}
	return *t.last, true
}

// Run is Fire shaped as a scheduler job.
func (t *Trigger) Run(ctx context.Context) error {
	_, err := t.Fire(ctx)
	return err
}

// Fire performs one firing.
func (t *Trigger) Fire(ctx context.Context) (Summary, error) {
	t.fireMu.Lock()
	defer t.fireMu.Unlock()

	cfg := t.config()
	date := t.today()
	sum := Summary{RunID: uuid.NewString(), Date: date, StartedAt: time.Now()}
	log := t.log.With(logx.String("run", sum.RunID), logx.String("date", date))

	if t.marker.Roll(date) {
		log.Debug("new day; sent markers cleared")
		if t.pruner != nil {
			if n := t.pruner.Prune(date); n > 0 {
				log.Debug("stale horoscopes pruned", logx.Int("entries", n))
			}
		}
	}
	t.publish(eventbus.TypeFiringStarted, Started{RunID: sum.RunID, Date: date})

	err := t.fire(ctx, cfg, date, &sum, log)
	sum.FinishedAt = time.Now()
	if err != nil {
		sum.Error = err.Error()
	}

	fields := []logx.Field{
		logx.Int("members", sum.Members),
		logx.Int("sent", sum.Sent),
		logx.Int("fallback", sum.Fallback),
		logx.Int("skipped", sum.Skipped),
		logx.Int("already_sent", sum.AlreadySent),
		logx.Int("failed", sum.Failed),
		logx.Duration("took", sum.FinishedAt.Sub(sum.StartedAt)),
	}
	switch {
	case err != nil:
		log.Error("daily broadcast failed", append(fields, logx.Err(err))...)
	case sum.Failed > 0:
		log.Warn("daily broadcast finished with failures", fields...)
	default:
		log.Info("daily broadcast completed", fields...)
	}

	t.lastMu.Lock()
	cp := sum
	t.last = &cp
	t.lastMu.Unlock()
	t.publish(eventbus.TypeFiringFinished, sum)
	return sum, err
}

func (t *Trigger) fire(ctx context.Context, cfg Config, date string, sum *Summary, log logx.Logger) error {
	members, err := t.roster.Members(ctx)
	if err != nil {
		sum.Aborted = true
		return fmt.Errorf("fetch roster: %w", err)
	}
	sum.Members = len(members)

	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	if cfg.Workers > 1 {
		return t.deliverPool(ctx, cfg, date, ids, sum, log)
	}
	return t.deliverSequential(ctx, cfg, date, ids, sum, log)
}

func (t *Trigger) deliverSequential(ctx context.Context, cfg Config, date string, ids []string, sum *Summary, log logx.Logger) error {
	var errs []error
	for _, id := range ids {
		if !t.marker.Claim(id, date) {
			sum.AlreadySent++
			continue
		}
		outcome, err := t.deliver.Deliver(ctx, id)
		if err != nil {
			t.marker.Release(id, date)
			sum.Failed++
			if !cfg.ContinueOnError {
				sum.Aborted = true
				return err
			}
			log.Warn("delivery failed", logx.String("user", id), logx.Err(err))
			errs = append(errs, err)
			continue
		}
		sum.count(outcome)
	}
	return joinFailures(errs)
}

func (t *Trigger) deliverPool(ctx context.Context, cfg Config, date string, ids []string, sum *Summary, log logx.Logger) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := &errgroup.Group{}, ctx
	if !cfg.ContinueOnError {
		// The first failure cancels the rest of the firing.
		g, gctx = errgroup.WithContext(ctx)
	}
	g.SetLimit(cfg.Workers)

	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		if !t.marker.Claim(id, date) {
			mu.Lock()
			sum.AlreadySent++
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				t.marker.Release(id, date)
				return nil
			}
			outcome, err := t.deliver.Deliver(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				t.marker.Release(id, date)
				sum.Failed++
				if !cfg.ContinueOnError {
					sum.Aborted = true
					return err
				}
				log.Warn("delivery failed", logx.String("user", id), logx.Err(err))
				errs = append(errs, err)
				return nil
			}
			sum.count(outcome)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return joinFailures(errs)
}

// joinFailures keeps an isolated batch from reporting success when some
// users failed.
func joinFailures(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%d deliveries failed: %w", len(errs), errors.Join(errs...))
}

func (t *Trigger) publish(typ string, data any) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
