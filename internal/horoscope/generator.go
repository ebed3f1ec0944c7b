// Package horoscope asks the language model for a user's daily horoscope and
// keeps one answer per user per day.
package horoscope

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"horobot/internal/config"
	"horobot/internal/llm"
	logx "horobot/pkg/logx"
)

// DateString formats t in loc as YYYY-M-D without zero padding.
func DateString(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return fmt.Sprintf("%d-%d-%d", y, int(m), d)
}

type Options struct {
	Model     string
	MaxTokens int
	// Location decides what "today" is. Nil means Asia/Seoul.
	Location *time.Location
	// Now is the clock (tests). Nil means time.Now.
	Now func() time.Time
}

type Generator struct {
	client    llm.Client
	model     string
	maxTokens int
	now       func() time.Time
	log       logx.Logger

	mu    sync.Mutex
	loc   *time.Location
	cache map[string]string // "userID:date" -> text
}

func NewGenerator(client llm.Client, opts Options, log logx.Logger) (*Generator, error) {
	loc := opts.Location
	if loc == nil {
		var err error
		if loc, err = time.LoadLocation(config.DefaultTimezone); err != nil {
			return nil, fmt.Errorf("load %s: %w", config.DefaultTimezone, err)
		}
	}
	g := &Generator{
		client:    client,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		now:       opts.Now,
		log:       log.With(logx.String("comp", "horoscope")),
		loc:       loc,
		cache:     make(map[string]string),
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.maxTokens <= 0 {
		g.maxTokens = config.DefaultMaxTokens
	}
	return g, nil
}

// SetLocation switches the zone used for today's date.
func (g *Generator) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	g.mu.Lock()
	g.loc = loc
	g.mu.Unlock()
}

func (g *Generator) Location() *time.Location {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loc
}

// Today is the current date string in the configured zone.
func (g *Generator) Today() string {
	return DateString(g.now(), g.Location())
}

func cacheKey(userID, date string) string { return userID + ":" + date }

// Horoscope returns today's text for the user, asking the model only on a
// cache miss. False means generation failed; failures are not cached.
func (g *Generator) Horoscope(ctx context.Context, userID, birthdate string) (string, bool) {
	date := g.Today()
	key := cacheKey(userID, date)

	g.mu.Lock()
	text, ok := g.cache[key]
	g.mu.Unlock()
	if ok {
		g.log.Debug("horoscope cache hit", logx.String("key", key))
		return text, true
	}

	start := time.Now()
	out, err := g.client.Complete(ctx, llm.Request{
		Model:     g.model,
		System:    systemPrompt,
		User:      userPrompt(date, birthdate),
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		g.log.Error("horoscope generation failed",
			logx.String("user", userID),
			logx.String("date", date),
			logx.Err(err),
		)
		return "", false
	}
	text = strings.TrimSpace(out)

	g.mu.Lock()
	if prev, ok := g.cache[key]; ok {
		text = prev
	} else {
		g.cache[key] = text
	}
	g.mu.Unlock()

	g.log.Info("horoscope generated",
		logx.String("user", userID),
		logx.String("date", date),
		logx.Duration("took", time.Since(start)),
	)
	return text, true
}

// Prune drops entries for any date other than today and returns how many
// went away. Those entries can never be read again.
func (g *Generator) Prune(today string) int {
	suffix := ":" + today
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for k := range g.cache {
		if !strings.HasSuffix(k, suffix) {
			delete(g.cache, k)
			n++
		}
	}
	return n
}

func (g *Generator) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cache)
}
