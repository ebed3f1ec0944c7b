// Package delivery sends one user their daily horoscope as a direct message.
package delivery

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"horobot/internal/transport"
	logx "horobot/pkg/logx"
)

// Outcome says what a delivery attempt ended up doing.
type Outcome int

const (
	SkippedNoProfile Outcome = iota
	SkippedNoBirthdate
	SkippedExcluded
	Sent
	SentFallback
)

func (o Outcome) String() string {
	switch o {
	case SkippedNoProfile:
		return "skipped_no_profile"
	case SkippedNoBirthdate:
		return "skipped_no_birthdate"
	case SkippedExcluded:
		return "skipped_excluded"
	case Sent:
		return "sent"
	case SentFallback:
		return "sent_fallback"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Delivered reports whether a message went out.
func (o Outcome) Delivered() bool { return o == Sent || o == SentFallback }

type ProfileSource interface {
	Profile(ctx context.Context, userID string) (*transport.Profile, bool)
}

type Teller interface {
	Horoscope(ctx context.Context, userID, birthdate string) (string, bool)
}

type Engine struct {
	profiles ProfileSource
	teller   Teller
	out      transport.Messenger
	log      logx.Logger

	rules atomic.Pointer[Rules]
}

func NewEngine(profiles ProfileSource, teller Teller, out transport.Messenger, rules Rules, log logx.Logger) *Engine {
	e := &Engine{
		profiles: profiles,
		teller:   teller,
		out:      out,
		log:      log.With(logx.String("comp", "delivery")),
	}
	e.Apply(rules)
	return e
}

// Apply replaces the rules for subsequent deliveries.
func (e *Engine) Apply(r Rules) {
	r.fill()
	r.Exclude = append([]string(nil), r.Exclude...)
	e.rules.Store(&r)
}

func (e *Engine) Rules() Rules { return *e.rules.Load() }

// SendDailyHoroscope delivers today's horoscope to userID. Skips are silent;
// only send failures come back as errors.
func (e *Engine) SendDailyHoroscope(ctx context.Context, userID string) error {
	_, err := e.Deliver(ctx, userID)
	return err
}

// Deliver is SendDailyHoroscope with the outcome exposed.
func (e *Engine) Deliver(ctx context.Context, userID string) (Outcome, error) {
	rules := e.rules.Load()

	profile, ok := e.profiles.Profile(ctx, userID)
	if !ok || profile == nil {
		return SkippedNoProfile, nil
	}
	birthdate := profile.Field(rules.BirthdateField)
	if birthdate == "" {
		return SkippedNoBirthdate, nil
	}
	if rules.excluded(profile.DisplayName) {
		e.log.Debug("user excluded", logx.String("user", userID))
		return SkippedExcluded, nil
	}

	text, ok := e.teller.Horoscope(ctx, userID, birthdate)
	if !ok {
		if err := e.out.PostMessage(ctx, transport.Message{Channel: userID, Text: rules.FallbackText}); err != nil {
			return SentFallback, fmt.Errorf("send fallback to %s: %w", userID, err)
		}
		return SentFallback, nil
	}

	if err := e.out.PostMessage(ctx, Compose(*rules, userID, text)); err != nil {
		return Sent, fmt.Errorf("send horoscope to %s: %w", userID, err)
	}
	return Sent, nil
}

// Compose builds the structured horoscope message for userID.
func Compose(r Rules, userID, horoscope string) transport.Message {
	r.fill()
	greeting := strings.ReplaceAll(r.Greeting, "{user}", "<@"+userID+">")
	return transport.Message{
		Channel: userID,
		Text:    r.NotifyText,
		Blocks: []transport.Block{
			{Kind: transport.BlockSection, Markdown: greeting},
			{Kind: transport.BlockSection, Markdown: r.Heading + Quote(horoscope)},
			{Kind: transport.BlockDivider},
		},
	}
}

// Quote prefixes every line with "> ".
func Quote(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}
