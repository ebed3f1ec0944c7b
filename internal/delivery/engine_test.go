package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"horobot/internal/config"
	"horobot/internal/transport"
	logx "horobot/pkg/logx"
)

const birthField = "XfBIRTH"

type stubProfiles map[string]*transport.Profile

func (s stubProfiles) Profile(_ context.Context, id string) (*transport.Profile, bool) {
	p, ok := s[id]
	return p, ok
}

type stubTeller struct {
	text  string
	ok    bool
	calls int
}

func (s *stubTeller) Horoscope(context.Context, string, string) (string, bool) {
	s.calls++
	return s.text, s.ok
}

type recordingMessenger struct {
	mu   sync.Mutex
	sent []transport.Message
	err  error
}

func (r *recordingMessenger) PostMessage(_ context.Context, m transport.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, m)
	return nil
}

func profile(id, name, birth string) *transport.Profile {
	return &transport.Profile{UserID: id, DisplayName: name, Fields: map[string]string{birthField: birth}}
}

func newEngine(p stubProfiles, teller *stubTeller, out *recordingMessenger, exclude ...string) *Engine {
	rules := RulesFromConfig(config.HoroscopeConfig{BirthdateField: birthField, Exclude: exclude})
	return NewEngine(p, teller, out, rules, logx.Nop())
}

func TestSendsStructuredHoroscope(t *testing.T) {
	teller := &stubTeller{text: "첫째 줄\n둘째 줄 😊🍀", ok: true}
	out := &recordingMessenger{}
	e := newEngine(stubProfiles{"U1": profile("U1", "Kim Minji", "1990-05-12")}, teller, out)

	outcome, err := e.Deliver(context.Background(), "U1")
	require.NoError(t, err)
	require.Equal(t, Sent, outcome)
	require.Len(t, out.sent, 1)

	msg := out.sent[0]
	require.Equal(t, "U1", msg.Channel)
	require.Equal(t, DefaultNotifyText, msg.Text)
	require.Equal(t, []transport.Block{
		{Kind: transport.BlockSection, Markdown: "*<@U1>님, 오늘의 운세를 알려드립니다 🧙🪄*\n\n"},
		{Kind: transport.BlockSection, Markdown: "🔮 *오늘의 운세:*\n> 첫째 줄\n> 둘째 줄 😊🍀"},
		{Kind: transport.BlockDivider},
	}, msg.Blocks)
}

func TestNoBirthdateSendsNothing(t *testing.T) {
	teller := &stubTeller{text: "x", ok: true}
	out := &recordingMessenger{}
	e := newEngine(stubProfiles{"U1": profile("U1", "Kim Minji", "")}, teller, out)

	require.NoError(t, e.SendDailyHoroscope(context.Background(), "U1"))
	require.Empty(t, out.sent)
	require.Zero(t, teller.calls)
}

func TestBlankBirthdateCountsAsPresent(t *testing.T) {
	teller := &stubTeller{text: "x", ok: true}
	out := &recordingMessenger{}
	e := newEngine(stubProfiles{"U1": profile("U1", "Kim Minji", " ")}, teller, out)

	outcome, err := e.Deliver(context.Background(), "U1")
	require.NoError(t, err)
	require.Equal(t, Sent, outcome)
	require.Equal(t, 1, teller.calls)
	require.Len(t, out.sent, 1)
}

func TestMissingProfileSendsNothing(t *testing.T) {
	out := &recordingMessenger{}
	e := newEngine(stubProfiles{}, &stubTeller{ok: true}, out)

	outcome, err := e.Deliver(context.Background(), "U404")
	require.NoError(t, err)
	require.Equal(t, SkippedNoProfile, outcome)
	require.Empty(t, out.sent)
}

func TestExcludedUserSendsNothing(t *testing.T) {
	teller := &stubTeller{text: "x", ok: true}
	out := &recordingMessenger{}
	e := newEngine(stubProfiles{"U1": profile("U1", "Park Jisoo", "1988-01-02")}, teller, out, "Park Jisoo")

	outcome, err := e.Deliver(context.Background(), "U1")
	require.NoError(t, err)
	require.Equal(t, SkippedExcluded, outcome)
	require.Empty(t, out.sent)
	require.Zero(t, teller.calls)
}

func TestGenerationFailureSendsOnePlainFallback(t *testing.T) {
	out := &recordingMessenger{}
	e := newEngine(stubProfiles{"U1": profile("U1", "Kim Minji", "1990-05-12")}, &stubTeller{ok: false}, out)

	outcome, err := e.Deliver(context.Background(), "U1")
	require.NoError(t, err)
	require.Equal(t, SentFallback, outcome)
	require.Equal(t, []transport.Message{{Channel: "U1", Text: DefaultFallbackText}}, out.sent)
}

func TestSendErrorIsReturned(t *testing.T) {
	boom := errors.New("channel_not_found")
	out := &recordingMessenger{err: boom}
	e := newEngine(stubProfiles{"U1": profile("U1", "Kim Minji", "1990-05-12")}, &stubTeller{text: "x", ok: true}, out)

	err := e.SendDailyHoroscope(context.Background(), "U1")
	require.ErrorIs(t, err, boom)
}

func TestApplySwapsRules(t *testing.T) {
	out := &recordingMessenger{}
	p := stubProfiles{"U1": {UserID: "U1", DisplayName: "Kim Minji", Fields: map[string]string{"XfNEW": "1990-05-12"}}}
	e := newEngine(p, &stubTeller{text: "x", ok: true}, out)

	require.NoError(t, e.SendDailyHoroscope(context.Background(), "U1"))
	require.Empty(t, out.sent)

	e.Apply(Rules{BirthdateField: "XfNEW", Greeting: "hi {user}"})
	require.NoError(t, e.SendDailyHoroscope(context.Background(), "U1"))
	require.Len(t, out.sent, 1)
	require.Equal(t, "hi <@U1>", out.sent[0].Blocks[0].Markdown)
	require.Equal(t, DefaultHeading+"> x", out.sent[0].Blocks[1].Markdown)
}

func TestQuote(t *testing.T) {
	require.Equal(t, "> one", Quote("one"))
	require.Equal(t, "> a\n> \n> b", Quote("a\n\nb"))
}
