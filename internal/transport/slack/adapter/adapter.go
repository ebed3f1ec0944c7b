package adapter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/slack-go/slack"
	"golang.org/x/time/rate"

	rtsup "horobot/internal/runtime/supervisor"
	"horobot/internal/transport"
	logx "horobot/pkg/logx"
)

var ErrUnknownCursor = errors.New("unknown or expired listing cursor")

type Config struct {
	BotToken string
	// AppToken (xapp-...) enables Socket Mode. Empty disables inbound commands.
	AppToken string
	// SendRatePerSec caps chat.postMessage calls. Slack allows roughly one
	// message per second per channel; default 1.
	SendRatePerSec float64
	SendBurst      int
}

// Adapter talks to the Slack Web API and, when an app token is configured,
// keeps a Socket Mode session for slash commands.
type Adapter struct {
	cfg Config
	log logx.Logger

	api     *slack.Client
	limiter *rate.Limiter

	// slack-go keeps users.list cursors inside UserPagination, so listings
	// are handed out under locally minted opaque tokens.
	pagesMu sync.Mutex
	pages   map[string]slack.UserPagination
	pageSeq uint64

	runMu sync.Mutex
	sup   *rtsup.Supervisor
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, errors.New("slack bot token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.SendRatePerSec <= 0 {
		cfg.SendRatePerSec = 1
	}
	if cfg.SendBurst <= 0 {
		cfg.SendBurst = 1
	}
	opts := []slack.Option{}
	if strings.TrimSpace(cfg.AppToken) != "" {
		opts = append(opts, slack.OptionAppLevelToken(cfg.AppToken))
	}
	return &Adapter{
		cfg:     cfg,
		log:     log,
		api:     slack.New(cfg.BotToken, opts...),
		limiter: rate.NewLimiter(rate.Limit(cfg.SendRatePerSec), cfg.SendBurst),
		pages:   map[string]slack.UserPagination{},
	}, nil
}

// Supervisor returns the Socket Mode supervisor (nil if not started).
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

// Auth verifies the bot token and returns the bot's user id.
func (a *Adapter) Auth(ctx context.Context) (string, error) {
	resp, err := a.api.AuthTestContext(ctx)
	if err != nil {
		return "", fmt.Errorf("slack auth.test: %w", err)
	}
	return resp.UserID, nil
}

func (a *Adapter) UserProfile(ctx context.Context, userID string) (*transport.Profile, error) {
	p, err := a.api.GetUserProfileContext(ctx, &slack.GetUserProfileParameters{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("users.profile.get %s: %w", userID, err)
	}
	if p == nil {
		return nil, fmt.Errorf("users.profile.get %s: empty profile", userID)
	}
	raw := p.Fields.ToMap()
	fields := make(map[string]string, len(raw))
	for k, f := range raw {
		fields[k] = f.Value
	}
	return &transport.Profile{
		UserID:      userID,
		DisplayName: p.RealName,
		Fields:      fields,
	}, nil
}

// ListUsers returns one users.list page. An empty cursor starts a new listing
// (and forgets any abandoned one). The last data page is still followed by a
// cursor; the call that consumes it returns an empty page without touching
// the network.
func (a *Adapter) ListUsers(ctx context.Context, cursor string, limit int) (transport.MemberPage, error) {
	var p slack.UserPagination
	if cursor == "" {
		a.pagesMu.Lock()
		clear(a.pages)
		a.pagesMu.Unlock()
		p = a.api.GetUsersPaginated(slack.GetUsersOptionLimit(limit))
	} else {
		a.pagesMu.Lock()
		prev, ok := a.pages[cursor]
		delete(a.pages, cursor)
		a.pagesMu.Unlock()
		if !ok {
			return transport.MemberPage{}, fmt.Errorf("%w: %q", ErrUnknownCursor, cursor)
		}
		p = prev
	}

	next, err := p.Next(ctx)
	if next.Done(err) {
		return transport.MemberPage{}, nil
	}
	if err != nil {
		return transport.MemberPage{}, fmt.Errorf("users.list: %w", next.Failure(err))
	}

	page := transport.MemberPage{Members: make([]transport.Member, 0, len(next.Users))}
	for _, u := range next.Users {
		page.Members = append(page.Members, transport.Member{
			ID:      u.ID,
			Name:    u.Name,
			IsBot:   u.IsBot,
			Deleted: u.Deleted,
		})
	}

	tok := strconv.FormatUint(atomic.AddUint64(&a.pageSeq, 1), 36)
	a.pagesMu.Lock()
	a.pages[tok] = next
	a.pagesMu.Unlock()
	page.NextCursor = tok
	return page, nil
}

// PostMessage waits on the send limiter before posting.
func (a *Adapter) PostMessage(ctx context.Context, msg transport.Message) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	return a.post(ctx, msg)
}

// PostText satisfies logx.Sender. The log sink throttles itself, so log
// records never wait behind horoscope DMs.
func (a *Adapter) PostText(ctx context.Context, channel, text string) error {
	return a.post(ctx, transport.Message{Channel: channel, Text: text})
}

func (a *Adapter) post(ctx context.Context, msg transport.Message) error {
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Text, false)}
	if msg.Structured() {
		opts = append(opts, slack.MsgOptionBlocks(toSlackBlocks(msg.Blocks)...))
	}
	if _, _, err := a.api.PostMessageContext(ctx, msg.Channel, opts...); err != nil {
		return fmt.Errorf("chat.postMessage %s: %w", msg.Channel, err)
	}
	return nil
}

func toSlackBlocks(in []transport.Block) []slack.Block {
	out := make([]slack.Block, 0, len(in))
	for _, b := range in {
		switch b.Kind {
		case transport.BlockDivider:
			out = append(out, slack.NewDividerBlock())
		case transport.BlockSection:
			txt := slack.NewTextBlockObject(slack.MarkdownType, b.Markdown, false, false)
			out = append(out, slack.NewSectionBlock(txt, nil, nil))
		}
	}
	return out
}
