package adapter

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	rtsup "horobot/internal/runtime/supervisor"
	"horobot/internal/transport"
	logx "horobot/pkg/logx"
)

// Start opens the Socket Mode session and dispatches slash commands to h.
// Without an app token it only logs and returns.
func (a *Adapter) Start(ctx context.Context, h transport.CommandHandler) error {
	if strings.TrimSpace(a.cfg.AppToken) == "" {
		a.log.Info("socket mode disabled (no app token)")
		return nil
	}
	if h == nil {
		return errors.New("command handler is nil")
	}

	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.sup != nil {
		return nil
	}
	sup := rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log))
	a.sup = sup

	client := socketmode.New(a.api)
	sup.GoRestart("socketmode.run", func(c context.Context) error {
		return client.RunContext(c)
	}, rtsup.WithRestartBackoff(time.Second, time.Minute))
	sup.GoRestart("socketmode.events", func(c context.Context) error {
		return a.eventLoop(c, sup, client, h)
	})
	a.log.Info("socket mode started")
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	a.runMu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Stop(ctx)
}

func (a *Adapter) eventLoop(ctx context.Context, sup *rtsup.Supervisor, client *socketmode.Client, h transport.CommandHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-client.Events:
			if !ok {
				return errors.New("socket mode event stream closed")
			}
			switch evt.Type {
			case socketmode.EventTypeConnecting:
				a.log.Debug("socket mode connecting")
			case socketmode.EventTypeConnected:
				a.log.Info("socket mode connected")
			case socketmode.EventTypeConnectionError:
				a.log.Warn("socket mode connection error", logx.Any("data", evt.Data))
			case socketmode.EventTypeSlashCommand:
				sc, ok := evt.Data.(slack.SlashCommand)
				if !ok || evt.Request == nil {
					continue
				}
				// Slack wants the ack within 3s; the work happens afterwards.
				client.Ack(*evt.Request)
				cmd := transport.Command{
					Name:      sc.Command,
					UserID:    sc.UserID,
					ChannelID: sc.ChannelID,
					Text:      sc.Text,
				}
				sup.Go0("command"+cmd.Name, func(c context.Context) {
					a.answer(c, cmd, h)
				})
			default:
				if evt.Request != nil {
					client.Ack(*evt.Request)
				}
			}
		}
	}
}

func (a *Adapter) answer(ctx context.Context, cmd transport.Command, h transport.CommandHandler) {
	reply := h(ctx, cmd)
	if reply == "" {
		return
	}
	if _, err := a.api.PostEphemeralContext(ctx, cmd.ChannelID, cmd.UserID, slack.MsgOptionText(reply, false)); err != nil {
		a.log.Warn("ephemeral reply failed", logx.String("cmd", cmd.Name), logx.String("user", cmd.UserID), logx.Err(err))
	}
}
