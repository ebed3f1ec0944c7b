package app

import (
	"context"
	"strings"

	"horobot/internal/delivery"
	"horobot/internal/transport"
	logx "horobot/pkg/logx"
)

// Replies to the slash command, by delivery outcome.
const (
	replySent        = "오늘의 운세를 DM으로 보내드렸어요 🔮"
	replyNoBirthdate = "프로필에 생년월일을 입력하면 오늘의 운세를 받을 수 있어요."
	replyNoProfile   = "프로필을 불러오지 못했습니다. 잠시 후 다시 시도해주세요."
	replyFailed      = "운세를 보내지 못했습니다. 잠시 후 다시 시도해주세요."
)

// handleCommand serves the horoscope slash command: the caller gets today's
// horoscope right away. Daily sent markers are left alone.
func (a *App) handleCommand(ctx context.Context, cmd transport.Command) string {
	want := a.cfgm.Get().Slack.Command
	if !strings.EqualFold(strings.TrimSpace(cmd.Name), want) {
		a.log.Debug("unknown command ignored", logx.String("cmd", cmd.Name))
		return ""
	}

	outcome, err := a.engine.Deliver(ctx, cmd.UserID)
	if err != nil {
		a.log.Warn("command delivery failed", logx.String("user", cmd.UserID), logx.Err(err))
		return replyFailed
	}
	a.log.Info("command served", logx.String("user", cmd.UserID), logx.String("outcome", outcome.String()))
	switch outcome {
	case delivery.Sent, delivery.SentFallback:
		return replySent
	case delivery.SkippedNoBirthdate, delivery.SkippedExcluded:
		// Excluded users see the same answer as users without a birthdate.
		return replyNoBirthdate
	default:
		return replyNoProfile
	}
}
