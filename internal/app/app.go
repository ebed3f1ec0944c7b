// Package app wires the horoscope bot together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"horobot/internal/broadcast"
	"horobot/internal/config"
	"horobot/internal/delivery"
	"horobot/internal/directory"
	"horobot/internal/eventbus"
	"horobot/internal/horoscope"
	"horobot/internal/llm"
	"horobot/internal/observability/health"
	rtsup "horobot/internal/runtime/supervisor"
	"horobot/internal/task/scheduler"
	"horobot/internal/transport"
	"horobot/internal/transport/slack/adapter"
	logx "horobot/pkg/logx"
)

const (
	dailySchedule = "daily-horoscope"
	startupRun    = "run-on-start"
	// firingTimeout of zero leaves a firing unbounded; only shutdown
	// cancels it.
	firingTimeout time.Duration = 0
)

// chatClient is the chat platform as the app uses it.
type chatClient interface {
	transport.Directory
	transport.Messenger
	logx.Sender
	Auth(ctx context.Context) (string, error)
	Start(ctx context.Context, h transport.CommandHandler) error
	Stop(ctx context.Context) error
}

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	chat chatClient

	resolver *directory.Resolver
	roster   *directory.Roster
	gen      *horoscope.Generator
	engine   *delivery.Engine
	trigger  *broadcast.Trigger
	sched    *scheduler.Service
	health   *health.Service
	notifier *sdNotifier
}

// New loads the config at cfgPath and builds every component. Nothing talks
// to the network until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logs, log := logx.New(mapLogConfig(cfg))

	ad, err := adapter.New(adapter.Config{
		BotToken:       cfg.Slack.BotToken,
		AppToken:       cfg.Slack.AppToken,
		SendRatePerSec: cfg.Slack.SendRatePerSec,
	}, log.With(logx.String("comp", "slack")))
	if err != nil {
		return nil, err
	}
	logs.SetSender(ad)

	completer, err := llm.New(context.Background(), cfg.LLM)
	if err != nil {
		return nil, err
	}
	return build(cfgm, cfg, logs, log, ad, completer)
}

func build(cfgm *config.ConfigManager, cfg *config.Config, logs *logx.Service, log logx.Logger, chat chatClient, completer llm.Client) (*App, error) {
	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule.timezone: %w", err)
	}

	bus := eventbus.New()
	resolver := directory.NewResolver(chat, log)
	roster := directory.NewRoster(chat, cfg.Slack.PageSize, log)
	gen, err := horoscope.NewGenerator(completer, horoscope.Options{
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Location:  loc,
	}, log)
	if err != nil {
		return nil, err
	}
	engine := delivery.NewEngine(resolver, gen, chat, delivery.RulesFromConfig(cfg.Horoscope), log)
	trigger, err := broadcast.New(broadcast.Options{
		Roster:  roster,
		Deliver: engine,
		Today:   gen.Today,
		Pruner:  gen,
		Bus:     bus,
	}, mapBroadcastConfig(cfg), log)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:     cfgm,
		log:      log.With(logx.String("comp", "app")),
		logs:     logs,
		bus:      bus,
		chat:     chat,
		resolver: resolver,
		roster:   roster,
		gen:      gen,
		engine:   engine,
		trigger:  trigger,
		sched:    scheduler.New(scheduler.Config{Timezone: cfg.Schedule.Timezone}, log.With(logx.String("comp", "scheduler"))),
		notifier: newSDNotifier(log.With(logx.String("comp", "systemd"))),
	}
	if hc, ok := mapHealthConfig(cfg); ok {
		a.health = health.New(hc, health.Options{
			Bus:    bus,
			Next:   func() time.Time { return a.sched.Next(dailySchedule) },
			Gauges: a.gauges,
		}, log)
	}

	spec, err := config.CronSpec(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	if err := a.sched.AddCron(dailySchedule, spec, firingTimeout, a.trigger.Run); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) gauges() map[string]int {
	return map[string]int{
		"profiles":     a.resolver.Len(),
		"horoscopes":   a.gen.Len(),
		"sent_markers": a.trigger.Marker().Len(),
	}
}

// Done is closed when the app stops or fails.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	authCtx, cancel := context.WithTimeout(a.sup.Context(), 15*time.Second)
	botID, err := a.chat.Auth(authCtx)
	cancel()
	if err != nil {
		return err
	}
	a.log.Info("slack authenticated", logx.String("bot", botID))

	if err := a.chat.Start(a.sup.Context(), a.handleCommand); err != nil {
		return err
	}

	a.sched.Start(a.sup.Context())
	a.log.Info("daily broadcast scheduled",
		logx.String("tz", a.gen.Location().String()),
		logx.Time("next", a.sched.Next(dailySchedule)),
	)
	if a.cfgm.Get().Broadcast.RunOnStart {
		if err := a.sched.AddOnce(startupRun, time.Now(), firingTimeout, a.trigger.Run); err != nil {
			return err
		}
	}
	if a.health != nil {
		a.health.Start(a.sup.Context())
	}

	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.notifier.Ready()
	a.notifier.StartWatchdog(a.sup)

	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.notifier.Stopping()
	a.sup.Cancel()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		start := time.Now()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("health", 2*time.Second, func(c context.Context) error {
		if a.health != nil {
			a.health.Stop(c)
		}
		return nil
	})
	step("slack", 2*time.Second, a.chat.Stop)
	step("supervisor", 2*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Slack: logx.SlackConfig{
			Enabled:    cfg.Logging.Slack.Enabled,
			Channel:    cfg.Logging.Slack.Channel,
			MinLevel:   cfg.Logging.Slack.MinLevel,
			RatePerSec: cfg.Logging.Slack.RatePerSec,
		},
	}
}

func mapBroadcastConfig(cfg *config.Config) broadcast.Config {
	return broadcast.Config{
		Workers:         cfg.Broadcast.Workers,
		ContinueOnError: cfg.Broadcast.ContinueOnError,
	}
}

// mapHealthConfig returns false when the HTTP server is turned off.
func mapHealthConfig(cfg *config.Config) (health.Config, bool) {
	port := strings.TrimSpace(cfg.HTTP.Port)
	if port == "" || strings.EqualFold(port, "off") || port == "0" {
		return health.Config{}, false
	}
	return health.Config{
		Addr:         net.JoinHostPort(strings.TrimSpace(cfg.HTTP.Host), port),
		Pprof:        cfg.HTTP.Pprof,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, true
}
