package app

import (
	"context"
	"time"

	"horobot/internal/config"
	"horobot/internal/delivery"
	"horobot/internal/eventbus"
	"horobot/internal/task/scheduler"
	logx "horobot/pkg/logx"
)

// reloadLoop applies published configs until ctx ends.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: only the newest config matters.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(cfg)
		}
	}
}

// applyConfig re-applies everything that can change without a restart:
// logging, delivery rules, broadcast mode and the schedule.
// Tokens and the HTTP listener need a restart.
func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logs.Apply(mapLogConfig(cfg))
	a.engine.Apply(delivery.RulesFromConfig(cfg.Horoscope))
	a.trigger.Apply(mapBroadcastConfig(cfg))

	if loc, err := time.LoadLocation(cfg.Schedule.Timezone); err == nil {
		a.gen.SetLocation(loc)
	}
	a.sched.Apply(scheduler.Config{Timezone: cfg.Schedule.Timezone})
	if spec, err := config.CronSpec(cfg.Schedule); err != nil {
		a.log.Warn("schedule rejected; keeping previous", logx.Err(err))
	} else if err := a.sched.AddCron(dailySchedule, spec, firingTimeout, a.trigger.Run); err != nil {
		a.log.Warn("schedule rejected; keeping previous", logx.Err(err))
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigApplied})
	a.log.Info("config applied",
		logx.String("tz", cfg.Schedule.Timezone),
		logx.Time("next", a.sched.Next(dailySchedule)),
		logx.Int("excluded", len(cfg.Horoscope.Exclude)),
		logx.Int("workers", cfg.Broadcast.Workers),
	)
}
