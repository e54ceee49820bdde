package app

import (
	"context"
	"strings"

	"remindbot/internal/config"
	logx "remindbot/pkg/logx"
)

// reloadLoop applies committed config changes. Only logging is live;
// every other section needs a restart.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the newest.
			for drained := false; !drained; {
				select {
				case newer, ok := <-sub:
					if !ok {
						return
					}
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(last, next)
			last = next
		}
	}
}

func (a *App) applyConfig(prev, next *config.Config) {
	changed := config.SummarizeChange(prev, next)
	if len(changed) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	st, err := config.Resolve(next)
	if err != nil {
		// Watch validates before publishing; this only guards direct callers.
		a.log.Warn("invalid config; keeping previous", logx.Err(err))
		return
	}

	if a.logs != nil {
		a.logs.Apply(st.Logging)
	}
	a.router.SetLogUpdates(st.LogUpdates)

	if rr := config.RestartRequired(changed); len(rr) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(rr, ",")))
	}
	a.log.Info("config reloaded", logx.String("changed", strings.Join(changed, ",")))
}
