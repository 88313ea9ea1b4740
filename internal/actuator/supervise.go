package actuator

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"turret-ctrl/internal/state"
	"turret-ctrl/internal/timeutil"
)

// Supervise runs fn until shutdown, restarting it after delay whenever it
// returns. onFailure runs after every failed attempt, before the delay.
func Supervise(ctx context.Context, st *state.Control, clock timeutil.Clock, delay time.Duration, log zerolog.Logger, fn func(context.Context) error, onFailure func()) error {
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil || st.ExitRequested() {
			return nil
		}

		err := fn(ctx)
		if ctx.Err() != nil || st.ExitRequested() {
			return nil
		}
		if onFailure != nil {
			onFailure()
		}
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("loop failed")
		} else {
			log.Warn().Int("attempt", attempt).Dur("retry_in", delay).Msg("loop returned, restarting")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-clock.After(delay):
		}
	}
}
