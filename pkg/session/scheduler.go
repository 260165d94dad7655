package session

import "github.com/rs/zerolog"

// Scheduler runs a task in the background. The orchestrator never blocks a
// producer on analysis work; it hands the task off and returns.
type Scheduler func(task func())

// GoScheduler runs each task on its own goroutine with panic recovery
func GoScheduler(logger zerolog.Logger) Scheduler {
	log := logger.With().Str("module", "scheduler").Logger()

	return func(task func()) {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("Background task panicked")
				}
			}()
			task()
		}()
	}
}
