package risk

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Processor periodically sweeps all profiles, releasing expired locks and
// resetting stale daily counters. The same checks also run lazily on every
// profile read; the sweep keeps idle accounts current between reads.
type Processor struct {
	service       *Service
	sweepInterval time.Duration
}

func NewProcessor(service *Service, sweepInterval time.Duration) *Processor {
	return &Processor{
		service:       service,
		sweepInterval: sweepInterval,
	}
}

// Start begins the sweep loop and blocks until the context is cancelled
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "risk_processor").Logger()
	logger.Info().Dur("interval", p.sweepInterval).Msg("starting risk sweep processor")

	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down risk sweep processor")
			return
		case <-ticker.C:
			if err := p.sweep(); err != nil {
				logger.Error().Err(err).Msg("risk sweep failed")
			}
		}
	}
}

func (p *Processor) sweep() error {
	logger := log.With().Str("component", "risk_processor").Logger()

	userIDs, err := p.service.ListUserIDs()
	if err != nil {
		return err
	}

	logger.Debug().Int("profiles", len(userIDs)).Msg("sweeping risk profiles")

	for _, userID := range userIDs {
		if _, err := p.service.TryAutoUnlock(userID); err != nil {
			logger.Error().Err(err).Str("user_id", userID).Msg("auto-unlock check failed")
			continue
		}
		if _, err := p.service.DailyReset(userID); err != nil {
			logger.Error().Err(err).Str("user_id", userID).Msg("daily reset check failed")
		}
	}

	return nil
}
