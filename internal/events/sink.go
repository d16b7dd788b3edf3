package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/chandiniv1/secret-number-game/internal/game"
	"github.com/chandiniv1/secret-number-game/internal/metrics"
)

// Sink records committed game events: it appends them to a Log, logs them
// and counts them.
type Sink struct {
	log    Log
	logger zerolog.Logger
}

var _ game.EventSink = (*Sink)(nil)

// NewSink returns a Sink writing to l.
func NewSink(l Log, logger zerolog.Logger) *Sink {
	return &Sink{log: l, logger: logger}
}

// Emit never fails the caller. The mutation has already committed, so a
// failed append is only logged.
func (s *Sink) Emit(ctx context.Context, e game.Event) {
	metrics.EventsTotal.WithLabelValues(string(e.Kind)).Inc()

	ev, err := s.log.Append(ctx, e)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", string(e.Kind)).Msg("event not recorded")
		return
	}
	entry := s.logger.Info().
		Int64("seq", ev.Seq).
		Uint64("round", e.Round)
	if e.Player != "" {
		entry = entry.
			Str("player", e.Player).
			Str("requestId", string(e.RequestID)).
			Uint64("totalGuesses", e.TotalGuesses)
	}
	if e.Kind == game.EventGuessResolved {
		entry = entry.Bool("correct", e.Correct)
	}
	entry.Msg(string(e.Kind))
}
