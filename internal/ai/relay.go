package ai

import (
	"context"
	"errors"

	"github.com/workloadinsights/backend/internal/observability"
)

// Emitter writes one named event to the client. realtime.SSEWriter
// satisfies it.
type Emitter interface {
	Event(name string, data any) error
}

type RelayResult struct {
	Chars     int
	Chunks    int
	Truncated bool
	Reason    string
}

// ContinuationText is appended to a truncated answer.
const ContinuationText = "Response truncated. Ask me to continue for the rest."

var errCeiling = errors.New("ai: relay ceiling reached")

// Relay streams req from p through chunker and emits `chunk` events, then a
// `continuation` event when the chunker stopped early. Emit failures
// (usually a gone client) abort the provider call.
func Relay(ctx context.Context, p Provider, req Request, chunker *Chunker, emit Emitter) (RelayResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	send := func(pieces []string) error {
		for _, piece := range pieces {
			if err := emit.Event("chunk", map[string]string{"text": piece}); err != nil {
				return err
			}
			observability.AIChunks.Inc()
		}
		return nil
	}

	err := p.Stream(ctx, req, func(delta string) error {
		if err := send(chunker.Push(delta)); err != nil {
			return err
		}
		if chunker.Truncated() {
			return errCeiling
		}
		return nil
	})
	if err != nil && !errors.Is(err, errCeiling) {
		return result(chunker), err
	}
	if err := send(chunker.Flush()); err != nil {
		return result(chunker), err
	}
	res := result(chunker)
	if res.Truncated {
		if err := emit.Event("continuation", map[string]any{
			"reason":  res.Reason,
			"message": ContinuationText,
		}); err != nil {
			return res, err
		}
	}
	return res, nil
}

func result(c *Chunker) RelayResult {
	return RelayResult{
		Chars:     c.Chars(),
		Chunks:    c.Chunks(),
		Truncated: c.Truncated(),
		Reason:    c.Reason(),
	}
}
