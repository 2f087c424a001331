package brokerobs

import (
	"context"
	"time"

	"mytradingsignal/internal/interfaces"
	"mytradingsignal/internal/logger"
	"mytradingsignal/internal/metrics"
	"mytradingsignal/internal/types"
)

// observableUpstream wraps an Upstream with observability (logging & tracing)
type observableUpstream struct {
	up interfaces.Upstream
}

// Compile-time interface check
var _ interfaces.Upstream = (*observableUpstream)(nil)

// Wrap wraps an upstream with observability middleware
func Wrap(up interfaces.Upstream) interfaces.Upstream {
	return &observableUpstream{up: up}
}

// CheckCredential validates the credential with observability
func (ob *observableUpstream) CheckCredential(ctx context.Context) error {
	op := logger.StartOperation(ctx, "upstream.CheckCredential")
	ctx = op.GetContext()

	start := time.Now()
	err := ob.up.CheckCredential(ctx)
	metrics.UpstreamLatency.WithLabelValues("check_credential").Observe(time.Since(start).Seconds())
	if err != nil {
		end(ctx, op, "Credential check failed", err)
		return err
	}

	op.End()
	logger.InfoSkip(ctx, 1, "Credential check passed")
	return nil
}

// Stream runs the live stream with a span covering the whole connection.
func (ob *observableUpstream) Stream(ctx context.Context, events chan<- types.StreamEvent) error {
	op := logger.StartOperation(ctx, "upstream.Stream", "instruments", len(ob.up.Instruments()))
	ctx = op.GetContext()

	err := ob.up.Stream(ctx, events)
	if err != nil && ctx.Err() == nil {
		end(ctx, op, "Upstream stream ended", err)
		return err
	}

	op.End()
	logger.DebugSkip(ctx, 1, "Upstream stream closed")
	return err
}

// Poll fetches a REST snapshot with observability
func (ob *observableUpstream) Poll(ctx context.Context) ([]types.RawTick, error) {
	op := logger.StartOperation(ctx, "upstream.Poll")
	ctx = op.GetContext()

	start := time.Now()
	ticks, err := ob.up.Poll(ctx)
	metrics.UpstreamLatency.WithLabelValues("poll").Observe(time.Since(start).Seconds())
	if err != nil {
		end(ctx, op, "Failed to poll upstream", err)
		return nil, err
	}

	op.End("ticks", len(ticks))
	return ticks, nil
}

func (ob *observableUpstream) Instruments() []types.Instrument {
	return ob.up.Instruments()
}

// end closes op for a failed call. Throttling and cancellation are expected
// and logged as warnings; everything else fails the span.
func end(ctx context.Context, op *logger.OperationTimer, msg string, err error) {
	cls := types.Classify(err)
	if cls == types.ClassRateLimited || cls == types.ClassCanceled {
		op.End("class", cls.String())
		logger.WarnSkip(ctx, 2, msg, "class", cls.String(), "error", err)
		return
	}
	op.EndWithError(err, "class", cls.String())
}
