package action

import (
	"context"
	"time"

	"github.com/sophialabs/mockexpect/internal/domain/dispatch"
)

// Sleeper waits for a duration unless ctx ends first.
type Sleeper interface {
	SleepContext(ctx context.Context, d time.Duration) error
}

// delayed holds back the inner action until the delay has elapsed, so no
// response byte can be written earlier.
type delayed struct {
	inner dispatch.Action
	delay time.Duration
	clock Sleeper
}

func withDelay(inner dispatch.Action, delay time.Duration, clock Sleeper) dispatch.Action {
	if delay <= 0 {
		return inner
	}
	return &delayed{inner: inner, delay: delay, clock: clock}
}

func (d *delayed) Process(ctx context.Context, req *dispatch.Request, w dispatch.ResponseSink) error {
	if err := d.clock.SleepContext(ctx, d.delay); err != nil {
		return err
	}
	return d.inner.Process(ctx, req, w)
}
