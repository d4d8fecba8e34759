package queue

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Promoter is implemented by the gateway: it resolves a promoted id to a
// live connection and begins its handoff. It returns false if the id no
// longer resolves, in which case the controller returns the reserved slot.
type Promoter interface {
	Promote(id int64) bool
}

// Controller drains the wait queue on a fixed tick. Each tick promotes as
// many heads as free capacity allows; connection establishment happens on
// the gateway's side and never blocks the tick loop.
type Controller struct {
	Admission *Admission
	Interval  time.Duration
	Promoter  Promoter
	Logger    *logrus.Logger
}

// Start runs the tick loop until the context is canceled.
func (c *Controller) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.tick()
			}
		}
	}()
}

func (c *Controller) tick() {
	for {
		id, ok := c.Admission.ReserveNext()
		if !ok {
			return
		}
		if !c.Promoter.Promote(id) {
			// Queued connection vanished between ticks; skip it.
			c.Admission.Release()
			c.Logger.Debugf("skipped promotion of stale connection %d", id)
		}
	}
}
