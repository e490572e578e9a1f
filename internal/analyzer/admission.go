package analyzer

import (
	"context"
	"time"

	"patchscope/internal/metrics"
)

// begin reserves a queue slot and then an in-flight slot.
// Returns a release func to be deferred.
func (a *Analyzer) begin(ctx context.Context) (func(), error) {
	if a.closed.Load() {
		return func() {}, ErrNotLoaded
	}
	// Fast path: respect an already-canceled context
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}

	timer := time.NewTimer(a.maxWait)
	defer timer.Stop()
	select {
	case a.queueCh <- struct{}{}:
		metrics.QueueEnter()
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		return func() {}, tooBusyError{modelID: a.modelID}
	}

	acquired := false
	defer func() {
		if !acquired {
			<-a.queueCh
			metrics.QueueLeave()
		}
	}()
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	// The queue wait already consumed part of the budget.
	select {
	case a.genCh <- struct{}{}:
		acquired = true
		metrics.InflightEnter()
		return func() {
			<-a.genCh
			metrics.InflightLeave()
			<-a.queueCh
			metrics.QueueLeave()
		}, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		return func() {}, tooBusyError{modelID: a.modelID}
	}
}
