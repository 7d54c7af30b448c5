package runtime

import (
	"context"
	"time"

	"github.com/aretw0/autotron/pkg/domain"
)

// Start schedules recurring ticks. It fails with domain.ErrNoGraphLoaded when
// the active graph has no nodes. Starting a running engine is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.tickMu.Lock()
	n := len(e.instances)
	e.tickMu.Unlock()
	if n == 0 {
		return domain.ErrNoGraphLoaded
	}

	e.loopMu.Lock()
	defer e.loopMu.Unlock()
	if e.loopCancel != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	e.loopCancel = cancel
	e.loopDone = done

	e.stateMu.Lock()
	e.state = domain.StateRunning
	e.startedAt = e.now()
	e.stateMu.Unlock()

	e.logger.InfoContext(ctx, "Runtime started", "tick_interval", e.tickInterval, "nodes", n)
	go e.loop(loopCtx, done)
	return nil
}

// loop re-arms the timer only after a tick returns, so ticks never overlap.
func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(e.tickInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := e.Tick(ctx, false); err != nil {
			e.logger.WarnContext(ctx, "Tick failed", "err", err)
		}
		timer.Reset(e.tickInterval)
	}
}

// Stop cancels the schedule and waits for an in-flight tick to finish.
// No scheduled tick runs after Stop returns.
func (e *Engine) Stop() {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()

	e.stateMu.Lock()
	if e.state == domain.StateRunning {
		e.state = domain.StateStopped
	}
	e.stateMu.Unlock()

	if e.loopCancel == nil {
		return
	}
	e.loopCancel()
	<-e.loopDone
	e.loopCancel = nil
	e.loopDone = nil

	e.logger.Info("Runtime stopped")
}

// Shutdown stops the engine, destroys every node and waits for in-flight
// actuation to finish. The engine cannot be restarted afterwards.
func (e *Engine) Shutdown() {
	e.Stop()

	if e.verifier != nil {
		e.verifier.Close()
	}

	e.tickMu.Lock()
	for _, inst := range e.instances {
		e.retire(inst)
	}
	e.instances = make(map[string]*instance)
	e.model = nil
	e.tickMu.Unlock()

	e.actCancel()
	e.actWG.Wait()

	e.stateMu.Lock()
	e.state = domain.StateStopped
	e.doc = nil
	e.nodeCount, e.connCount, e.droppedCount = 0, 0, 0
	e.stateMu.Unlock()
}

func (e *Engine) isRunning() bool {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state == domain.StateRunning
}
