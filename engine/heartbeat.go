package engine

import (
	"context"

	"deduction/phase"
)

// Heartbeat is the periodic tick for one game: it fires overdue timer
// transitions, evaluates the AI auto-trigger policy, and gives the
// summarizer a chance to drain its backlog. Each concern degrades
// independently; the heartbeat itself never fails the loop.
func (e *Engine) Heartbeat(ctx context.Context, gameID string) {
	game, err := e.store.Game(ctx, gameID)
	if err != nil {
		e.logger.Printf("[HEARTBEAT] game %s: %v", gameID, err)
		return
	}
	if phase.Phase(game.Phase) == phase.Ended {
		return
	}

	if e.machine.DeadlineElapsed(game) {
		if _, err := e.advance(ctx, gameID, phase.CauseTimer, ""); err != nil {
			e.logger.Printf("[HEARTBEAT] game %s: timer transition: %v", gameID, err)
		}
		// Re-read so the auto-trigger sees the new phase's flags.
		if game, err = e.store.Game(ctx, gameID); err != nil {
			e.logger.Printf("[HEARTBEAT] game %s: %v", gameID, err)
			return
		}
	}

	lastMsg, err := e.store.LastMessageTime(ctx, gameID)
	if err != nil {
		e.logger.Printf("[HEARTBEAT] game %s: %v", gameID, err)
		return
	}
	decision := e.sched.ShouldAutoTrigger(game, lastMsg, e.sched.PeriodicThreshold())
	if decision.Fire {
		e.autoThink(ctx, gameID)
	}

	if err := e.summarizer.Run(ctx, gameID); err != nil {
		e.logger.Printf("[HEARTBEAT] game %s: summarizer: %v", gameID, err)
	}
}

// autoThink re-checks the silence gate at invocation time with the lower
// bound before actually firing a cognition cycle, keeping the scheduler
// responsive without letting a stale heartbeat decision double-fire.
func (e *Engine) autoThink(ctx context.Context, gameID string) {
	game, err := e.store.Game(ctx, gameID)
	if err != nil {
		e.logger.Printf("[AUTO_THINK] game %s: %v", gameID, err)
		return
	}
	lastMsg, err := e.store.LastMessageTime(ctx, gameID)
	if err != nil {
		e.logger.Printf("[AUTO_THINK] game %s: %v", gameID, err)
		return
	}
	decision := e.sched.ShouldAutoTrigger(game, lastMsg, e.sched.InvokeThreshold())
	if !decision.Fire {
		e.logger.Printf("[AUTO_THINK] game %s: gate closed at invocation: %s", gameID, decision.Reason)
		return
	}
	e.logger.Printf("[AUTO_THINK] game %s: firing after %s of silence", gameID, decision.Elapsed)

	if err := e.Think(ctx, gameID, TriggerTimerTick, ""); err != nil {
		e.logger.Printf("[AUTO_THINK] game %s: %v", gameID, err)
	}
}
