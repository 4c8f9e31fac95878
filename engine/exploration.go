package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	dbmodels "deduction/db/models"
	"deduction/knowledge"
	"deduction/phase"
)

// ExplorationAction spends one of a player's exploration actions, either
// revealing a card or skipping. A reveal propagates direct card knowledge
// to every agent concurrently; when the last budget runs out the phase's
// completion condition fires.
func (e *Engine) ExplorationAction(ctx context.Context, gameID, playerID, cardID string) error {
	game, err := e.store.Game(ctx, gameID)
	if err != nil {
		return err
	}
	if phase.Phase(game.Phase) == phase.Ended {
		return ErrGameEnded
	}
	if !phase.Phase(game.Phase).Exploration() || !game.HumansMayAct {
		return ErrWrongPhase
	}

	var player *dbmodels.PlayerRef
	for i := range game.Players {
		if game.Players[i].PlayerID == playerID {
			player = &game.Players[i]
			break
		}
	}
	if player == nil {
		return ErrPlayerNotFound
	}

	scenario, err := e.scenarioFor(ctx, game)
	if err != nil {
		return err
	}

	skip := cardID == ""
	var card *phaseCard
	if !skip {
		c := scenario.CardByID(cardID)
		if c == nil {
			return ErrCardNotFound
		}
		card = &phaseCard{id: c.ID, title: c.Title, description: c.Description, holderID: c.HolderID}
	}

	// Spend the budget with a conditional write so two concurrent actions
	// cannot overdraw it.
	spent, err := e.store.SpendExplorationAction(ctx, gameID, playerID)
	if err != nil {
		return err
	}
	if !spent {
		return ErrNoBudget
	}

	action := &dbmodels.ActionDocument{
		GameID:  game.ID,
		Type:    "exploration",
		ActorID: playerID,
	}
	if skip {
		action.Note = "skipped"
	} else {
		action.Type = "reveal"
		action.CardID = card.id
		action.Note = card.title
	}
	if err := e.store.AppendAction(ctx, action); err != nil {
		e.logger.Printf("[ACTION_LOG] game %s: %v", gameID, err)
	}

	if !skip {
		e.propagateReveal(ctx, game, player.CharacterID, card)
	}

	e.maybeCompleteExploration(ctx, gameID)
	return nil
}

type phaseCard struct {
	id          string
	title       string
	description string
	holderID    string
}

// propagateReveal writes direct card knowledge into every agent's belief
// state. These writes are state-critical, so the knowledge store's
// retry-once policy applies; per-agent partitioning makes the concurrent
// fan-out conflict-free.
func (e *Engine) propagateReveal(ctx context.Context, game *dbmodels.GameDocument, revealerID string, card *phaseCard) {
	gameID := game.ID.Hex()
	agents, err := e.store.AgentsByGame(ctx, gameID)
	if err != nil {
		e.logger.Printf("[REVEAL_PROP] game %s: %v", gameID, err)
		return
	}

	fact := fmt.Sprintf("Card %q was revealed by %s: %s", card.title, revealerID, card.description)

	var g errgroup.Group
	g.SetLimit(4)
	for i := range agents {
		agent := agents[i]
		g.Go(func() error {
			if err := e.knowledge.RecordCardKnowledge(ctx, gameID, agent.CharacterID, knowledge.CardKnowledge{
				CardID:       card.id,
				Status:       knowledge.CardKnown,
				HolderID:     card.holderID,
				ContentGuess: card.description,
				Confidence:   100,
				Source:       knowledge.SourceDirect,
			}); err != nil {
				e.logger.Printf("[REVEAL_PROP] game %s agent %s: %v", gameID, agent.CharacterID, err)
			}
			if err := e.knowledge.AddFact(ctx, gameID, agent.CharacterID, fact,
				knowledge.SourceDirect, 100, []string{"evidence"}, true); err != nil {
				e.logger.Printf("[REVEAL_PROP] game %s agent %s: %v", gameID, agent.CharacterID, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// maybeCompleteExploration advances the phase once every player's budget is
// exhausted. The condition is re-read from the store so duplicate callers
// converge on the machine's conditional write.
func (e *Engine) maybeCompleteExploration(ctx context.Context, gameID string) {
	game, err := e.store.Game(ctx, gameID)
	if err != nil {
		e.logger.Printf("[EXPLORE_DONE] game %s: %v", gameID, err)
		return
	}
	if !phase.Phase(game.Phase).Exploration() {
		return
	}
	for _, p := range game.Players {
		if p.ExplorationBudget > 0 {
			return
		}
	}
	if _, err := e.advance(ctx, gameID, phase.CauseConditionMet, ""); err != nil {
		e.logger.Printf("[EXPLORE_DONE] game %s: %v", gameID, err)
	}
}
