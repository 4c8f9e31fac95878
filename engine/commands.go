package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	dbmodels "deduction/db/models"
	"deduction/knowledge"
	"deduction/models"
	"deduction/phase"
	"deduction/prompts"
)

// AdvancePhase applies a host-requested manual transition. A nil transition
// with nil error means the game is already over or the transition was
// applied concurrently elsewhere.
func (e *Engine) AdvancePhase(ctx context.Context, gameID, requestedBy string) (*phase.Transition, error) {
	return e.advance(ctx, gameID, phase.CauseManual, requestedBy)
}

func (e *Engine) advance(ctx context.Context, gameID string, cause phase.Cause, requestedBy string) (*phase.Transition, error) {
	tr, err := e.machine.Advance(ctx, gameID, cause, requestedBy)
	if err != nil || tr == nil {
		return tr, err
	}

	if err := e.store.AppendAction(ctx, &dbmodels.ActionDocument{
		GameID:  mustObjectID(gameID),
		Type:    "phase",
		ActorID: requestedBy,
		Note:    fmt.Sprintf("%s -> %s (%s)", tr.From, tr.To, tr.Cause),
	}); err != nil {
		e.logger.Printf("[ACTION_LOG] game %s: %v", gameID, err)
	}

	// Entering the voting phase makes every AI cast its vote.
	if tr.To == phase.Voting {
		if err := e.Vote(ctx, gameID, ""); err != nil {
			e.logger.Printf("[AUTO_VOTE] game %s: %v", gameID, err)
		}
	}
	return tr, nil
}

// Vote makes one agent (or, with an empty characterID, every agent) cast a
// culprit vote. Targets come from the relationship model; the reasoning
// service only dresses the vote up with an in-character rationale and a
// failure there degrades to a stock line.
func (e *Engine) Vote(ctx context.Context, gameID, characterID string) error {
	game, err := e.store.Game(ctx, gameID)
	if err != nil {
		return err
	}
	if phase.Phase(game.Phase) == phase.Ended {
		return ErrGameEnded
	}
	if phase.Phase(game.Phase) != phase.Voting {
		return ErrWrongPhase
	}
	scenario, err := e.scenarioFor(ctx, game)
	if err != nil {
		return err
	}

	agents, err := e.store.AgentsByGame(ctx, gameID)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(4)
	for i := range agents {
		agent := agents[i]
		if characterID != "" && agent.CharacterID != characterID {
			continue
		}
		g.Go(func() error {
			e.castVote(ctx, game, scenario, &agent)
			return nil
		})
	}
	return g.Wait()
}

// castVote picks a target and records the vote. Best-effort throughout.
func (e *Engine) castVote(ctx context.Context, game *dbmodels.GameDocument, scenario *models.ScenarioContent, agent *dbmodels.AgentDocument) {
	gameID := game.ID.Hex()

	var candidates []string
	for _, p := range game.Players {
		if p.CharacterID != agent.CharacterID {
			candidates = append(candidates, p.CharacterID)
		}
	}
	target := PickVoteTarget(agent.Knowledge, candidates)
	if target == "" {
		e.logger.Printf("[VOTE_SKIP] game %s agent %s: no candidates", gameID, agent.CharacterID)
		return
	}

	targetName := target
	if ch := scenario.CharacterByID(target); ch != nil {
		targetName = ch.Name
	}

	rationale := fmt.Sprintf("I vote for %s. Too many things about their story don't add up.", targetName)
	view := prompts.CharacterView{Name: agent.CharacterName, Personality: agent.Personality}
	if line, err := e.reasoner.Generate(ctx, prompts.VoteRationale(view, targetName, agent.Knowledge)); err == nil && line != "" {
		rationale = line
	} else if err != nil {
		e.logger.Printf("[VOTE_RATIONALE] game %s agent %s: %v", gameID, agent.CharacterID, err)
	}

	if err := e.store.AppendAction(ctx, &dbmodels.ActionDocument{
		GameID:   game.ID,
		Type:     "vote",
		ActorID:  agent.CharacterID,
		TargetID: target,
		Note:     rationale,
	}); err != nil {
		e.logger.Printf("[VOTE_SAVE] game %s agent %s: %v", gameID, agent.CharacterID, err)
		return
	}

	index, err := e.store.NextMessageIndex(ctx, gameID)
	if err != nil {
		e.logger.Printf("[VOTE_MESSAGE] game %s: %v", gameID, err)
		return
	}
	if err := e.store.AppendMessage(ctx, &dbmodels.MessageDocument{
		GameID:      game.ID,
		CharacterID: agent.CharacterID,
		Role:        "ai",
		Content:     rationale,
		Index:       index,
		Timestamp:   e.now(),
	}); err != nil {
		e.logger.Printf("[VOTE_MESSAGE] game %s: %v", gameID, err)
	}
}

// PickVoteTarget chooses the candidate the agent is most suspicious of.
// Ties break on how many unresolved contradictions implicate the candidate,
// then on the lexicographically smallest id, keeping the choice
// deterministic.
func PickVoteTarget(base *knowledge.Base, candidates []string) string {
	if base == nil || len(candidates) == 0 {
		return ""
	}

	implicated := make(map[string]int)
	for _, c := range base.Contradictions {
		if c.Status != knowledge.ContradictionUnresolved {
			continue
		}
		for _, p := range c.Parties {
			implicated[p.CharacterID]++
		}
	}

	best := ""
	bestSuspicion, bestImplicated := -1, -1
	for _, id := range candidates {
		suspicion := 0
		if rel, ok := base.Relationships[id]; ok {
			suspicion = rel.Suspicion
		}
		switch {
		case suspicion > bestSuspicion,
			suspicion == bestSuspicion && implicated[id] > bestImplicated,
			suspicion == bestSuspicion && implicated[id] == bestImplicated && (best == "" || id < best):
			best = id
			bestSuspicion = suspicion
			bestImplicated = implicated[id]
		}
	}
	return best
}
