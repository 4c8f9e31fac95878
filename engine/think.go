package engine

import (
	"context"
	"fmt"

	dbmodels "deduction/db/models"
	"deduction/phase"
	"deduction/prompts"
	"deduction/scheduler"
	"deduction/summary"
)

// Think runs one cognition cycle. With an empty characterID the scheduler
// picks the actor; otherwise the named agent acts. The cycle is guarded by
// the game's AI-acting flag, so concurrent triggers collapse into one turn.
// Internal failures degrade to "no update this cycle" and return nil.
func (e *Engine) Think(ctx context.Context, gameID string, trigger Trigger, characterID string) error {
	game, err := e.store.Game(ctx, gameID)
	if err != nil {
		return err
	}
	if phase.Phase(game.Phase) == phase.Ended {
		return ErrGameEnded
	}

	agents, err := e.store.AgentsByGame(ctx, gameID)
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		return nil
	}

	if characterID == "" {
		messages, err := e.store.RecentMessages(ctx, gameID, e.cfg.Contradiction.MessageWindow)
		if err != nil {
			return err
		}
		ranking := e.sched.Rank(ctx, gameID, messages, agentStates(game, agents))
		e.persistSpeakIntents(ctx, gameID, agents, ranking)
		characterID = ranking.Top()
		if characterID == "" {
			return nil
		}
	}

	// Claim the mutual-exclusion flag. Losing the claim means another AI
	// turn is already in flight, which is a benign outcome.
	claimed, err := e.store.SetAIActing(ctx, gameID, true)
	if err != nil {
		return err
	}
	if !claimed {
		e.logger.Printf("[THINK_SKIP] game %s: AI already mid-action (trigger %s)", gameID, trigger)
		return nil
	}
	defer func() {
		if _, err := e.store.SetAIActing(context.WithoutCancel(ctx), gameID, false); err != nil {
			e.logger.Printf("[THINK_UNLOCK] game %s: %v", gameID, err)
		}
	}()

	return e.cognitionCycle(ctx, game, characterID, trigger)
}

// cognitionCycle reads the agent's belief state and the shared digest,
// refreshes contradictions, and produces one spoken turn.
func (e *Engine) cognitionCycle(ctx context.Context, game *dbmodels.GameDocument, characterID string, trigger Trigger) error {
	gameID := game.ID.Hex()

	agent, err := e.store.AgentByCharacter(ctx, gameID, characterID)
	if err != nil {
		e.logger.Printf("[THINK_SKIP] game %s: unknown agent %s", gameID, characterID)
		return nil
	}
	scenario, err := e.scenarioFor(ctx, game)
	if err != nil {
		return err
	}
	character := scenario.CharacterByID(characterID)
	if character == nil {
		e.logger.Printf("[THINK_SKIP] game %s: character %s not in scenario", gameID, characterID)
		return nil
	}

	messages, err := e.store.RecentMessages(ctx, gameID, e.cfg.Contradiction.MessageWindow)
	if err != nil {
		return err
	}
	digest, err := e.store.Digest(ctx, gameID)
	if err != nil {
		return err
	}

	e.refreshContradictions(ctx, gameID, agent, messages)

	view := prompts.CharacterView{
		Name:             character.Name,
		Personality:      character.PersonalityProfile,
		Background:       character.PublicBackground,
		PrivateKnowledge: character.PrivateKnowledge,
		Alibi:            character.Alibi,
	}
	prompt := prompts.CharacterTurn(view, agent.Knowledge, digestState(digest), messages, triggerReason(trigger))

	reply, err := e.reasoner.Generate(ctx, prompt)
	if err != nil {
		// No dialogue this cycle. The turn flow continues regardless.
		e.logger.Printf("[DIALOGUE_FAIL] game %s agent %s: %v", gameID, characterID, err)
		return nil
	}

	return e.speak(ctx, game, characterID, reply)
}

// persistSpeakIntents writes back the want-to-speak flags the ranking
// inferred, so later heuristic fallbacks and prompts see them.
func (e *Engine) persistSpeakIntents(ctx context.Context, gameID string, agents []dbmodels.AgentDocument, ranking scheduler.Ranking) {
	wants := make(map[string]bool, len(ranking.Entries))
	for _, entry := range ranking.Entries {
		wants[entry.CharacterID] = entry.WantsToSpeak
	}
	for _, agent := range agents {
		w, ok := wants[agent.CharacterID]
		if !ok || w == agent.WantsToSpeak {
			continue
		}
		if err := e.store.SetWantsToSpeak(ctx, gameID, agent.CharacterID, w); err != nil {
			e.logger.Printf("[SPEAK_INTENT] game %s agent %s: %v", gameID, agent.CharacterID, err)
		}
	}
}

// refreshContradictions runs decay and then detection against the recent
// window, applying relationship fallout for newly implicated parties.
func (e *Engine) refreshContradictions(ctx context.Context, gameID string, agent *dbmodels.AgentDocument, messages []dbmodels.MessageDocument) {
	base := agent.Knowledge
	dirty := e.contras.Decay(base.Contradictions) > 0

	fresh := e.contras.Detect(ctx, agent.CharacterName, messages, base.Facts, base.Contradictions)
	if len(fresh) > 0 {
		base.Contradictions = append(base.Contradictions, fresh...)
		dirty = true
	}

	if dirty {
		if err := e.store.SaveContradictions(ctx, gameID, agent.CharacterID, base.Contradictions); err != nil {
			e.logger.Printf("[CONTRA_SAVE] game %s agent %s: %v", gameID, agent.CharacterID, err)
		}
	}

	for _, c := range fresh {
		for _, p := range c.Parties {
			if p.CharacterID == agent.CharacterID {
				continue
			}
			note := fmt.Sprintf("caught in a %s contradiction: %s", c.Type, c.Description)
			if err := e.knowledge.UpdateRelationship(ctx, gameID, agent.CharacterID, p.CharacterID,
				-c.Severity/20, c.Severity/10, note, "contradiction"); err != nil {
				e.logger.Printf("[REL_UPDATE] game %s agent %s: %v", gameID, agent.CharacterID, err)
			}
		}
	}
}

// speak records the agent's line: message, action log, spoke bookkeeping.
func (e *Engine) speak(ctx context.Context, game *dbmodels.GameDocument, characterID, content string) error {
	gameID := game.ID.Hex()

	index, err := e.store.NextMessageIndex(ctx, gameID)
	if err != nil {
		return err
	}
	now := e.now()
	if err := e.store.AppendMessage(ctx, &dbmodels.MessageDocument{
		GameID:      game.ID,
		CharacterID: characterID,
		Role:        "ai",
		Content:     content,
		Index:       index,
		Timestamp:   now,
	}); err != nil {
		return err
	}

	if err := e.store.AppendAction(ctx, &dbmodels.ActionDocument{
		GameID:  game.ID,
		Type:    "dialogue",
		ActorID: characterID,
	}); err != nil {
		e.logger.Printf("[ACTION_LOG] game %s: %v", gameID, err)
	}
	if err := e.store.MarkSpoke(ctx, gameID, characterID, now); err != nil {
		e.logger.Printf("[MARK_SPOKE] game %s agent %s: %v", gameID, characterID, err)
	}
	if err := e.store.BumpSilentRounds(ctx, gameID, characterID); err != nil {
		e.logger.Printf("[SILENT_ROUNDS] game %s: %v", gameID, err)
	}
	return nil
}

func triggerReason(t Trigger) string {
	switch t {
	case TriggerPhaseChange:
		return "the game just moved to a new phase"
	case TriggerNewMessage:
		return "someone just said something you may want to respond to"
	case TriggerTimerTick:
		return "the conversation has gone quiet and you want to move it forward"
	case TriggerCardRevealed:
		return "a piece of evidence was just revealed"
	case TriggerPlayerJoined:
		return "a new participant just joined"
	default:
		return "the host asked you to speak"
	}
}

// digestState converts a stored digest into the prompt view.
func digestState(d *summary.Digest) prompts.DigestState {
	view := prompts.DigestState{}
	for _, f := range d.Facts {
		view.Facts = append(view.Facts, string(f.Category)+": "+f.Content)
	}
	for _, q := range d.Questions {
		if q.Status == summary.QuestionOpen {
			view.OpenQuestions = append(view.OpenQuestions, q.Content)
		}
	}
	for _, t := range d.Topics {
		if t.Status == summary.TopicSaturated {
			view.SaturatedTopics = append(view.SaturatedTopics, t.Name)
		}
	}
	return view
}
