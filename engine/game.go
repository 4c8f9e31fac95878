package engine

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"deduction/db"
	dbmodels "deduction/db/models"
	"deduction/phase"
)

// CreateGame sets up a new game instance for a scenario. Characters not
// claimed by a human participant get an AI agent with an empty belief
// state. The game starts in setup; the host advances it from there.
func (e *Engine) CreateGame(ctx context.Context, scenarioID, hostID string, humanCharacters map[string]string) (string, error) {
	scenarioObjID, err := primitive.ObjectIDFromHex(scenarioID)
	if err != nil {
		return "", db.ErrNotFound
	}
	sc, err := e.store.Scenario(ctx, scenarioObjID)
	if err != nil {
		return "", err
	}

	characterToPlayer := make(map[string]string, len(humanCharacters))
	for playerID, charID := range humanCharacters {
		characterToPlayer[charID] = playerID
	}

	caps := phase.Setup.Capabilities()
	game := &dbmodels.GameDocument{
		ScenarioID:   scenarioObjID,
		HostID:       hostID,
		Phase:        string(phase.Setup),
		HumansMayAct: caps.HumansMayAct,
		AIMayTrigger: caps.AIMayTrigger,
	}
	for _, ch := range sc.Content.Characters {
		ref := dbmodels.PlayerRef{CharacterID: ch.ID}
		if playerID, ok := characterToPlayer[ch.ID]; ok {
			ref.PlayerID = playerID
		} else {
			ref.PlayerID = "ai:" + ch.ID
			ref.IsAI = true
		}
		game.Players = append(game.Players, ref)
	}

	gameID, err := e.store.CreateGame(ctx, game)
	if err != nil {
		return "", err
	}

	gameObjID := mustObjectID(gameID)
	for _, ch := range sc.Content.Characters {
		if _, human := characterToPlayer[ch.ID]; human {
			continue
		}
		if err := e.store.CreateAgent(ctx, &dbmodels.AgentDocument{
			GameID:        gameObjID,
			CharacterID:   ch.ID,
			CharacterName: ch.Name,
			Personality:   ch.PersonalityProfile,
		}); err != nil {
			return "", err
		}
	}

	e.logger.Printf("[GAME_CREATED] %s: scenario %s, %d characters, %d human", gameID, scenarioID, len(sc.Content.Characters), len(humanCharacters))
	return gameID, nil
}
