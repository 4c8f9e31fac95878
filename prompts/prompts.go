package prompts

import (
	"fmt"
	"strings"
	"time"

	dbmodels "deduction/db/models"
	"deduction/knowledge"
)

// formatMessages renders a message window for inclusion in a prompt.
func formatMessages(messages []dbmodels.MessageDocument) string {
	if len(messages) == 0 {
		return "No messages yet."
	}
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "[%d] %s: %s\n", m.Index, m.CharacterID, m.Content)
	}
	return b.String()
}

func formatFacts(facts []knowledge.Fact) string {
	if len(facts) == 0 {
		return "No established facts yet."
	}
	var b strings.Builder
	for _, f := range facts {
		fmt.Fprintf(&b, "- %s (source: %s, confidence: %d)\n", f.Content, f.Source, f.Confidence)
	}
	return b.String()
}

func formatContradictions(contras []knowledge.Contradiction) string {
	if len(contras) == 0 {
		return "None recorded."
	}
	var b strings.Builder
	for _, c := range contras {
		ids := make([]string, 0, len(c.Parties))
		for _, p := range c.Parties {
			ids = append(ids, p.CharacterID)
		}
		fmt.Fprintf(&b, "- [%s] %s (involves: %s)\n", c.Type, c.Description, strings.Join(ids, ", "))
	}
	return b.String()
}

// ContradictionScan builds the strict-policy contradiction detection prompt.
func ContradictionScan(agentName string, messages []dbmodels.MessageDocument, facts []knowledge.Fact, existing []knowledge.Contradiction, maxPerRun int) string {
	return fmt.Sprintf(`You are the analytical inner voice of %s, a participant in a murder mystery investigation. Examine the recent conversation for logical contradictions.

RECENT CONVERSATION:
%s

FACTS YOU KNOW:
%s

CONTRADICTIONS YOU HAVE ALREADY NOTICED (do not report these again):
%s

STRICT RULES:
- Report AT MOST %d new contradictions. Fewer is fine. An empty list is fine.
- A contradiction is a genuine logical inconsistency between statements, between a statement and the established timeline, or between a statement and an observed action.
- Subjective impressions, emotional statements, and opinions are NOT contradictions.
- Someone saying "I don't remember exactly" or being vague is NOT a contradiction.
- Do not report anything that duplicates an already-noticed contradiction.

Respond with a JSON array. Each element:
{
  "type": "statement" | "timeline" | "action",
  "description": "<one sentence describing the inconsistency>",
  "parties": [{"character_id": "<id>", "excerpt": "<the statement or action>"}],
  "severity": <0-100, how damning this is if unexplained>,
  "reasoning": "<why this qualifies as a contradiction>"
}

Respond with [] if nothing qualifies.`,
		agentName,
		formatMessages(messages),
		formatFacts(facts),
		formatContradictions(existing),
		maxPerRun)
}

// AgentTurnState is the per-agent scheduling input rendered into the turn
// ranking prompt.
type AgentTurnState struct {
	CharacterID  string
	Name         string
	LastSpokeAt  *time.Time
	KnownFacts   int
	WantsToSpeak bool
}

// TurnRanking builds the reasoning-backed speaker ranking prompt.
func TurnRanking(messages []dbmodels.MessageDocument, agents []AgentTurnState, prevTop string) string {
	var states strings.Builder
	for _, a := range agents {
		last := "never"
		if a.LastSpokeAt != nil {
			last = a.LastSpokeAt.Format(time.RFC3339)
		}
		fmt.Fprintf(&states, "- %s (%s): last spoke %s, knows %d facts, wants to speak: %t\n",
			a.Name, a.CharacterID, last, a.KnownFacts, a.WantsToSpeak)
	}

	domination := ""
	if prevTop != "" {
		domination = fmt.Sprintf("\nIMPORTANT: %s was ranked first last round. Deprioritize them this round so no one dominates the conversation.\n", prevTop)
	}

	return fmt.Sprintf(`You are the director of a murder mystery game. Decide which AI character should speak next so the conversation stays lively and fair.

RECENT CONVERSATION:
%s

CHARACTERS:
%s%s
Consider who was addressed, who has relevant knowledge, who has been quiet, and pacing.

Respond with a JSON array ordering EVERY character listed above, most urgent first:
[{"character_id": "<id>", "priority": <0-100>, "reason": "<short rationale>", "wants_to_speak": <bool>}]`,
		formatMessages(messages),
		states.String(),
		domination)
}

// DigestState is the existing-digest view rendered into the merge prompt.
type DigestState struct {
	Facts           []string
	OpenQuestions   []string
	SaturatedTopics []string
}

func formatList(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "- %s\n", it)
	}
	return b.String()
}

// DigestMerge builds the incremental case digest update prompt.
func DigestMerge(state DigestState, messages []dbmodels.MessageDocument) string {
	return fmt.Sprintf(`You maintain the objective case digest of a murder mystery investigation. Extract ONLY what the NEW messages add.

DIGEST SO FAR — ESTABLISHED FACTS:
%s

OPEN QUESTIONS:
%s

TOPICS ALREADY DISCUSSED TO EXHAUSTION:
%s

NEW MESSAGES:
%s

Rules:
- Only record facts participants actually established, not speculation.
- If a new message answers an open question listed above, report it under answered_questions using the question's exact wording.
- Count how often each discussion topic comes up in the new messages.
- Note in-character physical or roleplay actions separately from dialogue.
- Note any contradictions participants called out.

Respond in JSON:
{
  "facts": [{"content": "<fact>", "category": "timeline" | "alibi" | "evidence" | "relationship" | "motive" | "other"}],
  "new_questions": ["<newly raised unanswered question>"],
  "answered_questions": [{"question": "<exact open question>", "answer": "<the answer given>"}],
  "topics": [{"name": "<topic>", "mentions": <count in new messages>}],
  "rp_actions": [{"character_id": "<id>", "description": "<what they did>"}],
  "contradiction_notes": ["<contradiction a participant pointed out>"]
}`,
		formatList(state.Facts, "Nothing established yet."),
		formatList(state.OpenQuestions, "None."),
		formatList(state.SaturatedTopics, "None."),
		formatMessages(messages))
}
