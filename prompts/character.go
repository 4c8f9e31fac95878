package prompts

import (
	"fmt"
	"strings"

	dbmodels "deduction/db/models"
	"deduction/knowledge"
)

// CharacterView bundles everything a dialogue prompt needs to know about
// the speaking character.
type CharacterView struct {
	Name             string
	Personality      string
	Background       string
	PrivateKnowledge string
	Alibi            string
}

// CharacterTurn builds the dialogue prompt for one AI turn. The agent sees
// its own belief state and the shared digest, never the ground truth.
func CharacterTurn(ch CharacterView, base *knowledge.Base, digest DigestState, messages []dbmodels.MessageDocument, trigger string) string {
	var cards strings.Builder
	for _, ck := range base.Cards {
		if ck.Status == knowledge.CardUnknown {
			continue
		}
		fmt.Fprintf(&cards, "- card %s: status %s", ck.CardID, ck.Status)
		if ck.HolderID != "" {
			fmt.Fprintf(&cards, ", held by %s", ck.HolderID)
		}
		if ck.ContentGuess != "" {
			fmt.Fprintf(&cards, ", you believe: %s", ck.ContentGuess)
		}
		fmt.Fprintf(&cards, " (confidence %d)\n", ck.Confidence)
	}
	if cards.Len() == 0 {
		cards.WriteString("You know of no cards yet.\n")
	}

	var stances strings.Builder
	for _, rel := range base.Relationships {
		fmt.Fprintf(&stances, "- toward %s: trust %d, suspicion %d, tone %s\n",
			rel.TargetID, rel.Trust, rel.Suspicion, rel.Tone)
	}
	if stances.Len() == 0 {
		stances.WriteString("No strong feelings yet.\n")
	}

	unresolved := base.UnresolvedContradictions()

	return fmt.Sprintf(`You are %s in a murder mystery. Stay fully in character.

PERSONALITY: %s

BACKGROUND: %s

WHAT ONLY YOU KNOW (never state this outright unless cornered): %s

YOUR ALIBI: %s

WHAT YOU BELIEVE ABOUT THE EVIDENCE:
%s
YOUR STANCE TOWARD THE OTHERS:
%s
INCONSISTENCIES YOU HAVE NOTICED:
%s
SHARED CASE DIGEST (what the group has established):
%s

AVOID REHASHING these exhausted topics: %s

RECENT CONVERSATION:
%s

You are speaking now because: %s.

Respond with ONLY your spoken dialogue, one to three sentences, no stage directions, no quotation marks, no character name prefix. Never invent evidence or events outside what you know. If you suspect someone, let it color your words the way your personality would.`,
		ch.Name,
		ch.Personality,
		ch.Background,
		ch.PrivateKnowledge,
		ch.Alibi,
		cards.String(),
		stances.String(),
		formatContradictions(unresolved),
		formatList(digest.Facts, "Nothing established yet."),
		strings.Join(digest.SaturatedTopics, ", "),
		formatMessages(messages),
		trigger)
}

// VoteRationale builds the prompt asking a character to justify its vote.
func VoteRationale(ch CharacterView, targetName string, base *knowledge.Base) string {
	return fmt.Sprintf(`You are %s in a murder mystery, and the group is voting on who the culprit is. You have decided to vote for %s.

PERSONALITY: %s

INCONSISTENCIES YOU NOTICED:
%s

Respond with ONLY one or two spoken sentences, in character, explaining why you are voting for %s.`,
		ch.Name,
		targetName,
		ch.Personality,
		formatContradictions(base.UnresolvedContradictions()),
		targetName)
}
