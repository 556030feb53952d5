package arena

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rsproule/llm-gladiators/internal/models"
)

// Outcome is the result of evaluating one completed utterance. Winner is
// empty when the game continues.
type Outcome struct {
	Winner string
	Reason string
}

// EvaluateWinner computes the game outcome from one participant's completed
// utterance. The test is a case-insensitive substring match on the target
// word; a defense utterance containing the word only wins if it appears in
// the strict guess pattern `guess: "<word>"` (quotes required).
//
// The offense branch with the word present is unreachable under correct
// orchestration: the offense is never penalized for saying its own secret
// word, so reaching it signals an invariant violation, not a game outcome.
func EvaluateWinner(full, targetWord string, role models.Role) Outcome {
	containsTarget := strings.Contains(strings.ToLower(full), strings.ToLower(targetWord))

	if !containsTarget {
		return Outcome{Reason: "No one said the target word: " + targetWord}
	}

	if role == models.RoleDefense {
		guessPattern := regexp.MustCompile(`(?i)guess:\s*"` + regexp.QuoteMeta(targetWord) + `"`)
		if guessPattern.MatchString(full) {
			return Outcome{
				Winner: models.WinnerDefense,
				Reason: "Defense correctly guessed the target word: " + targetWord,
			}
		}
		return Outcome{
			Winner: models.WinnerOffense,
			Reason: "Defense said the target word outside of the guess: " + targetWord,
		}
	}

	return Outcome{Reason: fmt.Sprintf("Unexpected condition: %s said the target word", role)}
}
