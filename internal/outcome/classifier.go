// Package outcome maps a provider's call analysis onto the closed set of
// call outcomes.
//
// Structured flags win over free-text intent, which wins over the raw
// call status. The keyword layer is a lossy heuristic and the most
// likely source of misclassification.
package outcome

import (
	"slices"
	"strings"

	"github.com/unclebandit/voiceops-backend/internal/model"
)

// Analysis is the subset of the provider's post-call analysis the
// classifier looks at.
type Analysis struct {
	AppointmentBooked *bool
	OptOut            *bool
	CallbackRequested *bool
	Rescheduled       *bool
	WrongNumber       *bool
	Intent            string
}

type phraseRule struct {
	outcome model.Outcome
	phrases []string
	// negatable rules do not match a phrase shortly after a negation
	negatable bool
}

// Opt-out phrases are checked first so a refusal that mentions booking
// still lands on the do-not-call path.
var intentRules = []phraseRule{
	{model.OutcomeOptOut, []string{"do not call", "don't call", "stop calling", "remove me", "take me off", "opt out", "opt_out", "unsubscribe"}, false},
	{model.OutcomeWrongNumber, []string{"wrong number", "wrong_number", "wrong person"}, false},
	{model.OutcomeRescheduled, []string{"reschedul", "different day", "another time"}, true},
	{model.OutcomeCallbackRequested, []string{"callback", "call back", "call me back", "call me later"}, true},
	{model.OutcomeBooked, []string{"appointment", "schedule", "book", "pickup", "pick up"}, true},
	{model.OutcomeVoicemail, []string{"voicemail", "leave message", "leave a message", "answering machine"}, false},
}

var negations = []string{
	"not", "no", "never", "don't", "dont", "didn't", "didnt", "doesn't", "won't", "wont",
	"can't", "cannot", "unable", "declined", "refused", "without",
}

// negationWindow is how many words before a phrase are searched.
const negationWindow = 4

// Classify never fails; anything it cannot place is OTHER.
func Classify(a *Analysis, rawStatus string) model.Outcome {
	if a != nil {
		if o, ok := fromFlags(a); ok {
			return o
		}
		if o, ok := fromIntent(a.Intent); ok {
			return o
		}
	}
	return fromStatus(rawStatus)
}

func isSet(b *bool) bool {
	return b != nil && *b
}

func fromFlags(a *Analysis) (model.Outcome, bool) {
	switch {
	case isSet(a.AppointmentBooked):
		return model.OutcomeBooked, true
	case isSet(a.OptOut):
		return model.OutcomeOptOut, true
	case isSet(a.CallbackRequested):
		return model.OutcomeCallbackRequested, true
	case isSet(a.Rescheduled):
		return model.OutcomeRescheduled, true
	case isSet(a.WrongNumber):
		return model.OutcomeWrongNumber, true
	}
	return "", false
}

func fromIntent(intent string) (model.Outcome, bool) {
	text := strings.ToLower(strings.TrimSpace(intent))
	if text == "" {
		return "", false
	}
	for _, rule := range intentRules {
		for _, p := range rule.phrases {
			if matches(text, p, rule.negatable) {
				return rule.outcome, true
			}
		}
	}
	return "", false
}

// matches reports whether phrase occurs in text, ignoring negated
// occurrences when negatable is set.
func matches(text, phrase string, negatable bool) bool {
	for from := 0; ; {
		i := strings.Index(text[from:], phrase)
		if i < 0 {
			return false
		}
		at := from + i
		if !negatable || !negated(text[:at]) {
			return true
		}
		from = at + len(phrase)
	}
}

// negated looks at the last few words of the clause ending at before.
func negated(before string) bool {
	if i := strings.LastIndexAny(before, ",;.!?"); i >= 0 {
		before = before[i+1:]
	}
	words := strings.Fields(before)
	if len(words) > negationWindow {
		words = words[len(words)-negationWindow:]
	}
	for _, w := range words {
		if slices.Contains(negations, strings.Trim(w, `.,;:!?"'()`)) {
			return true
		}
	}
	return false
}

func fromStatus(status string) model.Outcome {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "no_answer", "no-answer", "noanswer", "no answer":
		return model.OutcomeNoAnswer
	case "busy":
		return model.OutcomeBusy
	case "voicemail", "machine":
		return model.OutcomeVoicemail
	}
	return model.OutcomeOther
}
