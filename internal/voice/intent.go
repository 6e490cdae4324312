// Package voice implements the call session state machine, the intent
// classifier, and the tool router that the voice agent drives the engine
// through. The speech pipeline itself (STT/LLM/TTS) stays outside: the
// session consumes transcribed utterances and produces reply text.
package voice

import (
	"strings"

	"github.com/bethesda-shelter/backend/internal/config"
)

// Intent is the closed set of caller intents.
type Intent string

const (
	IntentBedInquiry Intent = "bed_inquiry"
	IntentChapel     Intent = "chapel"
	IntentVolunteer  Intent = "volunteer"
	IntentDonation   Intent = "donation"
	IntentCrisis     Intent = "crisis"
	IntentOther      Intent = "other"
)

// Classifier maps utterances to intents against the configured keyword
// lists. Classification is strict: crisis requires an explicit self-harm
// phrase from the closed multilingual list, so statements of homelessness,
// hunger, or urgency route to bed_inquiry, never crisis.
type Classifier struct {
	keywords *config.Keywords
}

// NewClassifier creates a classifier over the given keyword lists.
func NewClassifier(kw *config.Keywords) *Classifier {
	return &Classifier{keywords: kw}
}

// Classify returns the intent for an utterance. Crisis is checked first
// and wins over everything else.
func (c *Classifier) Classify(utterance string) Intent {
	text := normalize(utterance)
	if text == "" {
		return IntentOther
	}

	if c.IsCrisis(text) {
		return IntentCrisis
	}
	// The bed list is the broadest (it carries urgency words), so the
	// narrower intents are checked first.
	if containsAny(text, c.keywords.Chapel) {
		return IntentChapel
	}
	if containsAny(text, c.keywords.Volunteer) {
		return IntentVolunteer
	}
	if containsAny(text, c.keywords.Donation) {
		return IntentDonation
	}
	if containsAny(text, c.keywords.Bed) {
		return IntentBedInquiry
	}
	return IntentOther
}

// IsCrisis reports whether the utterance contains an explicit crisis
// phrase in any configured language.
func (c *Classifier) IsCrisis(utterance string) bool {
	text := normalize(utterance)
	for _, phrases := range c.keywords.Crisis {
		if containsAny(text, phrases) {
			return true
		}
	}
	return false
}

// IsFarewell reports whether the utterance is an explicit farewell in any
// configured language.
func (c *Classifier) IsFarewell(utterance string) bool {
	text := normalize(utterance)
	for _, phrases := range c.keywords.Farewell {
		if containsAny(text, phrases) {
			return true
		}
	}
	return false
}

// DetectLanguage guesses the caller's language from marker words. The
// language with the most marker hits wins; English is kept when no marker
// matches. Which language wins between equal non-zero counts follows map
// iteration order and is not defined.
func (c *Classifier) DetectLanguage(utterance string) string {
	text := normalize(utterance)
	best, bestHits := "en", 0
	for lang, markers := range c.keywords.Markers {
		hits := 0
		for _, m := range markers {
			if strings.Contains(text, normalize(m)) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = lang, hits
		}
	}
	return best
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if p == "" {
			continue
		}
		if strings.Contains(text, normalize(p)) {
			return true
		}
	}
	return false
}
