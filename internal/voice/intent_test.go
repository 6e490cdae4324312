package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bethesda-shelter/backend/internal/config"
)

func newTestClassifier() *Classifier {
	return NewClassifier(config.DefaultKeywords())
}

func TestCrisisRequiresExplicitPhrases(t *testing.T) {
	c := newTestClassifier()

	crisis := []string{
		"I want to kill myself",
		"I've been thinking about suicide",
		"Quiero matarme.",
		"Estoy pensando en quitarme la vida",
		"Eu quero me matar",
		"Penso em suicídio",
		"Je veux me tuer",
		"Je pense au suicide",
	}
	for _, utterance := range crisis {
		assert.Equal(t, IntentCrisis, c.Classify(utterance), "utterance %q", utterance)
	}
}

func TestShelterNeedIsNeverCrisis(t *testing.T) {
	c := newTestClassifier()

	need := []string{
		"I'm homeless and I need a bed tonight",
		"I'm desperate, do you have space?",
		"Necesito una cama, estoy sin hogar",
		"Preciso de um leito, estou sem teto",
		"J'ai besoin d'un lit, je suis sans abri",
	}
	for _, utterance := range need {
		intent := c.Classify(utterance)
		assert.NotEqual(t, IntentCrisis, intent, "utterance %q", utterance)
		assert.Equal(t, IntentBedInquiry, intent, "utterance %q", utterance)
	}
}

func TestIntentRouting(t *testing.T) {
	c := newTestClassifier()

	cases := map[string]Intent{
		"Do you have any beds available?":       IntentBedInquiry,
		"I'd like to schedule a chapel service": IntentChapel,
		"Can I volunteer on weekends?":          IntentVolunteer,
		"I want to donate some clothes":         IntentDonation,
		"what's the weather like":               IntentOther,
		"":                                      IntentOther,
	}
	for utterance, want := range cases {
		assert.Equal(t, want, c.Classify(utterance), "utterance %q", utterance)
	}
}

func TestFarewellDetection(t *testing.T) {
	c := newTestClassifier()

	assert.True(t, c.IsFarewell("Okay, goodbye"))
	assert.True(t, c.IsFarewell("Adiós"))
	assert.True(t, c.IsFarewell("tchau"))
	assert.True(t, c.IsFarewell("au revoir"))
	assert.False(t, c.IsFarewell("I need a bed"))
}

func TestLanguageDetection(t *testing.T) {
	c := newTestClassifier()

	assert.Equal(t, "es", c.DetectLanguage("Hola, necesito una cama por favor"))
	assert.Equal(t, "pt", c.DetectLanguage("Olá, preciso de uma cama por favor"))
	assert.Equal(t, "fr", c.DetectLanguage("Bonjour, j'ai besoin d'un lit s'il vous plaît"))
	assert.Equal(t, "en", c.DetectLanguage("Hi, I need a bed tonight"))
}
