package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Keywords holds the closed multilingual phrase lists the voice router
// classifies against. The crisis lists are deliberately strict: statements
// of homelessness, hunger, or urgency are never in them. Additions require
// a config change and redeploy.
type Keywords struct {
	// Crisis phrases per language code (en, es, pt, fr). Explicit
	// self-harm or suicide wording only.
	Crisis map[string][]string `yaml:"crisis"`

	// Farewell phrases per language code. Any of these ends the call
	// from any session state.
	Farewell map[string][]string `yaml:"farewell"`

	// Intent keyword lists, multilingual and flat.
	Bed       []string `yaml:"bed"`
	Chapel    []string `yaml:"chapel"`
	Volunteer []string `yaml:"volunteer"`
	Donation  []string `yaml:"donation"`

	// Markers is a per-language list of common words used to detect the
	// caller's language from the first substantive utterance.
	Markers map[string][]string `yaml:"markers"`
}

// DefaultKeywords returns the compiled-in phrase lists.
func DefaultKeywords() *Keywords {
	return &Keywords{
		Crisis: map[string][]string{
			"en": {
				"kill myself", "suicide", "hurt myself", "end my life",
				"want to die", "harm myself",
			},
			"es": {
				"matarme", "suicidio", "suicidarme", "quitarme la vida",
				"quiero morir", "lastimarme", "hacerme daño",
			},
			"pt": {
				"me matar", "suicídio", "suicidio", "quero morrer",
				"me machucar", "tirar minha vida",
			},
			"fr": {
				"me tuer", "suicide", "me suicider", "veux mourir",
				"me blesser", "mettre fin à ma vie",
			},
		},
		Farewell: map[string][]string{
			"en": {"goodbye", "bye", "that's all", "thank you, that's it", "hang up"},
			"es": {"adiós", "adios", "hasta luego", "eso es todo", "gracias, eso es todo"},
			"pt": {"tchau", "adeus", "até logo", "é só isso", "obrigado, é tudo"},
			"fr": {"au revoir", "c'est tout", "merci, c'est tout", "raccrocher"},
		},
		Bed: []string{
			"bed", "beds", "sleep", "stay", "space", "room", "shelter",
			"homeless", "reserve", "reservation", "book",
			"cama", "camas", "dormir", "quedarme", "sin hogar", "reservar",
			"leito", "leitos", "sem teto", "ficar", "reservar uma cama",
			"lit", "lits", "sans abri", "dormir", "réserver",
		},
		Chapel: []string{
			"chapel", "service", "worship", "preach", "ministry", "sermon",
			"capilla", "culto", "predicar", "ministerio",
			"capela", "pregar", "ministério",
			"chapelle", "prêcher", "ministère",
		},
		Volunteer: []string{
			"volunteer", "volunteering", "help out", "serve meals",
			"voluntario", "voluntaria", "ayudar",
			"voluntário", "voluntária", "ajudar",
			"bénévole", "bénévolat", "aider",
		},
		Donation: []string{
			"donate", "donation", "give money", "contribute", "clothes to give",
			"donar", "donación", "donativo",
			"doar", "doação",
			"donner", "don", "faire un don",
		},
		Markers: map[string][]string{
			"es": {"necesito", "quiero", "estoy", "una", "cama", "hola", "dónde", "gracias", "por favor", "sin hogar"},
			"pt": {"preciso", "quero", "estou", "uma", "cama", "olá", "onde", "obrigado", "por favor", "sem teto"},
			"fr": {"je", "besoin", "veux", "suis", "un lit", "bonjour", "où", "merci", "s'il vous plaît", "sans abri"},
		},
	}
}

// LoadKeywords returns the phrase lists from the YAML file at path, or the
// compiled-in defaults when path is empty. Lists in the file replace the
// corresponding defaults wholesale; there is no merging.
func LoadKeywords(path string) (*Keywords, error) {
	kw := DefaultKeywords()
	if path == "" {
		return kw, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading keywords file: %w", err)
	}

	var loaded Keywords
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parsing keywords file: %w", err)
	}

	if len(loaded.Crisis) > 0 {
		kw.Crisis = loaded.Crisis
	}
	if len(loaded.Farewell) > 0 {
		kw.Farewell = loaded.Farewell
	}
	if len(loaded.Bed) > 0 {
		kw.Bed = loaded.Bed
	}
	if len(loaded.Chapel) > 0 {
		kw.Chapel = loaded.Chapel
	}
	if len(loaded.Volunteer) > 0 {
		kw.Volunteer = loaded.Volunteer
	}
	if len(loaded.Donation) > 0 {
		kw.Donation = loaded.Donation
	}
	if len(loaded.Markers) > 0 {
		kw.Markers = loaded.Markers
	}
	return kw, nil
}
