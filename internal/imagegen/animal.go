package imagegen

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"mbti-story/internal/domain"
)

// MascotStyle son las pistas de estilo comunes a todos los avatares generados.
const MascotStyle = "deformed, cute mascot style, clean vector aesthetics, soft gradients, pastel palette, centered composition, white background, high detail, friendly eyes"

var (
	animalsByTrait = map[string][]string{
		"Openness":          {"fox", "owl", "cat"},
		"Conscientiousness": {"beaver", "ant", "tortoise"},
		"Extraversion":      {"dog", "parrot", "dolphin"},
		"Agreeableness":     {"deer", "rabbit", "dolphin"},
		"Neuroticism":       {"hedgehog", "rabbit", "cat"},
	}
	animalsByLetter = map[rune][]string{
		'E': {"dog", "parrot", "lion"},
		'I': {"cat", "owl", "fox"},
		'N': {"fox", "owl", "butterfly"},
		'S': {"deer", "beaver", "tortoise"},
		'T': {"wolf", "hawk", "bear"},
		'F': {"rabbit", "deer", "dolphin"},
		'J': {"beaver", "ant", "tortoise"},
		'P': {"fox", "cat", "monkey"},
	}
	fallbackAnimals = []string{"cat", "dog", "fox", "deer"}
)

// Mascot es el animal elegido para el avatar y su estilo.
type Mascot struct {
	Animal string
	Style  string
}

// DeriveAnimal elige un animal mascota a partir del tipo, el rasgo Big Five
// dominante (si hay) y el texto de rasgos. Es determinista.
func DeriveAnimal(mbtiType string, bigFive *domain.BigFive, features string) Mascot {
	typ := strings.ToUpper(firstRunes(mbtiType, 4))

	var bf domain.BigFive
	if bigFive != nil {
		bf = *bigFive
	}
	bfJSON, _ := json.Marshal(bf)
	seed := seedHash(typ + ":" + string(bfJSON) + ":" + features)

	var candidates []string
	if bigFive != nil {
		if top := dominantTrait(bf); top != "" {
			candidates = append(candidates, animalsByTrait[top]...)
		}
	}
	for _, r := range typ {
		candidates = append(candidates, animalsByLetter[r]...)
	}
	if len(candidates) == 0 {
		candidates = fallbackAnimals
	}
	return Mascot{Animal: pick(candidates, seed), Style: MascotStyle}
}

// AvatarPrompt arma el prompt de la imagen de avatar.
func AvatarPrompt(m Mascot, mbtiType string) string {
	return fmt.Sprintf("A %s character representing the %s personality type, %s", m.Animal, strings.ToUpper(mbtiType), m.Style)
}

// ScenePrompt arma el prompt de la imagen de escena.
func ScenePrompt(mbtiType, title string) string {
	return fmt.Sprintf("A calm storybook landscape illustration evoking the %s personality, theme: %s, soft light, wide composition, no text", strings.ToUpper(mbtiType), title)
}

func dominantTrait(bf domain.BigFive) string {
	type kv struct {
		name  string
		value int
	}
	entries := []kv{
		{"Openness", bf.Openness},
		{"Conscientiousness", bf.Conscientiousness},
		{"Extraversion", bf.Extraversion},
		{"Agreeableness", bf.Agreeableness},
		{"Neuroticism", bf.Neuroticism},
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].value > entries[j].value })
	return entries[0].name
}
