package imagegen

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"mbti-story/internal/domain"
)

func TestAvatarSVGDeterministic(t *testing.T) {
	a := AvatarSVG("INFP", "seed")
	b := AvatarSVG("INFP", "seed")
	if !bytes.Equal(a, b) {
		t.Fatalf("expected identical output for identical input")
	}
	if !bytes.Contains(a, []byte(`width="800"`)) || !bytes.Contains(a, []byte(">IN</text>")) {
		t.Fatalf("unexpected svg: %s", a)
	}
	if bytes.Equal(a, AvatarSVG("ESTJ", "seed")) {
		t.Fatalf("different types should not render the same avatar")
	}
}

func TestSceneSVGEscapesAndTruncatesTitle(t *testing.T) {
	title := strings.Repeat("あ", 50) + "<script>"
	svg := string(SceneSVG("ENFP", title))
	if strings.Contains(svg, "<script>") {
		t.Fatalf("title should be escaped or truncated")
	}
	if !strings.Contains(svg, strings.Repeat("あ", 40)+"</text>") {
		t.Fatalf("title should be cut to 40 runes: %s", svg)
	}
	if !strings.Contains(svg, `width="1200" height="630"`) {
		t.Fatalf("unexpected dimensions")
	}
}

func TestPNGPlaceholders(t *testing.T) {
	avatar, err := AvatarPNG("INTJ", "x")
	if err != nil {
		t.Fatalf("avatar png: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(avatar))
	if err != nil {
		t.Fatalf("decode avatar: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 800 || b.Dy() != 800 {
		t.Fatalf("avatar bounds = %v", b)
	}

	scene, err := ScenePNG("INTJ", "静かな午後")
	if err != nil {
		t.Fatalf("scene png: %v", err)
	}
	img, err = png.Decode(bytes.NewReader(scene))
	if err != nil {
		t.Fatalf("decode scene: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 1200 || b.Dy() != 630 {
		t.Fatalf("scene bounds = %v", b)
	}
}

func TestDeriveAnimal(t *testing.T) {
	bf := &domain.BigFive{Openness: 90, Extraversion: 10}
	a := DeriveAnimal("infp", bf, "好奇心")
	b := DeriveAnimal("INFP", bf, "好奇心")
	if a != b {
		t.Fatalf("expected case-insensitive deterministic mascot: %+v vs %+v", a, b)
	}
	if a.Animal == "" || a.Style != MascotStyle {
		t.Fatalf("unexpected mascot: %+v", a)
	}

	allowed := map[string]bool{}
	for _, s := range animalsByTrait["Openness"] {
		allowed[s] = true
	}
	for _, r := range "INFP" {
		for _, s := range animalsByLetter[r] {
			allowed[s] = true
		}
	}
	if !allowed[a.Animal] {
		t.Fatalf("animal %q not among candidates", a.Animal)
	}

	m := DeriveAnimal("", nil, "")
	found := false
	for _, s := range fallbackAnimals {
		if s == m.Animal {
			found = true
		}
	}
	if !found {
		t.Fatalf("empty input should use the fallback list, got %q", m.Animal)
	}
}

func TestDataURLRoundTrip(t *testing.T) {
	url := EncodeDataURL("image/webp", []byte("abc"))
	if !IsDataURL(url) {
		t.Fatalf("expected data url")
	}
	mime, data, err := DecodeDataURL(url)
	if err != nil || mime != "image/webp" || string(data) != "abc" {
		t.Fatalf("decode = %q %q %v", mime, data, err)
	}

	for _, bad := range []string{"/image/avatar?id=1", "data:image/png,plain", "data:image/png;base64,@@@"} {
		if _, _, err := DecodeDataURL(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
