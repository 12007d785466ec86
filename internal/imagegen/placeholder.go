package imagegen

import (
	"bytes"
	"fmt"
	"html"
	"image/color"
	"strconv"
	"strings"
	"unicode"

	"github.com/fogleman/gg"
)

var (
	avatarPalette = []string{"#6366f1", "#a855f7", "#ec4899", "#06b6d4", "#10b981", "#f59e0b"}
	skyPalette    = []string{"#e0f2fe", "#eff6ff", "#fef3c7", "#ecfeff"}
	groundPalette = []string{"#dcfce7", "#e9d5ff", "#fee2e2", "#fde68a"}
	sunPalette    = []string{"#f59e0b", "#f97316", "#ef4444"}
)

const (
	SVGContentType = "image/svg+xml; charset=utf-8"
	PNGContentType = "image/png"

	sceneTitleLimit = 40
)

// seedHash es un hash multiplicativo de 32 bits; solo tiene que ser estable.
func seedHash(s string) uint32 {
	var h uint32
	for _, r := range s {
		h = h*31 + uint32(r)
	}
	return h
}

func pick(palette []string, n uint32) string {
	return palette[n%uint32(len(palette))]
}

type avatarColors struct {
	bg, fg, accent string
	seed           uint32
}

func avatarScheme(typ, seedText string) avatarColors {
	seed := seedHash(typ + ":" + seedText)
	return avatarColors{
		bg:     pick(avatarPalette, seed),
		fg:     pick(avatarPalette, (seed>>3)^0x9e3779b1),
		accent: pick(avatarPalette, (seed>>5)^0x85ebca6b),
		seed:   seed,
	}
}

type sceneColors struct {
	sky, ground, sun string
	seed             uint32
}

func sceneScheme(typ, title string) sceneColors {
	seed := seedHash(typ + ":scene:" + title)
	return sceneColors{
		sky:    pick(skyPalette, seed),
		ground: pick(groundPalette, seed>>2),
		sun:    pick(sunPalette, seed>>4),
		seed:   seed,
	}
}

// AvatarSVG dibuja un avatar determinista de 800x800 para el tipo.
func AvatarSVG(typ, seedText string) []byte {
	c := avatarScheme(typ, seedText)
	letters := html.EscapeString(firstRunes(typ, 2))
	var b bytes.Buffer
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="800" height="800" viewBox="0 0 100 100">
  <defs>
    <linearGradient id="g" x1="0" y1="0" x2="1" y2="1">
      <stop offset="0%%" stop-color="%s"/>
      <stop offset="100%%" stop-color="%s"/>
    </linearGradient>
    <filter id="b" x="-20%%" y="-20%%" width="140%%" height="140%%">
      <feGaussianBlur in="SourceGraphic" stdDeviation="1.5"/>
    </filter>
  </defs>
  <rect width="100" height="100" rx="16" fill="url(#g)"/>
  <g opacity="0.35" filter="url(#b)">
    <circle cx="%d" cy="%d" r="18" fill="#fff"/>
    <circle cx="%d" cy="%d" r="14" fill="#fff"/>
  </g>
  <g>
    <circle cx="35" cy="45" r="6" fill="#fff"/>
    <circle cx="65" cy="45" r="6" fill="#fff"/>
    <path d="M30 62 C 42 72, 58 72, 70 62" stroke="%s" stroke-width="4" fill="none" stroke-linecap="round"/>
  </g>
  <text x="50" y="18" text-anchor="middle" font-family="sans-serif" font-size="10" fill="#fff" opacity="0.9">%s</text>
</svg>`,
		c.bg, c.accent,
		20+c.seed%60, 25+c.seed%40,
		50+c.seed%30, 55+c.seed%30,
		c.fg, letters,
	)
	return b.Bytes()
}

// SceneSVG dibuja una escena 1200x630 (formato OG) con el tipo y el titulo.
func SceneSVG(typ, title string) []byte {
	c := sceneScheme(typ, title)
	var b bytes.Buffer
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="1200" height="630" viewBox="0 0 1200 630">
  <defs>
    <linearGradient id="sky" x1="0" y1="0" x2="0" y2="1">
      <stop offset="0%%" stop-color="%s"/>
      <stop offset="100%%" stop-color="#ffffff"/>
    </linearGradient>
  </defs>
  <rect width="1200" height="630" fill="url(#sky)"/>
  <circle cx="%d" cy="%d" r="60" fill="%s" opacity="0.85"/>
  <path d="M0 420 C 200 360, 400 480, 600 420 C 800 360, 1000 480, 1200 420 L 1200 630 L 0 630 Z" fill="%s"/>
  <text x="600" y="520" text-anchor="middle" font-family="serif" font-size="42" fill="#111827" opacity="0.8">%s</text>
  <text x="600" y="560" text-anchor="middle" font-family="sans-serif" font-size="24" fill="#374151" opacity="0.8">%s</text>
</svg>`,
		c.sky,
		200+c.seed%600, 120+c.seed%120, c.sun,
		c.ground,
		html.EscapeString(typ), html.EscapeString(firstRunes(title, sceneTitleLimit)),
	)
	return b.Bytes()
}

// AvatarPNG es la version raster del avatar, para tarjetas que no aceptan SVG.
func AvatarPNG(typ, seedText string) ([]byte, error) {
	const size, unit = 800, 8.0
	c := avatarScheme(typ, seedText)
	dc := gg.NewContext(size, size)

	grad := gg.NewLinearGradient(0, 0, size, size)
	grad.AddColorStop(0, hexColor(c.bg))
	grad.AddColorStop(1, hexColor(c.accent))
	dc.SetFillStyle(grad)
	dc.DrawRoundedRectangle(0, 0, size, size, 16*unit)
	dc.Fill()

	dc.SetRGBA(1, 1, 1, 0.35)
	dc.DrawCircle(float64(20+c.seed%60)*unit, float64(25+c.seed%40)*unit, 18*unit)
	dc.Fill()
	dc.DrawCircle(float64(50+c.seed%30)*unit, float64(55+c.seed%30)*unit, 14*unit)
	dc.Fill()

	dc.SetRGB(1, 1, 1)
	dc.DrawCircle(35*unit, 45*unit, 6*unit)
	dc.DrawCircle(65*unit, 45*unit, 6*unit)
	dc.Fill()

	dc.SetColor(hexColor(c.fg))
	dc.SetLineWidth(4 * unit)
	dc.SetLineCapRound()
	dc.MoveTo(30*unit, 62*unit)
	dc.CubicTo(42*unit, 72*unit, 58*unit, 72*unit, 70*unit, 62*unit)
	dc.Stroke()

	if label := asciiOnly(firstRunes(typ, 2)); label != "" {
		dc.SetRGBA(1, 1, 1, 0.9)
		dc.Push()
		dc.ScaleAbout(4, 4, 50*unit, 15*unit)
		dc.DrawStringAnchored(label, 50*unit, 15*unit, 0.5, 0.5)
		dc.Pop()
	}
	return encodePNG(dc)
}

// ScenePNG es la version raster de la escena. El titulo solo se dibuja si es ASCII,
// la fuente embebida de gg no tiene glifos japoneses.
func ScenePNG(typ, title string) ([]byte, error) {
	const w, h = 1200, 630
	c := sceneScheme(typ, title)
	dc := gg.NewContext(w, h)

	grad := gg.NewLinearGradient(0, 0, 0, h)
	grad.AddColorStop(0, hexColor(c.sky))
	grad.AddColorStop(1, color.White)
	dc.SetFillStyle(grad)
	dc.DrawRectangle(0, 0, w, h)
	dc.Fill()

	sun := hexColor(c.sun)
	dc.SetRGBA(float64(sun.R)/255, float64(sun.G)/255, float64(sun.B)/255, 0.85)
	dc.DrawCircle(float64(200+c.seed%600), float64(120+c.seed%120), 60)
	dc.Fill()

	dc.SetColor(hexColor(c.ground))
	dc.MoveTo(0, 420)
	dc.CubicTo(200, 360, 400, 480, 600, 420)
	dc.CubicTo(800, 360, 1000, 480, 1200, 420)
	dc.LineTo(1200, 630)
	dc.LineTo(0, 630)
	dc.ClosePath()
	dc.Fill()

	drawLabel := func(s string, y, scale float64, col string) {
		if s == "" {
			return
		}
		dc.SetColor(hexColor(col))
		dc.Push()
		dc.ScaleAbout(scale, scale, 600, y)
		dc.DrawStringAnchored(s, 600, y, 0.5, 0.5)
		dc.Pop()
	}
	drawLabel(asciiOnly(typ), 510, 4, "#111827")
	drawLabel(asciiOnly(firstRunes(title, sceneTitleLimit)), 558, 2, "#374151")
	return encodePNG(dc)
}

func encodePNG(dc *gg.Context) ([]byte, error) {
	var b bytes.Buffer
	if err := dc.EncodePNG(&b); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return b.Bytes(), nil
}

func hexColor(hex string) color.RGBA {
	v, err := strconv.ParseUint(strings.TrimPrefix(hex, "#"), 16, 32)
	if err != nil {
		return color.RGBA{A: 255}
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

// asciiOnly devuelve s si todos sus caracteres son ASCII imprimibles, o "".
func asciiOnly(s string) string {
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return ""
		}
	}
	return s
}
