package domain

// Axis identifica una de las cuatro dicotomias MBTI.
type Axis string

const (
	AxisEI Axis = "E/I"
	AxisSN Axis = "S/N"
	AxisTF Axis = "T/F"
	AxisJP Axis = "J/P"
)

// AxisOrder es el orden canonico en que se preguntan y se escriben los ejes.
var AxisOrder = []Axis{AxisEI, AxisSN, AxisTF, AxisJP}

// Letters devuelve la letra del polo positivo y la del negativo.
func (a Axis) Letters() (positive, negative string) {
	switch a {
	case AxisEI:
		return "E", "I"
	case AxisSN:
		return "S", "N"
	case AxisTF:
		return "T", "F"
	case AxisJP:
		return "J", "P"
	}
	return "", ""
}

// Valid indica si letter pertenece a alguno de los dos polos del eje.
func (a Axis) Valid(letter string) bool {
	pos, neg := a.Letters()
	return letter != "" && (letter == pos || letter == neg)
}

// Axes guarda la letra resuelta de cada eje.
type Axes struct {
	EI string `json:"E/I"`
	SN string `json:"S/N"`
	TF string `json:"T/F"`
	JP string `json:"J/P"`
}

// Get devuelve la letra asignada a un eje.
func (a Axes) Get(axis Axis) string {
	switch axis {
	case AxisEI:
		return a.EI
	case AxisSN:
		return a.SN
	case AxisTF:
		return a.TF
	case AxisJP:
		return a.JP
	}
	return ""
}

// Set asigna la letra de un eje.
func (a *Axes) Set(axis Axis, letter string) {
	switch axis {
	case AxisEI:
		a.EI = letter
	case AxisSN:
		a.SN = letter
	case AxisTF:
		a.TF = letter
	case AxisJP:
		a.JP = letter
	}
}

// Type concatena las cuatro letras, por ejemplo "INFP".
func (a Axes) Type() string {
	return a.EI + a.SN + a.TF + a.JP
}

// Complete indica si los cuatro ejes tienen una letra valida.
func (a Axes) Complete() bool {
	for _, axis := range AxisOrder {
		if !axis.Valid(a.Get(axis)) {
			return false
		}
	}
	return true
}

// AxesFromType reconstruye los ejes a partir de un tipo de cuatro letras.
// Las letras invalidas se reemplazan por el polo positivo.
func AxesFromType(t string) Axes {
	var out Axes
	runes := []rune(t)
	for i, axis := range AxisOrder {
		pos, _ := axis.Letters()
		letter := pos
		if i < len(runes) && axis.Valid(string(runes[i])) {
			letter = string(runes[i])
		}
		out.Set(axis, letter)
	}
	return out
}
