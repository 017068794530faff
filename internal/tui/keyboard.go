package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/icco/chordcoach/internal/music"
)

var (
	whiteKey    = lipgloss.NewStyle().Background(lipgloss.Color("#FFFFFF")).Foreground(lipgloss.Color("#000000"))
	blackKey    = lipgloss.NewStyle().Background(lipgloss.Color("#000000")).Foreground(lipgloss.Color("#FFFFFF"))
	heldWhite   = lipgloss.NewStyle().Background(lipgloss.Color("#00FF00")).Foreground(lipgloss.Color("#000000"))
	heldBlack   = lipgloss.NewStyle().Background(lipgloss.Color("#00AA00")).Foreground(lipgloss.Color("#FFFFFF"))
	targetWhite = lipgloss.NewStyle().Background(lipgloss.Color("#FFD700")).Foreground(lipgloss.Color("#000000"))
	targetBlack = lipgloss.NewStyle().Background(lipgloss.Color("#B8860B")).Foreground(lipgloss.Color("#FFFFFF"))
)

var (
	whiteOffsets = []int{0, 2, 4, 5, 7, 9, 11}
	blackOffsets = []int{1, 3, -1, 6, 8, 10, -1}
)

// keyboardOctave picks the first of two displayed octaves so the pitches
// in view fit, preferring C3.
func keyboardOctave(view music.PitchSet) int {
	lo, ok := view.Lowest()
	if !ok {
		return 3
	}
	hi, _ := view.Highest()
	first := lo.Octave()
	if hi.Octave() == first && first > -1 {
		// Centre a single-octave chord.
		first--
	}
	return min(max(first, -1), 8)
}

// renderKeyboard draws two octaves starting at C of octave. Held notes are
// green, target notes not yet held are gold.
func renderKeyboard(octave int, held, target music.PitchSet) string {
	var top, bottom strings.Builder

	style := func(p int, black bool) lipgloss.Style {
		if p < 0 || p > int(music.MaxPitch) {
			return lipgloss.NewStyle()
		}
		pitch := music.Pitch(p)
		switch {
		case held.Has(pitch) && black:
			return heldBlack
		case held.Has(pitch):
			return heldWhite
		case target.Has(pitch) && black:
			return targetBlack
		case target.Has(pitch):
			return targetWhite
		case black:
			return blackKey
		default:
			return whiteKey
		}
	}

	for o := octave; o < octave+2; o++ {
		base := (o + 1) * 12
		for i := range whiteOffsets {
			if b := blackOffsets[i]; b >= 0 {
				top.WriteString(style(base+b, true).Render("█"))
			} else {
				top.WriteString(" ")
			}
			top.WriteString(" ")
		}
		for _, w := range whiteOffsets {
			bottom.WriteString(style(base+w, false).Render("█"))
			bottom.WriteString(" ")
		}
	}
	return top.String() + "\n" + bottom.String()
}

// pitchNames renders pitches as note names, or a dash for none.
func pitchNames(ps []music.Pitch) string {
	if len(ps) == 0 {
		return "-"
	}
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.String()
	}
	return strings.Join(names, " ")
}
