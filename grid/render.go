package grid

import (
	"fmt"
	"io"
	"strings"

	"pomcp/belief"

	"github.com/logrusorgru/aurora"
)

// Render prints one row per grid row with the belief of each cell, painted in
// the cell's colour. The agent's true cell is marked with a star.
func (e *Env) Render(w io.Writer, b belief.Belief, colors bool) error {
	if len(b) != len(e.cells) {
		return fmt.Errorf("%w: belief has %d entries for %d cells", ErrInvalidGrid, len(b), len(e.cells))
	}
	au := aurora.NewAurora(colors)

	var sb strings.Builder
	for y := 0; y < e.config.Height; y++ {
		for x := 0; x < e.config.Width; x++ {
			s := y*e.config.Width + x
			marker := " "
			if s == int(e.state) {
				marker = "*"
			}
			cell := fmt.Sprintf("%s%5.3f ", marker, b[s])
			fmt.Fprint(&sb, paint(au, e.cells[s], cell))
			fmt.Fprint(&sb, au.White("|"))
		}
		sb.WriteString("\n")
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func paint(au aurora.Aurora, colour int, s string) aurora.Value {
	switch colour {
	case 0:
		return au.Red(s)
	case 1:
		return au.Magenta(s)
	case 2:
		return au.Blue(s)
	default:
		return au.Green(s)
	}
}
