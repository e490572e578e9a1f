package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"patchscope/pkg/types"
)

const cellWidth = 8

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Width(cellWidth).MaxWidth(cellWidth)
	labelStyle  = lipgloss.NewStyle().Faint(true).Width(cellWidth).Align(lipgloss.Right).PaddingRight(1)
)

// heatmap colors each cell from blue (lowest norm) to red (highest).
func heatmap(res *types.ActivationsResult, keys []string) string {
	lo, hi := float32(0), float32(0)
	first := true
	for _, k := range keys {
		for _, n := range res.Activations[k] {
			if first || n < lo {
				lo = n
			}
			if first || n > hi {
				hi = n
			}
			first = false
		}
	}
	var b strings.Builder
	cells := []string{labelStyle.Render("layer")}
	for _, tok := range res.Tokens {
		cells = append(cells, headerStyle.Render(truncate(visible(tok), cellWidth-1)))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	b.WriteByte('\n')
	for _, k := range keys {
		cells = cells[:0]
		cells = append(cells, labelStyle.Render(strings.TrimPrefix(k, "layer_")))
		for _, n := range res.Activations[k] {
			t := float32(0.5)
			if hi > lo {
				t = (n - lo) / (hi - lo)
			}
			style := lipgloss.NewStyle().
				Width(cellWidth).
				Background(lipgloss.Color(ramp(t))).
				Foreground(lipgloss.Color("#ffffff"))
			cells = append(cells, style.Render(fmt.Sprintf("%.1f", n)))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "min %.2f  max %.2f\n", lo, hi)
	return b.String()
}

// ramp interpolates #2c3e91 -> #c0392b.
func ramp(t float32) string {
	t = max(0, min(1, t))
	lerp := func(a, b uint8) uint8 { return uint8(float32(a) + (float32(b)-float32(a))*t) }
	return fmt.Sprintf("#%02x%02x%02x", lerp(0x2c, 0xc0), lerp(0x3e, 0x39), lerp(0x91, 0x2b))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
