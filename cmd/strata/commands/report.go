package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.trai.ch/strata/internal/app"
	"go.trai.ch/strata/internal/ui/style"
)

func renderReport(r app.Report) string {
	var sections []string

	sections = append(sections, style.Title.Render("Simulation"))
	sections = append(sections,
		row("Seeded nodes", strconv.Itoa(r.Seeded)),
		row("Ticks", strconv.Itoa(r.Ticks)),
	)
	for _, res := range r.Results {
		sections = append(sections, row(string(res.Kind), fmt.Sprintf("%d of %d changed", res.Applied, res.Examined)))
	}
	sections = append(sections,
		row("Consolidated deltas", strconv.Itoa(r.Consolidated)),
		row("Collapsed nodes", strconv.Itoa(r.Collapsed)),
		row("Elapsed", r.Elapsed.String()),
	)

	s := r.Stats
	sections = append(sections, "", style.Title.Render("Storage"))
	sections = append(sections,
		row("Tree nodes", fmt.Sprintf("%d (%d leaves)", s.Tree.Nodes, s.Tree.Leaves)),
		row("Memory savings", style.Good.Render(fmt.Sprintf("%.4f%%", s.Tree.MemorySavings))),
		row("Cache hit rate", fmt.Sprintf("%.1f%%", s.Cache.HitRate()*100)),
		row("Active deltas", strconv.Itoa(s.Overlay.ActiveDeltas)),
		row("Tiles resident", fmt.Sprintf("%d / %d", s.Tiles.Resident, s.Tiles.Capacity)),
		row("Tree / tile queries", fmt.Sprintf("%d / %d", s.TreeQueries, s.TileQueries)),
	)

	if len(r.Composition) > 0 {
		total := 0
		for _, n := range r.Composition {
			total += n
		}
		sections = append(sections, "", style.Title.Render("Survey "+r.Survey.String()))
		for _, name := range r.SortedComposition() {
			n := r.Composition[name]
			sections = append(sections, row(
				style.Dot+" "+name,
				fmt.Sprintf("%d (%.1f%%)", n, 100*float64(n)/float64(total)),
			))
		}
	}

	return style.Box.Render(strings.Join(sections, "\n"))
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, style.Label.Render(label), style.Value.Render(value))
}
