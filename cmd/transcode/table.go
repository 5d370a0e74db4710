package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// tableSpec describes one summary table printed by the CLI.
type tableSpec struct {
	header table.Row
	rows   []table.Row
	footer table.Row
	// numeric lists 1-based columns that hold counts or sizes.
	numeric []int
}

func (s tableSpec) render() string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(s.header)
	tw.AppendRows(s.rows)
	if len(s.footer) > 0 {
		tw.AppendFooter(s.footer)
	}

	configs := make([]table.ColumnConfig, 0, len(s.numeric))
	for _, col := range s.numeric {
		configs = append(configs, table.ColumnConfig{
			Number:      col,
			Align:       text.AlignRight,
			AlignHeader: text.AlignLeft,
			AlignFooter: text.AlignRight,
		})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}
