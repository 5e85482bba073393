package evaluate

import (
	"fmt"
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"
)

// WriteSummary renders the segmented metric summary as a table.
func WriteSummary(w io.Writer, s Summary) {
	data := make([][]string, 0, len(s))
	for _, m := range s {
		data = append(data, []string{
			m.Name,
			fmt.Sprintf("%.4f", m.Value),
			fmt.Sprintf("%.2f", m.Coverage),
		})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"METRIC", "VALUE", "COVERAGE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

// WriteWorstConversations renders the lowest-scoring conversations grouped
// by source, one table per source with sources in sorted order.
func WriteWorstConversations(w io.Writer, worst map[string][]Conversation) {
	sources := make([]string, 0, len(worst))
	for source := range worst {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	for _, source := range sources {
		fmt.Fprintf(w, "== %s ==\n", source)

		data := make([][]string, 0, len(worst[source]))
		for _, c := range worst[source] {
			data = append(data, []string{
				c.ID,
				fmt.Sprintf("%d", len(c.Turns)),
				fmt.Sprintf("%.4f", c.F1),
			})
		}

		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"ID", "TURNS", "F1"})
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetHeaderLine(false)
		table.SetBorder(false)
		table.SetNoWhiteSpace(true)
		table.SetTablePadding("    ")
		table.AppendBulk(data)
		table.Render()
		fmt.Fprintln(w)
	}
}
