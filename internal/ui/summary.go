package ui

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/BioHazard786/solfa/internal/mesh"
)

// SessionSummaryView renders the sessions a client ran, one row each.
func SessionSummaryView(room string, history []mesh.Record) string {
	t := table.NewWriter()
	t.SetTitle("Sessions in " + room)
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.AppendHeader(table.Row{"#", "Peer", "Role", "Connected after", "Duration"})

	var connected int
	for i, r := range history {
		setup, duration := "-", "-"
		if !r.Connected.IsZero() {
			connected++
			setup = r.Connected.Sub(r.Started).Round(time.Millisecond).String()
			if !r.Ended.IsZero() {
				duration = r.Ended.Sub(r.Connected).Round(time.Second).String()
			}
		}
		t.AppendRow(table.Row{i + 1, r.Peer, r.Role.String(), setup, duration})
	}
	t.AppendFooter(table.Row{"", "", "", "connected", fmt.Sprintf("%d/%d", connected, len(history))})
	return t.Render()
}

// RenderSessionSummary prints the summary when there is anything to show.
func RenderSessionSummary(room string, history []mesh.Record) {
	if len(history) == 0 {
		return
	}
	fmt.Println()
	fmt.Println(SessionSummaryView(room, history))
}
