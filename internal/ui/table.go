package ui

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RoomInfo is the banner shown after creating a room name, before
// anyone has dialed in.
type RoomInfo struct {
	Room    string
	JoinCmd string
}

func NewRoomInfo(room string) *RoomInfo {
	return &RoomInfo{
		Room:    room,
		JoinCmd: fmt.Sprintf("peerwave call %s", room),
	}
}

func (r *RoomInfo) View() string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Room:  %s\n%s Join:  %s",
		IconSuccess,
		IconRoom, BoldStyle.Foreground(Primary).Render(r.Room),
		IconCopy, MutedStyle.Render(r.JoinCmd),
	)
	return SuccessBoxStyle.Render(content)
}

func (r *RoomInfo) Render() {
	fmt.Println(r.View())
}

// CallSummary describes one finished call for the end-of-call report.
type CallSummary struct {
	Room     string
	Outcome  string
	Duration time.Duration
	Messages int
}

// CallSummaryView renders the summary as a two-column table.
func CallSummaryView(summary CallSummary) string {
	tbl := table.NewWriter()
	tbl.AppendHeader(table.Row{"Metric", "Value"})
	tbl.AppendRows([]table.Row{
		{"Room", summary.Room},
		{"Outcome", summary.Outcome},
		{"Duration", summary.Duration.Round(time.Second).String()},
		{"Chat Messages", summary.Messages},
	})
	tbl.SetStyle(table.StyleRounded)
	tbl.Style().Color.Header = text.Colors{text.FgCyan, text.Bold}
	return tbl.Render()
}

func RenderCallSummary(summary CallSummary) {
	fmt.Println(CallSummaryView(summary))
}