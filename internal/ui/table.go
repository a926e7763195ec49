package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/BioHazard786/solfa/internal/mesh"
	"github.com/BioHazard786/solfa/internal/peer"
)

// PeerTableView renders the live sessions of a room.
func PeerTableView(st mesh.Status) string {
	if len(st.Sessions) == 0 {
		return MutedStyle.Render("No peers yet")
	}

	rows := make([][]string, 0, len(st.Sessions))
	for _, s := range st.Sessions {
		voice := IconQuiet
		if s.Speaking {
			voice = SpeakingStyle.Render(IconSpeak + " talking")
		}
		rows = append(rows, []string{s.Peer, s.Role.String(), stateLabel(s.State), LevelView(s.Power), voice})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Peer", "Role", "State", "Level", "Voice").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

func stateLabel(s peer.State) string {
	switch s {
	case peer.StateConnected:
		return SuccessStyle.Render(s.String())
	case peer.StateDisconnected:
		return WarningStyle.Render(s.String())
	case peer.StateClosed:
		return MutedStyle.Render(s.String())
	default:
		return s.String()
	}
}

// RoomInfoView shows the room token and how others join it.
func RoomInfoView(room, self string) string {
	content := fmt.Sprintf("%s Room %s\n\n%s Share:  %s\n%s You:    %s",
		IconRoom, BoldStyle.Foreground(Primary).Render(room),
		IconCopy, MutedStyle.Render("solfa join "+room),
		IconPeer, self,
	)
	return RoomBoxStyle.Render(content)
}
