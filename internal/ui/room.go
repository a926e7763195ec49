package ui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/solfa/internal/mesh"
)

// RoomActions are the key bindings of a RoomView.
type RoomActions struct {
	// Ping is bound to 'p'.
	Ping func()
	// Quit is bound to 'q' and ctrl+c.
	Quit func()
}

// RoomView is a live view of a room, fed by the coordinator's observer.
type RoomView struct {
	program *tea.Program
	model   *roomModel
	updates chan mesh.Status
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

type statusMsg mesh.Status

type roomModel struct {
	room     string
	updates  <-chan mesh.Status
	done     <-chan struct{}
	status   mesh.Status
	pings    int
	spinner  spinner.Model
	actions  RoomActions
	quitting bool
}

// NewRoomView creates a view for room. Start shows it.
func NewRoomView(room string, actions RoomActions) *RoomView {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = SpinnerStyle

	updates := make(chan mesh.Status, 1)
	done := make(chan struct{})
	return &RoomView{
		updates: updates,
		done:    done,
		model: &roomModel{
			room:    room,
			updates: updates,
			done:    done,
			spinner: s,
			actions: actions,
		},
	}
}

// Start runs the view in its own goroutine, inline without the alt screen.
func (v *RoomView) Start() {
	v.program = tea.NewProgram(v.model)
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		if _, err := v.program.Run(); err != nil {
			PrintErrorf("UI error: %v", err)
		}
	}()
}

// Update shows a new room status. Only the latest pending status is kept,
// so a slow terminal never blocks the caller. Call it from one goroutine.
func (v *RoomView) Update(st mesh.Status) {
	for {
		select {
		case v.updates <- st:
			return
		default:
		}
		select {
		case <-v.updates:
		default:
		}
	}
}

// Stop ends the view and waits for it to restore the terminal.
func (v *RoomView) Stop() {
	v.once.Do(func() {
		close(v.done)
		if v.program != nil {
			v.program.Quit()
		}
		v.wg.Wait()
	})
}

func (m *roomModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForUpdates())
}

func (m *roomModel) listenForUpdates() tea.Cmd {
	return func() tea.Msg {
		select {
		case st := <-m.updates:
			return statusMsg(st)
		case <-m.done:
			return nil
		}
	}
}

func (m *roomModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			if m.actions.Quit != nil {
				m.actions.Quit()
			}
			return m, tea.Quit
		case "p":
			if m.actions.Ping != nil {
				m.actions.Ping()
				m.pings++
			}
		}

	case statusMsg:
		m.status = mesh.Status(msg)
		return m, m.listenForUpdates()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *roomModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	if !m.status.Joined {
		b.WriteString(fmt.Sprintf("\n%s joining %s\n", m.spinner.View(), m.room))
		return b.String()
	}

	b.WriteString("\n" + RoomInfoView(m.status.Room, m.status.Self) + "\n\n")
	if len(m.status.Sessions) == 0 {
		b.WriteString(fmt.Sprintf("%s waiting for peers\n", m.spinner.View()))
	} else {
		b.WriteString(PeerTableView(m.status) + "\n")
	}

	footer := "p ping everyone • q leave"
	if m.pings > 0 {
		footer += fmt.Sprintf(" • %d pings sent", m.pings)
	}
	b.WriteString(FooterStyle.Render(footer))
	return b.String()
}
