package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/peerwave/peerwave/internal/call"
)

// maxChatLines bounds the scrollback kept in the inline view.
const maxChatLines = 12

// CallController is the slice of the session the call view drives.
type CallController interface {
	Hangup()
	SendChat(text string)
	ToggleAudio()
	ToggleVideo()
	Events() <-chan call.Event
	Done() <-chan struct{}
}

// CallStats is what the view hands back once the call is over.
type CallStats struct {
	Messages int
}

type sessionDoneMsg struct{}

type callModel struct {
	room    string
	nick    string
	session CallController

	state    call.State
	spinner  spinner.Model
	input    textinput.Model
	lines    []string
	audioOn  bool
	videoOn  bool
	messages int
	hungUp   bool
	quitting bool
}

func newCallModel(session CallController, room, nick string) *callModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	input := textinput.New()
	input.Placeholder = "type a message and press enter"
	input.CharLimit = 512
	input.Focus()

	return &callModel{
		room:    room,
		nick:    nick,
		session: session,
		state:   call.StateIdle,
		spinner: s,
		input:   input,
		audioOn: true,
		videoOn: true,
	}
}

func (m *callModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		textinput.Blink,
		m.waitEvent(),
		m.waitDone(),
	)
}

func (m *callModel) waitEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.session.Events()
		if !ok {
			return nil
		}
		return ev
	}
}

func (m *callModel) waitDone() tea.Cmd {
	return func() tea.Msg {
		<-m.session.Done()
		return sessionDoneMsg{}
	}
}

func (m *callModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			if !m.hungUp {
				m.hungUp = true
				m.session.Hangup()
				m.addLine(MutedStyle.Render("hanging up..."))
			}
			return m, nil

		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text != "" && m.state == call.StateConnected {
				m.session.SendChat(text)
				m.addLine(fmt.Sprintf("%s %s", LocalNickStyle.Render(m.nick+":"), text))
				m.messages++
				m.input.Reset()
			}
			return m, nil

		case "ctrl+t":
			m.session.ToggleAudio()
			return m, nil

		case "ctrl+v":
			m.session.ToggleVideo()
			return m, nil
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case call.Event:
		m.applyEvent(msg)
		cmds = append(cmds, m.waitEvent())

	case sessionDoneMsg:
		m.quitting = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *callModel) applyEvent(ev call.Event) {
	switch ev.Kind {
	case call.EventStateChanged:
		m.state = ev.State
		if ev.State == call.StateConnected {
			m.addLine(SuccessStyle.Render("peer connected"))
		}

	case call.EventChatMessage:
		m.addLine(fmt.Sprintf("%s %s", PeerNickStyle.Render(ev.Chat.From+":"), ev.Chat.Text))
		m.messages++

	case call.EventRemoteTrack:
		m.addLine(MutedStyle.Render("receiving remote " + ev.TrackKind))

	case call.EventMediaError:
		m.addLine(ErrorStyle.Render(ev.Err.Error()))

	case call.EventMuteChanged:
		m.audioOn = ev.AudioOn
		m.videoOn = ev.VideoOn
	}
}

func (m *callModel) addLine(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxChatLines {
		m.lines = m.lines[len(m.lines)-maxChatLines:]
	}
}

func (m *callModel) statusLine() string {
	switch m.state {
	case call.StateConnected:
		mic := IconMic
		if !m.audioOn {
			mic = MutedStyle.Render("mic off")
		}
		cam := IconCamera
		if !m.videoOn {
			cam = MutedStyle.Render("cam off")
		}
		return fmt.Sprintf("%s in call  %s %s", IconCall, mic, cam)
	case call.StateEnded, call.StateFailed:
		return MutedStyle.Render("call over")
	case call.StateIdle:
		return fmt.Sprintf("%s %s", m.spinner.View(), "waiting for a peer to join...")
	default:
		return fmt.Sprintf("%s %s", m.spinner.View(), string(m.state)+"...")
	}
}

func (m *callModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(fmt.Sprintf("\n%s %s %s %s\n\n",
		IconRoom, BoldStyle.Render(m.room),
		IconPeer, m.nick,
	))
	b.WriteString(m.statusLine() + "\n\n")

	for _, line := range m.lines {
		b.WriteString("  " + line + "\n")
	}
	if len(m.lines) > 0 {
		b.WriteString("\n")
	}

	if m.state == call.StateConnected {
		b.WriteString(m.input.View() + "\n")
	}

	b.WriteString(MutedStyle.Render("ctrl+t mic · ctrl+v camera · esc hang up") + "\n")

	return b.String()
}

// RunCall drives the inline call view until the session finishes.
func RunCall(session CallController, room, nick string) (CallStats, error) {
	model := newCallModel(session, room, nick)

	// Inline mode keeps the room banner printed above us visible.
	program := tea.NewProgram(model)
	if _, err := program.Run(); err != nil {
		return CallStats{}, err
	}

	return CallStats{Messages: model.messages}, nil
}