// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and forwards player events to it
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// TUI runs the player interface
type TUI struct {
	program *tea.Program
	updates chan tea.Msg
	done    chan struct{}
}

// New creates a TUI for controls
func New(controls Controls, title string) *TUI {
	t := &TUI{
		program: tea.NewProgram(NewModel(controls, title), tea.WithAltScreen()),
		updates: make(chan tea.Msg, 64),
		done:    make(chan struct{}),
	}
	go t.forward()
	return t
}

// Run blocks until the user quits
func (t *TUI) Run() error {
	defer close(t.done)
	_, err := t.program.Run()
	return err
}

// Quit stops the program from outside the UI
func (t *TUI) Quit() {
	t.program.Quit()
}

// Time forwards a player time update
func (t *TUI) Time(songTime float64) {
	t.send(TimeMsg(songTime))
}

// Progress forwards load progress
func (t *TUI) Progress(fraction float64) {
	t.send(ProgressMsg(fraction))
}

// Error forwards a player error
func (t *TUI) Error(err error) {
	t.send(ErrorMsg{Err: err})
}

// send never blocks so player callbacks cannot stall on the UI
func (t *TUI) send(msg tea.Msg) {
	select {
	case t.updates <- msg:
	default:
	}
}

func (t *TUI) forward() {
	for {
		select {
		case msg := <-t.updates:
			t.program.Send(msg)
		case <-t.done:
			return
		}
	}
}
