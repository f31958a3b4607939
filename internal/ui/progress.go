package ui

import (
	"github.com/pterm/pterm"
)

// Progress shows activity while a blocking call runs.
// Start returns the function that stops the indicator; callers defer it.
type Progress interface {
	Start(message string) (stop func())
}

// Spinner is a terminal spinner.
type Spinner struct{}

// Start starts a spinner with message.
func (Spinner) Start(message string) func() {
	s, err := pterm.DefaultSpinner.
		WithStyle(pterm.NewStyle(pterm.FgCyan)).
		WithSequence("⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏").
		WithRemoveWhenDone(true).
		Start(message)
	if err != nil {
		return func() {}
	}
	return func() { _ = s.Stop() }
}

// NoProgress discards progress reporting.
type NoProgress struct{}

// Start does nothing.
func (NoProgress) Start(string) func() { return func() {} }
