// Package ui renders assistant output in the terminal.
package ui

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
)

var (
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Console writes styled messages and reads user input.
type Console struct {
	out   io.Writer
	in    *bufio.Reader
	theme string
}

// NewConsole creates a console over in and out.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{out: out, in: bufio.NewReader(in), theme: "monokai"}
}

// Info prints an informational line.
func (c *Console) Info(format string, args ...any) {
	fmt.Fprintln(c.out, infoStyle.Render(fmt.Sprintf(format, args...)))
}

// Success prints a success line.
func (c *Console) Success(format string, args ...any) {
	fmt.Fprintln(c.out, successStyle.Render("✔ "+fmt.Sprintf(format, args...)))
}

// Warn prints a warning line.
func (c *Console) Warn(format string, args ...any) {
	fmt.Fprintln(c.out, warnStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error line.
func (c *Console) Error(format string, args ...any) {
	fmt.Fprintln(c.out, errorStyle.Render("✘ "+fmt.Sprintf(format, args...)))
}

// Say prints an assistant reply.
func (c *Console) Say(text string) {
	fmt.Fprintln(c.out, text)
}

// Box prints text inside a rounded border.
func (c *Console) Box(text string) {
	fmt.Fprintln(c.out, boxStyle.Render(text))
}

// Code prints highlighted Python source.
func (c *Console) Code(src string) {
	fmt.Fprint(c.out, Highlight(src, c.theme))
}

// Prompt shows the input marker and reads one trimmed line.
// io.EOF is returned when input is exhausted.
func (c *Console) Prompt() (string, error) {
	fmt.Fprint(c.out, promptStyle.Render("> "))
	line, err := c.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Highlight returns src colored for a 256-color terminal.
// On highlighting failure the source is returned unchanged.
func Highlight(src, theme string) string {
	var buf bytes.Buffer
	if err := quick.Highlight(&buf, src, "python", "terminal256", theme); err != nil {
		return src
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		buf.WriteByte('\n')
	}
	return buf.String()
}
