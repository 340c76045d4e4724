package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"

	"parley/internal/domain"
)

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("6")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("3"))

	citationStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("4"))
)

// Console implements the orchestrator's UI surface and the pipeline's
// Renderer on a terminal. Deltas go to stdout unstyled so streamed assistant
// text stays copy-paste clean; notices and errors are styled and go to
// stderr, keeping them out of piped output.
type Console struct{}

// Delta writes one streamed text increment.
func (Console) Delta(text string) {
	fmt.Print(text)
}

// Info prints a styled notice line.
func (Console) Info(format string, args ...any) {
	fmt.Fprintln(os.Stderr, infoStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints a styled error line.
func (Console) Error(format string, args ...any) {
	fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf(format, args...)))
}

// Done terminates a streamed response: trailing newline, then the sources
// block when the provider cited any.
func (Console) Done(citations []domain.Citation) {
	fmt.Println()
	for i, c := range citations {
		label := c.Title
		if label == "" {
			label = c.URL
		}
		fmt.Println(citationStyle.Render(fmt.Sprintf("  [%d] %s  %s", i+1, label, c.URL)))
	}
}
