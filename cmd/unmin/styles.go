package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

// Console styles, Tokyo Night palette.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7aa2f7"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9ece6a"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e0af68"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#f7768e"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#565f89"))

	boxStyle = lipgloss.NewStyle().
			Padding(0, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7aa2f7"))
)

const consoleWidth = 76

// banner is the face the original toolkit greets with.
const banner = `
      _______________
     /               \
    |   ._______.     |
    |   | o   o |     |
    |   |   >   |     |
    |   |  ___  |     |
    |    \_____/      |
     \_______________/
`

func printHome() {
	fmt.Println(titleStyle.Render(banner))
	fmt.Println(titleStyle.Render("UNMIN") + dimStyle.Render(" — the bundle un-minifier"))
	fmt.Println(dimStyle.Render("learn renames from edited code, replay them everywhere"))
	fmt.Println()
	fmt.Println(wrap("Start with 'unmin scan <dir>' to inventory a bundle, " +
		"'unmin learn <original> <edited>' to harvest renames from a refactored copy, " +
		"then 'unmin rename <file> --from-store' to replay them."))
}

// wrap folds long prose to the console width.
func wrap(s string) string {
	return wordwrap.String(s, consoleWidth)
}

func printOK(format string, args ...interface{}) {
	fmt.Println(successStyle.Render("✓ ") + fmt.Sprintf(format, args...))
}

func printWarn(format string, args ...interface{}) {
	fmt.Println(warnStyle.Render("⚠ ") + fmt.Sprintf(format, args...))
}
