// Package ui provides terminal output helpers for the CLI.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

var (
	successStyle = color.New(color.FgGreen, color.Bold)
	errorStyle   = color.New(color.FgRed, color.Bold)
	warningStyle = color.New(color.FgYellow, color.Bold)
	infoStyle    = color.New(color.FgCyan)
	titleStyle   = color.New(color.FgCyan, color.Bold)
)

// PrintHeader prints the tool header for a command.
func PrintHeader(title, subtitle string) {
	titleStyle.Println(title)
	if subtitle != "" {
		fmt.Println(subtitle)
	}
	fmt.Println()
}

// PrintSuccess prints a success message
func PrintSuccess(format string, args ...interface{}) {
	successStyle.Println("✓ " + fmt.Sprintf(format, args...))
}

// PrintError prints an error message to stderr
func PrintError(format string, args ...interface{}) {
	errorStyle.Fprintln(os.Stderr, "✗ "+fmt.Sprintf(format, args...))
}

// PrintWarning prints a warning message
func PrintWarning(format string, args ...interface{}) {
	warningStyle.Println("! " + fmt.Sprintf(format, args...))
}

// PrintInfo prints an informational message
func PrintInfo(format string, args ...interface{}) {
	infoStyle.Println(fmt.Sprintf(format, args...))
}
