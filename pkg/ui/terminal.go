// Package ui renders crawl progress and results on the terminal and sends
// completion notifications.
package ui

import (
	"fmt"
	"io"
	"os"
)

// ASCII logo for the application
const ASCIILogo = `
    ╔════════════════════════════════════════════════════════════════╗
    ║  ███████╗███████╗███████╗██████╗      ██████╗██████╗  █████╗ ██╗    ██╗ ║
    ║  ██╔════╝██╔════╝██╔════╝██╔══██╗    ██╔════╝██╔══██╗██╔══██╗██║    ██║ ║
    ║  █████╗  █████╗  █████╗  ██║  ██║    ██║     ██████╔╝███████║██║ █╗ ██║ ║
    ║  ██╔══╝  ██╔══╝  ██╔══╝  ██║  ██║    ██║     ██╔══██╗██╔══██║██║███╗██║ ║
    ║  ██║     ███████╗███████╗██████╔╝    ╚██████╗██║  ██║██║  ██║╚███╔███╔╝ ║
    ║  ╚═╝     ╚══════╝╚══════╝╚═════╝      ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝ ╚══╝╚══╝  ║
    ║              INCREMENTAL GROUP FEED COLLECTOR                        ║
    ╚════════════════════════════════════════════════════════════════╝
`

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// Output receives everything the Print helpers write
var Output io.Writer = os.Stdout

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		return fmt.Sprintf(colorString, text)
	}
}

// PrintLogo prints the ASCII logo with color
func PrintLogo() {
	fmt.Fprint(Output, Cyan(ASCIILogo))
}

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(Output, Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(Output, Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	fmt.Fprintln(Output, Green(msg))
}

// PrintInfo prints a label and value
func PrintInfo(label string, value string) {
	fmt.Fprintf(Output, "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(Output, Yellow(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(Output, Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	fmt.Fprintln(Output, Magenta(msg))
}
