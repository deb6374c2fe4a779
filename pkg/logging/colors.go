// Package logging provides colored console output and per-protocol debug levels
package logging

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	successColor = color.New(color.FgGreen)
	infoColor    = color.New(color.FgBlue)
	traceColor   = color.New(color.FgCyan)
	debugColor   = color.New(color.FgWhite, color.Faint)

	colorsEnabled = true
)

// InitColors initializes the color system
func InitColors(enabled bool) {
	colorsEnabled = enabled

	// Respect NO_COLOR environment variable (https://no-color.org/)
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
	}

	color.NoColor = !colorsEnabled
}

// Error prints an error message in red
func Error(format string, args ...interface{}) {
	if colorsEnabled {
		errorColor.Printf("ERROR: "+format+"\n", args...)
	} else {
		fmt.Printf("ERROR: "+format+"\n", args...)
	}
}

// Warning prints a warning message in yellow
func Warning(format string, args ...interface{}) {
	if colorsEnabled {
		warningColor.Printf("WARN: "+format+"\n", args...)
	} else {
		fmt.Printf("WARN: "+format+"\n", args...)
	}
}

// Success prints a success message in green
func Success(format string, args ...interface{}) {
	if colorsEnabled {
		successColor.Printf(format+"\n", args...)
	} else {
		fmt.Printf(format+"\n", args...)
	}
}

// Info prints an informational message in blue
func Info(format string, args ...interface{}) {
	if colorsEnabled {
		infoColor.Printf(format+"\n", args...)
	} else {
		fmt.Printf(format+"\n", args...)
	}
}

// Trace prints a protocol trace line in cyan
func Trace(format string, args ...interface{}) {
	if colorsEnabled {
		traceColor.Printf(format+"\n", args...)
	} else {
		fmt.Printf(format+"\n", args...)
	}
}

// Debug prints a faint debug message
func Debug(format string, args ...interface{}) {
	if colorsEnabled {
		debugColor.Printf(format+"\n", args...)
	} else {
		fmt.Printf(format+"\n", args...)
	}
}
