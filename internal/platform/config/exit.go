package config

import (
	"fmt"
	"io"
	"os"
)

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	ExitCodef(1, format, args...)
}

// ExitCodef writes a formatted error message to stderr and exits with code.
// Match commands use distinct codes for usage errors, infrastructure failures,
// and cancellation.
func ExitCodef(code int, format string, args ...any) {
	writeExitMessage(os.Stderr, format, args...)
	os.Exit(code)
}

func writeExitMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
}
