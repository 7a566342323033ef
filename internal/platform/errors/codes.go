// Package errors provides structured, code-carrying errors for match
// orchestration.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Player failures. Each of these ends the match for the offending player.
	CodeSpawn        Code = "SPAWN_ERROR"
	CodeTimeout      Code = "TIMEOUT"
	CodeCrashed      Code = "CRASHED"
	CodeProtocol     Code = "PROTOCOL_ERROR"
	CodeIllegalMove  Code = "ILLEGAL_MOVE"
	CodeStreamClosed Code = "STREAM_CLOSED"

	// Match-level aborts.
	CodeRules     Code = "RULES_ERROR"
	CodeCancelled Code = "CANCELLED"

	// Configuration and storage.
	CodeInvalidConfig Code = "INVALID_CONFIG"
	CodeStorage       Code = "STORAGE_ERROR"
	CodeNotFound      Code = "NOT_FOUND"
)

// Exit statuses reported by the match commands.
const (
	ExitOK        = 0
	ExitUsage     = 1
	ExitInfra     = 2
	ExitCancelled = 130
)

// IsPlayerFault reports whether the code describes a failure attributable to a
// single player rather than to the harness.
func (c Code) IsPlayerFault() bool {
	switch c {
	case CodeTimeout, CodeCrashed, CodeProtocol, CodeIllegalMove, CodeStreamClosed:
		return true
	default:
		return false
	}
}

// ExitCode maps a code to the process exit status of a command that failed
// with it.
func (c Code) ExitCode() int {
	switch c {
	// Usage - the operator asked for something impossible
	case CodeInvalidConfig,
		CodeNotFound:
		return ExitUsage

	// Cancelled - signal received before the match finished
	case CodeCancelled:
		return ExitCancelled

	// Player faults never fail the command; they are match outcomes.
	case CodeTimeout,
		CodeCrashed,
		CodeProtocol,
		CodeIllegalMove,
		CodeStreamClosed:
		return ExitOK

	default:
		return ExitInfra
	}
}
