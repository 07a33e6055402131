package core

import (
	"os"
	"syscall"
)

// Process exit codes. Signal exits follow the shell convention of
// 128 + signal number.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
	ExitCodeSIGINT  = 128 + int(syscall.SIGINT)
	ExitCodeSIGTERM = 128 + int(syscall.SIGTERM)
)

// ExitCodeForSignal returns the exit code for a process stopped by sig.
// A nil or unrecognised signal maps to ExitCodeSuccess since shutdown was
// orderly either way.
func ExitCodeForSignal(sig os.Signal) int {
	switch sig {
	case os.Interrupt:
		return ExitCodeSIGINT
	case syscall.SIGTERM:
		return ExitCodeSIGTERM
	default:
		return ExitCodeSuccess
	}
}

// ExitCodeName describes an exit code for logs.
func ExitCodeName(code int) string {
	switch code {
	case ExitCodeSuccess:
		return "success"
	case ExitCodeError:
		return "error"
	case ExitCodeSIGINT:
		return "interrupted (SIGINT)"
	case ExitCodeSIGTERM:
		return "terminated (SIGTERM)"
	default:
		return "unknown"
	}
}

// IsSignalExit reports whether code records a signal-initiated stop.
func IsSignalExit(code int) bool {
	return code == ExitCodeSIGINT || code == ExitCodeSIGTERM
}
