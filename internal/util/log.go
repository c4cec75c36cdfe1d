package util

import (
	"fmt"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// LogDebug, LogWarning, and LogError are the dispatch loop's own voice:
// every per-message failure it logs (a failed send, a rejected
// endpoint, a malformed payload) goes through DefaultLogger so it
// carries a level and timestamp a node operator can grep for.

func LogDebug(format string, args ...any) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...any) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...any) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// LogInfo reports ordinary lifecycle progress (startup, shutdown,
// state transitions) through the same leveled logger as the warning
// and error paths.
func LogInfo(format string, args ...any) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

// LogSuccess marks a one-time milestone worth calling out from the
// surrounding noise — the relay reaching its running state, a
// connection completing — so it prints through pterm's standalone
// Success prefix printer instead of DefaultLogger, the same
// direct-print idiom the command-line entry point uses for its own
// banner line. Aliasing it to LogInfo, as the logger it was adapted
// from does, would make the distinction pointless.
func LogSuccess(format string, args ...any) {
	pterm.Success.Printfln(format, args...)
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}
