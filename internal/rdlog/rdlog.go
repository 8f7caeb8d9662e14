// Package rdlog is a thin wrapper over logrus used by the debugger
// package, grounded on the direct logrus usage in
// other_examples/68b1ccb2_gravitational-teleport__lib-bpf-exec.go.go.
// It exists so call sites read like the teacher-lineage's gated
// log_breakpoint()/log_command() helpers (original_source/src/
// debugger.rs) while emitting structured logrus.Fields instead of bare
// println! calls.
package rdlog

import "github.com/sirupsen/logrus"

// Logger is a package-level default, matching the scope of a single
// process's debugger session; callers that need isolation can construct
// their own *logrus.Logger and pass fields directly.
var Logger = logrus.New()

// Breakpoint logs a breakpoint-related event.
func Breakpoint(event string, fields logrus.Fields) {
	Logger.WithFields(fields).Debug(event)
}

// Command logs a session-command event (run/continue/step/phantom call).
func Command(event string, fields logrus.Fields) {
	Logger.WithFields(fields).Debug(event)
}
