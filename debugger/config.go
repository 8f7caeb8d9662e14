package debugger

// LogLevel is a bitflag set controlling which categories of diagnostic
// output a Session emits, ported from
// original_source/src/debugger.rs's LogLevel (Silent=0, Breakpoints=0b01,
// Commands=0b10), reinstated in SPEC_FULL.md §6 as a supplemented
// feature the distilled spec.md only alluded to in passing.
type LogLevel uint8

const (
	LogSilent     LogLevel = 0
	LogBreakpoints LogLevel = 1 << 0
	LogCommands    LogLevel = 1 << 1
)

func (l LogLevel) has(flag LogLevel) bool { return l&flag != 0 }

// Option configures a Session at construction time.
type Option func(*Session)

// WithLogLevel sets which diagnostic categories are emitted.
func WithLogLevel(level LogLevel) Option {
	return func(s *Session) { s.logLevel = level }
}
