package debugger

import (
	"testing"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/kstephano-forks/rdbgo/breakpoint"
	"github.com/kstephano-forks/rdbgo/internal/rdlog"
	"github.com/kstephano-forks/rdbgo/phantom"
	"github.com/kstephano-forks/rdbgo/tracee"
)

func newBareSession() *Session {
	return &Session{
		bps:       breakpoint.NewTable(),
		byName:    make(map[string]*breakpoint.Breakpoint),
		phantoms:  phantom.NewStack(nil),
		actionsAt: make(map[tracee.Addr][]Action),
		state:     StateStopped,
	}
}

func TestOnBreakDispatchOrderAtAddressBeforeGlobal(t *testing.T) {
	s := newBareSession()
	s.pc = 0x4005a6

	var order []string
	s.RegisterActionAt(0x4005a5, func(*Session) { order = append(order, "at") }) // stored at 0x4005a6
	s.RegisterAction(func(*Session) { order = append(order, "global") })

	require.NoError(t, s.onBreak())
	require.Equal(t, []string{"at", "global"}, order)
}

func TestOnBreakRunsActionsAtInInsertionOrder(t *testing.T) {
	s := newBareSession()
	s.pc = 0x4006ce

	var order []int
	s.RegisterActionAt(0x4006cd, func(*Session) { order = append(order, 1) })
	s.RegisterActionAt(0x4006cd, func(*Session) { order = append(order, 2) })
	s.RegisterActionAt(0x4006cd, func(*Session) { order = append(order, 3) })

	require.NoError(t, s.onBreak())
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestClearActionsAtRemovesRegisteredActions(t *testing.T) {
	s := newBareSession()
	s.pc = 0x400592

	fired := false
	s.RegisterActionAt(0x400591, func(*Session) { fired = true })
	s.ClearActionsAt(0x400591)

	require.NoError(t, s.onBreak())
	require.False(t, fired)
}

func TestPCReturnsErrorAfterExit(t *testing.T) {
	s := newBareSession()
	s.state = StateExited
	_, err := s.PC()
	require.Error(t, err)
}

func TestCurrentBreakpointFalseWhenNotStopped(t *testing.T) {
	s := newBareSession()
	s.state = StateRunning
	_, ok := s.CurrentBreakpoint()
	require.False(t, ok)
}

func TestStateStringValues(t *testing.T) {
	require.Equal(t, "fresh", StateFresh.String())
	require.Equal(t, "running", StateRunning.String())
	require.Equal(t, "stopped", StateStopped.String())
	require.Equal(t, "exited", StateExited.String())
}

func TestLogLevelGating(t *testing.T) {
	var l LogLevel = LogBreakpoints
	require.True(t, l.has(LogBreakpoints))
	require.False(t, l.has(LogCommands))

	l = LogBreakpoints | LogCommands
	require.True(t, l.has(LogCommands))
}

// TestLogCommandGatedByLogLevel verifies LogCommands actually gates a real
// logrus call through internal/rdlog, not just the bitmask check
// TestLogLevelGating exercises.
func TestLogCommandGatedByLogLevel(t *testing.T) {
	prevLevel := rdlog.Logger.GetLevel()
	rdlog.Logger.SetLevel(logrus.DebugLevel)
	hook := logrustest.NewLocal(rdlog.Logger)
	defer func() {
		rdlog.Logger.SetLevel(prevLevel)
		rdlog.Logger.ReplaceHooks(make(logrus.LevelHooks))
	}()

	s := newBareSession()

	s.logCommand("test.command", nil)
	require.Empty(t, hook.Entries, "logCommand must not emit when LogCommands is not set")

	s.logLevel = LogCommands
	s.logCommand("test.command", nil)
	require.Len(t, hook.Entries, 1)
	require.Equal(t, "test.command", hook.LastEntry().Message)
}

func TestPhantomCallRequiresCurrentBreakpoint(t *testing.T) {
	s := newBareSession()
	s.pc = 0x400592 // not the post-trap key of any installed breakpoint

	_, err := s.PhantomCall(0x400600, nil, []tracee.Addr{0x400700})
	require.ErrorIs(t, err, ErrNoCurrentBreakpoint)
}
