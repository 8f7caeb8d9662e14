package tracee

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// buildLoopFixture compiles a tiny static, non-PIE busy-loop binary with
// the host's C toolchain, skipping the test when none is available.
// Matches fixtures/README.md: a minimal fixture built with `cc -static
// -no-pie` at go test time.
func buildLoopFixture(t *testing.T) string {
	t.Helper()

	cc, err := exec.LookPath("cc")
	if err != nil {
		t.Skip("no C toolchain available, skipping ptrace integration test")
	}

	src := `
#include <unistd.h>
int main(void) {
    volatile long counter = 0;
    for (;;) {
        counter++;
        if (counter > 1000000000L) counter = 0;
    }
    return 0;
}
`
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "loop.c")
	binPath := filepath.Join(dir, "loop")
	require.NoError(t, os.WriteFile(srcPath, []byte(src), 0o644))

	cmd := exec.Command(cc, "-static", "-no-pie", "-O0", "-o", binPath, srcPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Skipf("cc failed to build fixture, skipping: %v\n%s", err, out)
	}

	return binPath
}

func killTracee(t *testing.T, tr *Tracee) {
	t.Helper()
	_ = unix.Kill(tr.Pid(), unix.SIGKILL)
	_, _ = tr.Wait()
}

func TestSpawnWaitGetRegs(t *testing.T) {
	runtime.LockOSThread()
	bin := buildLoopFixture(t)

	tr, err := Spawn(bin, []string{bin})
	require.NoError(t, err)
	defer killTracee(t, tr)

	require.Positive(t, tr.Pid())

	regs, err := tr.GetRegs()
	require.NoError(t, err)
	require.NotZero(t, regs.Rip, "the tracee should be stopped at a real instruction address")
}

func TestSingleStepAdvancesInstructionPointer(t *testing.T) {
	runtime.LockOSThread()
	bin := buildLoopFixture(t)

	tr, err := Spawn(bin, []string{bin})
	require.NoError(t, err)
	defer killTracee(t, tr)

	before, err := tr.GetRegs()
	require.NoError(t, err)

	require.NoError(t, tr.Step())
	st, err := tr.Wait()
	require.NoError(t, err)
	require.True(t, st.Trapped())

	after, err := tr.GetRegs()
	require.NoError(t, err)
	require.NotEqual(t, before.Rip, after.Rip, "single step must move rip")
}

func TestSetRegsRoundTrip(t *testing.T) {
	runtime.LockOSThread()
	bin := buildLoopFixture(t)

	tr, err := Spawn(bin, []string{bin})
	require.NoError(t, err)
	defer killTracee(t, tr)

	regs, err := tr.GetRegs()
	require.NoError(t, err)

	original := regs.Rax
	regs.Rax = 0xdeadbeef
	require.NoError(t, tr.SetRegs(regs))

	readBack, err := tr.GetRegs()
	require.NoError(t, err)
	require.Equal(t, uint64(0xdeadbeef), readBack.Rax)

	// restore, as a well-behaved caller would before resuming
	readBack.Rax = original
	require.NoError(t, tr.SetRegs(readBack))
}

func TestPeekPokeWordRoundTrip(t *testing.T) {
	runtime.LockOSThread()
	bin := buildLoopFixture(t)

	tr, err := Spawn(bin, []string{bin})
	require.NoError(t, err)
	defer killTracee(t, tr)

	regs, err := tr.GetRegs()
	require.NoError(t, err)
	addr := Addr(regs.Rip)

	original, err := tr.PeekWord(addr)
	require.NoError(t, err)

	require.NoError(t, tr.PokeWord(addr, original))
	readBack, err := tr.PeekWord(addr)
	require.NoError(t, err)
	require.Equal(t, original, readBack)
}

func TestPeekPokeByteRoundTrip(t *testing.T) {
	runtime.LockOSThread()
	bin := buildLoopFixture(t)

	tr, err := Spawn(bin, []string{bin})
	require.NoError(t, err)
	defer killTracee(t, tr)

	regs, err := tr.GetRegs()
	require.NoError(t, err)
	addr := Addr(regs.Rip)

	originalWord, err := tr.PeekWord(addr)
	require.NoError(t, err)
	originalByte := byte(originalWord)

	require.NoError(t, tr.PokeByte(addr, 0xCC))
	trapped, err := tr.PeekByte(addr)
	require.NoError(t, err)
	require.Equal(t, byte(0xCC), trapped)

	// the other seven bytes of the containing word must survive untouched
	afterPoke, err := tr.PeekWord(addr)
	require.NoError(t, err)
	require.Equal(t, originalWord&^0xFF, afterPoke&^0xFF)

	require.NoError(t, tr.PokeByte(addr, originalByte))
	restored, err := tr.PeekWord(addr)
	require.NoError(t, err)
	require.Equal(t, originalWord, restored)
}

func TestContResumesPastStop(t *testing.T) {
	runtime.LockOSThread()
	bin := buildLoopFixture(t)

	tr, err := Spawn(bin, []string{bin})
	require.NoError(t, err)
	defer killTracee(t, tr)

	require.NoError(t, tr.Step())
	st, err := tr.Wait()
	require.NoError(t, err)
	require.True(t, st.Trapped())

	require.NoError(t, tr.Cont())

	// the tracee is now free-running the busy loop; confirm it's still
	// alive rather than waiting indefinitely for a stop that won't come.
	require.NoError(t, unix.Kill(tr.Pid(), 0), "process should still be running")
}

func TestAttachToRunningProcess(t *testing.T) {
	runtime.LockOSThread()
	bin := buildLoopFixture(t)

	cmd := exec.Command(bin)
	require.NoError(t, cmd.Start())
	defer func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	}()

	tr, err := Attach(cmd.Process.Pid)
	require.NoError(t, err)
	defer killTracee(t, tr)

	regs, err := tr.GetRegs()
	require.NoError(t, err)
	require.NotZero(t, regs.Rip)
}
