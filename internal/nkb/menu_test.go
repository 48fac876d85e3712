package nkb

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records every command it is asked to run instead of
// spawning processes.
type fakeRunner struct {
	calls [][]string
}

func (f *fakeRunner) Run(cmd *exec.Cmd) error {
	args := make([]string, len(cmd.Args))
	copy(args, cmd.Args)
	f.calls = append(f.calls, args)
	return nil
}

// commandLines flattens the recorded calls for easy comparison.
func (f *fakeRunner) commandLines() []string {
	var lines []string
	for _, c := range f.calls {
		lines = append(lines, strings.Join(c, " "))
	}
	return lines
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		Values:        map[string]string{},
		OutDirs:       []string{"out", "out2"},
		Make:          "make",
		SnapshotDir:   t.TempDir(),
		LibcSupported: "glibc 2.39",
		LibcPolicy:    LibcPolicyExact,
		LibcMin:       "glibc 2.39",
		Pause:         0,
	}
}

func stubEnv(Runner) EnvSnapshot {
	return EnvSnapshot{
		DistroName:    "TestOS",
		DistroVersion: "1.0",
		LibcVersion:   "glibc 2.39",
		KernelRelease: "6.10.0-test",
		DiskTotal:     100 << 30,
		DiskFree:      50 << 30,
	}
}

func newTestMenu(t *testing.T, input string, cfg *Config) (*Menu, *bytes.Buffer, *fakeRunner) {
	t.Helper()
	out := &bytes.Buffer{}
	fr := &fakeRunner{}
	m := &Menu{
		In:   strings.NewReader(input),
		Out:  out,
		Cfg:  cfg,
		Exec: fr,
		Env:  stubEnv,
	}
	return m, out, fr
}

// hasCleanInvocation reports whether the runner saw the combined
// make clean && make mrproper shell command.
func hasCleanInvocation(fr *fakeRunner) bool {
	for _, line := range fr.commandLines() {
		if strings.Contains(line, "make clean && make mrproper") {
			return true
		}
	}
	return false
}

// TestMenuRejectsUnknownOption checks that input outside the option set
// prints the wrong-option message, runs nothing, and keeps looping.
func TestMenuRejectsUnknownOption(t *testing.T) {
	chdirT(t, t.TempDir())
	for _, input := range []string{"x", "bb", " b", "b ", "E", "1"} {
		t.Run(input, func(t *testing.T) {
			m, out, fr := newTestMenu(t, input+"\ne\n", testConfig(t))
			require.NoError(t, m.Run())

			assert.Contains(t, out.String(), "Selected wrong Option!")
			assert.False(t, hasCleanInvocation(fr), "unknown input must not trigger cleanup")
			// The prompt shows twice: the rejected round and the exit round.
			assert.Equal(t, 2, strings.Count(out.String(), "Enter an option: "))
		})
	}
}

// TestMenuExitDoesNotDelete checks that the exit option terminates the
// loop without touching the output directories.
func TestMenuExitDoesNotDelete(t *testing.T) {
	tmp := t.TempDir()
	chdirT(t, tmp)
	require.NoError(t, os.MkdirAll(filepath.Join(tmp, "out"), 0o755))

	m, out, fr := newTestMenu(t, "e\n", testConfig(t))
	require.NoError(t, m.Run())

	assert.Contains(t, out.String(), "Out folder detected. Source is not clean ...")
	assert.Contains(t, out.String(), "Thank you for using Nameless Kernel Builder.")
	assert.DirExists(t, filepath.Join(tmp, "out"))
	assert.False(t, hasCleanInvocation(fr))
}

// TestMenuBuildAndCleanAreEquivalent asserts that the b and c options
// run the exact same observable action.
func TestMenuBuildAndCleanAreEquivalent(t *testing.T) {
	run := func(option string) ([]string, string, string) {
		tmp := t.TempDir()
		chdirT(t, tmp)
		require.NoError(t, os.MkdirAll(filepath.Join(tmp, "out"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(tmp, "out", "vmlinux"), []byte("x"), 0o644))

		m, out, fr := newTestMenu(t, option+"\ne\n", testConfig(t))
		require.NoError(t, m.Run())

		remaining := []string{}
		entries, err := os.ReadDir(tmp)
		require.NoError(t, err)
		for _, e := range entries {
			remaining = append(remaining, e.Name())
		}
		return fr.commandLines(), out.String(), strings.Join(remaining, ",")
	}

	bCalls, bOut, bFS := run("b")
	cCalls, cOut, cFS := run("c")

	assert.Equal(t, bCalls, cCalls, "b and c must run identical commands")
	assert.Equal(t, bFS, cFS, "b and c must leave the tree in the same state")
	for _, s := range []string{bOut, cOut} {
		assert.Contains(t, s, "Deleted out")
		assert.Contains(t, s, "Running 'make clean && make mrproper'...")
	}
	assert.NotContains(t, bFS, "out", "both options must delete the out directory")
}

// TestMenuToolchainOption checks that the advertised toolchain option is
// accepted, reports its status, and runs nothing.
func TestMenuToolchainOption(t *testing.T) {
	chdirT(t, t.TempDir())
	m, out, fr := newTestMenu(t, "t\ne\n", testConfig(t))
	require.NoError(t, m.Run())

	assert.Contains(t, out.String(), "not implemented yet")
	assert.NotContains(t, out.String(), "Selected wrong Option!")
	assert.False(t, hasCleanInvocation(fr))
}

// TestMenuWelcomeScreen checks the rendered status facts.
func TestMenuWelcomeScreen(t *testing.T) {
	chdirT(t, t.TempDir())
	m, out, _ := newTestMenu(t, "e\n", testConfig(t))
	require.NoError(t, m.Run())

	s := out.String()
	assert.Contains(t, s, "******* Nameless Kernel Builder Menu *******")
	assert.Contains(t, s, "OS: TestOS 1.0 with glibc 2.39")
	assert.Contains(t, s, "Linux Kernel: 6.10.0-test")
	assert.Contains(t, s, "Disk: 100.00 GB / 50.00 GB Free")
	assert.Contains(t, s, "t = Toolchain")
	assert.Contains(t, s, "b = Build")
	assert.Contains(t, s, "c = Clean all")
}

// TestMenuEOFStopsLoop checks that a closed stdin ends the loop cleanly
// instead of spinning.
func TestMenuEOFStopsLoop(t *testing.T) {
	chdirT(t, t.TempDir())
	cfg := testConfig(t)
	m, _, _ := newTestMenu(t, "", cfg)

	done := make(chan error, 1)
	go func() { done <- m.Run() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("menu loop did not stop on EOF")
	}
}
