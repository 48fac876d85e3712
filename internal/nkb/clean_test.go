package nkb

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

func runCleanupForTest(t *testing.T, cfg *Config) (*bytes.Buffer, *fakeRunner) {
	t.Helper()
	out := &bytes.Buffer{}
	fr := &fakeRunner{}
	runCleanup(cfg, fr, out, func() {}, func() {})
	return out, fr
}

// TestCleanupNoDirs checks that with no output directories present each
// configured one is reported as skipped and the clean targets still run.
func TestCleanupNoDirs(t *testing.T) {
	chdirT(t, t.TempDir())
	cfg := testConfig(t)

	out, fr := runCleanupForTest(t, cfg)

	assert.Contains(t, out.String(), "Directory 'out' does not exists. Skip!")
	assert.Contains(t, out.String(), "Directory 'out2' does not exists. Skip!")
	require.True(t, hasCleanInvocation(fr), "make clean must run even with nothing to delete")
}

// TestCleanupOneDir checks independent per-directory handling: the
// existing directory is deleted, the missing one is skipped.
func TestCleanupOneDir(t *testing.T) {
	tmp := t.TempDir()
	chdirT(t, tmp)
	require.NoError(t, os.MkdirAll(filepath.Join(tmp, "out"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "out", "Image.gz"), []byte("k"), 0o644))
	cfg := testConfig(t)

	out, fr := runCleanupForTest(t, cfg)

	assert.NoDirExists(t, filepath.Join(tmp, "out"))
	assert.Contains(t, out.String(), "Deleting out...")
	assert.Contains(t, out.String(), "Deleted out")
	assert.Contains(t, out.String(), "Directory 'out2' does not exists. Skip!")
	assert.True(t, hasCleanInvocation(fr))
}

// TestCleanupUsesConfiguredMake checks the make command comes from config.
func TestCleanupUsesConfiguredMake(t *testing.T) {
	chdirT(t, t.TempDir())
	cfg := testConfig(t)
	cfg.Make = "gmake"

	_, fr := runCleanupForTest(t, cfg)

	found := false
	for _, line := range fr.commandLines() {
		if line == "sh -c gmake clean && gmake mrproper" {
			found = true
		}
	}
	assert.True(t, found, "clean targets must use the configured make command, got %v", fr.commandLines())
}

// TestCleanupArchivesBuildLogs checks that build logs under an output
// directory survive its deletion as .xz archives.
func TestCleanupArchivesBuildLogs(t *testing.T) {
	tmp := t.TempDir()
	chdirT(t, tmp)
	logContent := "CC init/main.o\nLD vmlinux\n"
	require.NoError(t, os.MkdirAll(filepath.Join(tmp, "out"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "out", "build.log"), []byte(logContent), 0o644))
	cfg := testConfig(t)

	out, _ := runCleanupForTest(t, cfg)
	assert.Contains(t, out.String(), "Archived 1 build log(s) from out")

	archives, err := filepath.Glob(filepath.Join(cfg.SnapshotDir, "logs", "*.log.xz"))
	require.NoError(t, err)
	require.Len(t, archives, 1)

	f, err := os.Open(archives[0])
	require.NoError(t, err)
	defer f.Close()
	xr, err := xz.NewReader(f)
	require.NoError(t, err)
	restored, err := io.ReadAll(xr)
	require.NoError(t, err)
	assert.Equal(t, logContent, string(restored))
}

// TestCleanupSnapshotsKernelConfig checks that an existing .config is
// snapshotted with a valid checksum before the clean targets run.
func TestCleanupSnapshotsKernelConfig(t *testing.T) {
	tmp := t.TempDir()
	chdirT(t, tmp)
	require.NoError(t, os.WriteFile(filepath.Join(tmp, ".config"), []byte("CONFIG_SMP=y\n"), 0o644))
	cfg := testConfig(t)

	out, _ := runCleanupForTest(t, cfg)
	assert.Contains(t, out.String(), "Kernel config snapshot:")

	snapshots, err := filepath.Glob(filepath.Join(cfg.SnapshotDir, "config-*.tar.zst"))
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.FileExists(t, snapshots[0]+".b3")
	assert.NoError(t, verifySnapshot(snapshots[0]))
}
