package nkb

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConfigDefaults checks the defaults applied with no config file.
func TestConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.conf"))
	require.NoError(t, err)

	assert.Equal(t, []string{"out", "out2"}, cfg.OutDirs)
	assert.Equal(t, "make", cfg.Make)
	assert.Equal(t, "glibc 2.39", cfg.LibcSupported)
	assert.Equal(t, LibcPolicyExact, cfg.LibcPolicy)
	assert.Equal(t, 2*time.Second, cfg.Pause)
	assert.NotEmpty(t, cfg.SnapshotDir)
}

// TestConfigFileParsing checks key=value parsing with comments, blanks
// and quoting.
func TestConfigFileParsing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nkb.conf")
	content := `# build front-end settings
NKB_OUT_DIRS=out:out2:obj

NKB_MAKE="gmake"
NKB_LIBC_SUPPORTED='glibc 2.40'
NKB_PAUSE_MS=0
not a key value line
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"out", "out2", "obj"}, cfg.OutDirs)
	assert.Equal(t, "gmake", cfg.Make)
	assert.Equal(t, "glibc 2.40", cfg.LibcSupported)
	assert.Equal(t, time.Duration(0), cfg.Pause)
	assert.NotContains(t, cfg.Values, "not a key value line")
}

// TestConfigEnvOverrides checks that NKB_* environment variables win
// over file values.
func TestConfigEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nkb.conf")
	require.NoError(t, os.WriteFile(path, []byte("NKB_MAKE=gmake\n"), 0o644))

	t.Setenv("NKB_MAKE", "bmake")
	t.Setenv("NKB_LIBC_POLICY", "minimum")
	t.Setenv("NKB_LIBC_MIN", "glibc 2.30")

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "bmake", cfg.Make)
	assert.Equal(t, LibcPolicyMinimum, cfg.LibcPolicy)
	assert.Equal(t, "glibc 2.30", cfg.LibcMin)
}

// TestConfigLibcMinDefaultsToSupported checks the minimum policy falls
// back to the supported version when no explicit minimum is set.
func TestConfigLibcMinDefaultsToSupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nkb.conf")
	require.NoError(t, os.WriteFile(path, []byte("NKB_LIBC_POLICY=minimum\n"), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, LibcPolicyMinimum, cfg.LibcPolicy)
	assert.Equal(t, cfg.LibcSupported, cfg.LibcMin)
}
