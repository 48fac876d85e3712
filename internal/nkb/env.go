package nkb

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const osReleaseFile = "/etc/os-release"

// EnvSnapshot is the read-only bundle of host facts shown on the
// welcome screen. It is gathered fresh on every render and never cached.
type EnvSnapshot struct {
	DistroName    string
	DistroVersion string
	LibcVersion   string
	KernelRelease string
	DiskTotal     uint64
	DiskFree      uint64
}

// collectEnv gathers the snapshot. Probe failures degrade to "unknown"
// instead of killing the process.
func collectEnv(r Runner) EnvSnapshot {
	env := EnvSnapshot{
		DistroName:    "unknown",
		DistroVersion: "",
		LibcVersion:   "unknown",
		KernelRelease: "unknown",
	}

	if name, ver, err := parseOSRelease(osReleaseFile); err == nil {
		env.DistroName = name
		env.DistroVersion = ver
	} else {
		debugf("os-release probe failed: %v\n", err)
	}

	if rel, err := kernelRelease(); err == nil {
		env.KernelRelease = rel
	} else {
		debugf("uname probe failed: %v\n", err)
	}

	if libc, err := libcVersion(r); err == nil {
		env.LibcVersion = libc
	} else {
		debugf("libc probe failed: %v\n", err)
	}

	if total, free, err := diskUsage("/"); err == nil {
		env.DiskTotal = total
		env.DiskFree = free
	} else {
		debugf("statfs probe failed: %v\n", err)
	}

	return env
}

// parseOSRelease extracts NAME and VERSION_ID from an os-release file.
func parseOSRelease(path string) (name, version string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		val := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		switch strings.TrimSpace(parts[0]) {
		case "NAME":
			name = val
		case "VERSION_ID":
			version = val
		}
	}
	if err := scanner.Err(); err != nil {
		return "", "", err
	}
	if name == "" {
		return "", "", fmt.Errorf("no NAME entry in %s", path)
	}
	return name, version, nil
}

// kernelRelease returns the running kernel release string via uname.
func kernelRelease() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", err
	}
	rel := uts.Release[:]
	if i := bytes.IndexByte(rel, 0); i >= 0 {
		rel = rel[:i]
	}
	return string(rel), nil
}

// libcVersion queries the host C library version identifier, e.g.
// "glibc 2.39". getconf is the portable equivalent of confstr(3).
func libcVersion(r Runner) (string, error) {
	out, err := runCapture(r, "getconf", "GNU_LIBC_VERSION")
	if err != nil {
		return "", fmt.Errorf("getconf GNU_LIBC_VERSION: %w", err)
	}
	if out == "" {
		return "", fmt.Errorf("getconf returned no libc version")
	}
	return out, nil
}

// diskUsage returns total and free bytes for the filesystem at path.
// Free space is what an unprivileged user can still allocate (Bavail).
func diskUsage(path string) (total, free uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	total = uint64(st.Frsize) * st.Blocks
	free = uint64(st.Frsize) * st.Bavail
	return total, free, nil
}

// formatDisk renders the disk line with gibibyte precision of two
// decimal places.
func formatDisk(total, free uint64) string {
	totalGB := float64(total) / float64(uint64(1)<<30)
	freeGB := float64(free) / float64(uint64(1)<<30)
	return fmt.Sprintf("Disk: %.2f GB / %.2f GB Free", totalGB, freeGB)
}

// LibcPolicy selects how the detected libc version is judged against
// the configured target.
type LibcPolicy int

const (
	// LibcPolicyExact requires the full version string to match the
	// configured one byte for byte.
	LibcPolicyExact LibcPolicy = iota
	// LibcPolicyMinimum accepts any version greater than or equal to
	// the configured minimum.
	LibcPolicyMinimum
)

// libcSupported judges version against the configured policy.
func libcSupported(cfg *Config, version string) bool {
	switch cfg.LibcPolicy {
	case LibcPolicyMinimum:
		return compareLibcVersions(version, cfg.LibcMin) >= 0
	default:
		return version == cfg.LibcSupported
	}
}

// libcStatus returns the colored compatibility label for version.
func libcStatus(cfg *Config, version string) string {
	if libcSupported(cfg, version) {
		return colOK.Sprint("✓ Supported")
	}
	return colDanger.Sprint("X unsupported")
}

// compareLibcVersions compares two "glibc X.Y[.Z]" strings numerically.
// Returns <0, 0 or >0. Strings that do not parse compare as lower than
// anything that does.
func compareLibcVersions(a, b string) int {
	av, aok := parseLibcVersion(a)
	bv, bok := parseLibcVersion(b)
	if !aok || !bok {
		switch {
		case aok == bok:
			return strings.Compare(a, b)
		case aok:
			return 1
		default:
			return -1
		}
	}
	for i := 0; i < len(av) || i < len(bv); i++ {
		var x, y int
		if i < len(av) {
			x = av[i]
		}
		if i < len(bv) {
			y = bv[i]
		}
		if x != y {
			return x - y
		}
	}
	return 0
}

func parseLibcVersion(s string) ([]int, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, false
	}
	numeric := fields[len(fields)-1]
	var parts []int
	for _, p := range strings.Split(numeric, ".") {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, false
		}
		parts = append(parts, n)
	}
	return parts, true
}
