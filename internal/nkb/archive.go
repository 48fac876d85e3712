package nkb

import (
	"archive/tar"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
	"lukechampine.com/blake3"
)

// snapshotKernelConfig archives the kernel .config from the current
// directory, plus any *.config variants next to it, into the snapshot
// area as config-<ts>.tar.zst and writes a BLAKE3 digest sidecar next
// to it. mrproper removes .config, so this runs before the clean
// targets.
//
// Returns the os.Stat error when there is no .config to save, so
// os.IsNotExist works on it.
func snapshotKernelConfig(cfg *Config) (string, error) {
	info, err := os.Stat(".config")
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf(".config is a directory, not a kernel config")
	}

	files := []string{".config"}
	if variants, err := filepath.Glob("*.config"); err == nil {
		files = append(files, variants...)
	}

	if err := os.MkdirAll(cfg.SnapshotDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	name := fmt.Sprintf("config-%d.tar.zst", time.Now().UnixNano())
	path := filepath.Join(cfg.SnapshotDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	zw, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return "", err
	}
	tw := tar.NewWriter(zw)

	for _, file := range files {
		fi, err := os.Stat(file)
		if err != nil || fi.IsDir() {
			continue
		}
		if err := addFileToTar(tw, file, fi); err != nil {
			tw.Close()
			zw.Close()
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("failed to add %s to snapshot: %w", file, err)
		}
	}

	if err := tw.Close(); err != nil {
		zw.Close()
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}

	if err := writeChecksumSidecar(path); err != nil {
		os.Remove(path)
		return "", err
	}

	return path, nil
}

func addFileToTar(tw *tar.Writer, path string, info os.FileInfo) error {
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(path)
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

// b3sumFile computes the BLAKE3 digest of a file, hex encoded.
func b3sumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeChecksumSidecar writes <path>.b3 in b3sum output format.
func writeChecksumSidecar(path string) error {
	sum, err := b3sumFile(path)
	if err != nil {
		return err
	}
	line := fmt.Sprintf("%s  %s\n", sum, filepath.Base(path))
	return os.WriteFile(path+".b3", []byte(line), 0o644)
}

// verifySnapshot recomputes the archive digest and compares it against
// the .b3 sidecar.
func verifySnapshot(path string) error {
	data, err := os.ReadFile(path + ".b3")
	if err != nil {
		return fmt.Errorf("missing checksum sidecar: %w", err)
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return fmt.Errorf("empty checksum sidecar for %s", path)
	}
	want := fields[0]

	got, err := b3sumFile(path)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("checksum mismatch for %s: have %s, want %s", path, got, want)
	}
	return nil
}

// restoreSnapshot verifies and extracts a config snapshot into dest.
func restoreSnapshot(path, dest string) error {
	if err := verifySnapshot(path); err != nil {
		return err
	}
	return extractArchive(path, dest)
}

// extractArchive unpacks a tar archive into dest. The compression is
// picked from the file extension: .tar.zst, .tar.gz/.tgz, .tar.xz or
// plain .tar.
func extractArchive(path, dest string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	switch {
	case strings.HasSuffix(path, ".tar.zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create zstd reader for %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	case strings.HasSuffix(path, ".tar.gz"), strings.HasSuffix(path, ".tgz"):
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create gzip reader for %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	case strings.HasSuffix(path, ".tar.xz"):
		xr, err := xz.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create xz reader for %s: %w", path, err)
		}
		r = xr
	case strings.HasSuffix(path, ".tar"):
		// no compression
	default:
		return fmt.Errorf("unsupported archive format: %s", path)
	}

	absDest, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(absDest, 0o755); err != nil {
		return err
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading tar header in %s: %w", path, err)
		}

		if hdr.Typeflag == tar.TypeXHeader || hdr.Typeflag == tar.TypeXGlobalHeader {
			if _, err := io.Copy(io.Discard, tr); err != nil {
				return fmt.Errorf("error skipping extended header data in %s: %w", path, err)
			}
			continue
		}

		target := filepath.Join(absDest, hdr.Name)
		// Path traversal guard, same idea as the zip slip check.
		if target != absDest && !strings.HasPrefix(target, absDest+string(os.PathSeparator)) {
			return fmt.Errorf("illegal file path in archive: %s", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		default:
			debugf("skipping tar entry %s (type %d)\n", hdr.Name, hdr.Typeflag)
		}
	}
	return nil
}

// archiveBuildLogs compresses build logs found under dir into the
// snapshot area before the directory is deleted. Returns how many logs
// were archived.
func archiveBuildLogs(cfg *Config, dir string) (int, error) {
	var logs []string
	for _, pattern := range []string{
		filepath.Join(dir, "build.log"),
		filepath.Join(dir, "log", "build-log.txt"),
		filepath.Join(dir, "*", "log", "build-log.txt"),
	} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		logs = append(logs, matches...)
	}
	if len(logs) == 0 {
		return 0, nil
	}

	logDir := filepath.Join(cfg.SnapshotDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create log archive dir: %w", err)
	}

	archived := 0
	for i, log := range logs {
		name := fmt.Sprintf("%s-%d-%d.log.xz", filepath.Base(dir), time.Now().UnixNano(), i)
		dest := filepath.Join(logDir, name)
		if err := compressXZFile(log, dest); err != nil {
			return archived, fmt.Errorf("failed to archive %s: %w", log, err)
		}
		archived++
	}
	return archived, nil
}

// compressXZFile compresses a single file with XZ.
func compressXZFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}

	xw, err := xz.NewWriter(out)
	if err != nil {
		out.Close()
		return err
	}
	if _, err := io.Copy(xw, in); err != nil {
		xw.Close()
		out.Close()
		return err
	}
	if err := xw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// handleSnapshotCommand runs a standalone config snapshot.
func handleSnapshotCommand(cfg *Config) error {
	path, err := snapshotKernelConfig(cfg)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no .config in the current directory")
		}
		return err
	}
	colArrow.Print("-> ")
	colSuccess.Printf("Kernel config snapshot written: %s\n", path)
	return nil
}

// handleRestoreCommand verifies and extracts a snapshot into the
// current directory.
func handleRestoreCommand(args []string, cfg *Config) error {
	if len(args) < 1 {
		// Point at the newest snapshot when none is named.
		matches, _ := filepath.Glob(filepath.Join(cfg.SnapshotDir, "config-*.tar.zst"))
		if len(matches) == 0 {
			return fmt.Errorf("no snapshot given and none found in %s", cfg.SnapshotDir)
		}
		newest := matches[0]
		newestMod := time.Time{}
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.ModTime().After(newestMod) {
				newest = m
				newestMod = info.ModTime()
			}
		}
		args = []string{newest}
	}

	path := args[0]
	if _, err := os.Stat(".config"); err == nil {
		if !askForConfirmation(colArrow, "Overwrite the existing .config from %s?", filepath.Base(path)) {
			colNote.Println("Restore canceled.")
			return nil
		}
	}
	if err := restoreSnapshot(path, "."); err != nil {
		return err
	}
	colArrow.Print("-> ")
	colSuccess.Printf("Restored %s\n", path)
	return nil
}
