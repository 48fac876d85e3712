package nkb

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

// runCleanup removes the configured output directories one at a time,
// then invokes the build system's clean and mrproper targets as a single
// shell command with output and exit status discarded.
//
// Each directory is handled independently: an existing one is archived
// and deleted, a missing one is reported and skipped. Build logs found
// under a directory are compressed into the snapshot area before the
// directory goes away, and the kernel .config is snapshotted before
// mrproper destroys it. Neither archival step can abort the cleanup.
func runCleanup(cfg *Config, r Runner, out io.Writer, pause func(), clear func()) {
	clear()
	for _, dir := range cfg.OutDirs {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			fmt.Fprintln(out, colDanger.Sprintf(" Deleting %s...", dir))
			if n, err := archiveBuildLogs(cfg, dir); err != nil {
				fmt.Fprintln(out, colWarn.Sprintf(" Could not archive build logs from %s: %v", dir, err))
			} else if n > 0 {
				fmt.Fprintln(out, colNote.Sprintf(" Archived %d build log(s) from %s", n, dir))
			}
			if err := os.RemoveAll(dir); err != nil {
				clear()
				fmt.Fprintln(out, colError.Sprintf(" Failed to delete %s: %v", dir, err))
				pause()
				continue
			}
			clear()
			fmt.Fprintln(out, colOK.Sprintf(" Deleted %s ✓", dir))
			pause()
			clear()
		} else {
			clear()
			fmt.Fprintln(out, colDanger.Sprintf(" Directory '%s' does not exists. Skip!", dir))
			pause()
		}
	}

	clear()
	if path, err := snapshotKernelConfig(cfg); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(out, colWarn.Sprintf(" Could not snapshot .config: %v", err))
		}
	} else {
		fmt.Fprintln(out, colNote.Sprintf(" Kernel config snapshot: %s", path))
	}

	fmt.Fprintln(out, "Running 'make clean && make mrproper'...")
	runCleanTargets(cfg, r, out)
	pause()
}

// runCleanTargets runs the clean and mrproper targets quietly, spinning
// a progress indicator while the command is busy. The exit status is
// deliberately ignored.
func runCleanTargets(cfg *Config, r Runner, out io.Writer) {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("cleaning"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()

	script := fmt.Sprintf("%s clean && %s mrproper", cfg.Make, cfg.Make)
	_ = runQuiet(r, "sh", "-c", script)

	close(done)
	_ = bar.Finish()
}

// handleCleanCommand is the non-interactive entry for the cleanup
// action, used by the `clean` subcommand.
func handleCleanCommand(cfg *Config, r Runner) error {
	runCleanup(cfg, r, os.Stdout, func() { time.Sleep(cfg.Pause) }, func() { clearScreen(r, os.Stdout) })
	return nil
}
