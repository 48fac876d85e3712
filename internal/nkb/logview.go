package nkb

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/ulikunitz/xz"
)

type buildLog struct {
	path    string
	content string
}

// handleLogCommand shows build logs. With a path argument the log is
// paged through $PAGER (decompressed first when it is an .xz archive);
// without arguments a TUI browser over all known logs opens.
func handleLogCommand(args []string, cfg *Config) int {
	if len(args) >= 1 {
		if err := pageLogFile(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error showing log: %v\n", err)
			return 1
		}
		return 0
	}
	return runLogTUI(cfg)
}

// pageLogFile pipes a log through the user's pager, falling back to
// plain stdout when the pager fails.
func pageLogFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".xz") {
		xr, err := xz.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create xz reader: %w", err)
		}
		r = xr
	}

	pager := os.Getenv("PAGER")
	var pagerArgs []string
	if pager == "" {
		pager = "less"
		pagerArgs = []string{"-r"}
	} else if pager == "less" {
		pagerArgs = []string{"-r"}
	}

	cmd := exec.Command(pager, pagerArgs...)
	cmd.Stdin = r
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		if _, serr := f.Seek(0, 0); serr != nil {
			return err
		}
		r = f
		if strings.HasSuffix(path, ".xz") {
			xr, xerr := xz.NewReader(f)
			if xerr != nil {
				return xerr
			}
			r = xr
		}
		_, cerr := io.Copy(os.Stdout, r)
		return cerr
	}
	return nil
}

// runLogTUI opens a scrollable viewer over live and archived build logs.
func runLogTUI(cfg *Config) int {
	app := tview.NewApplication()

	header := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetTextAlign(tview.AlignLeft)
	header.SetBorder(true)
	header.SetTitle("nkb Build Log Viewer")

	logView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetScrollable(true).
		SetChangedFunc(func() {
			app.Draw()
		})
	logView.SetBorder(true)

	footer := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetTextAlign(tview.AlignLeft)
	footer.SetBorder(true)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 3, 0, false).
		AddItem(logView, 0, 1, true).
		AddItem(footer, 3, 0, false)

	logs := collectBuildLogs(cfg)
	active := 0

	show := func() {
		if len(logs) == 0 {
			header.SetText("[gray]No build logs found[white]")
			logView.SetText("No build log yet. Archived logs appear here after a cleanup.")
		} else {
			if active >= len(logs) {
				active = len(logs) - 1
			}
			header.SetText(fmt.Sprintf("[gray]Build Log %d/%d: %s[white]", active+1, len(logs), logs[active].path))
			logView.Clear()
			w := tview.ANSIWriter(logView)
			_, _ = w.Write([]byte(logs[active].content))
			logView.ScrollToEnd()
		}
		footer.SetText("[gray]Press 'q' or Esc to quit | ← → (or h/l) to switch logs | ↑ ↓ to scroll[white]")
	}

	flex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc, tcell.KeyCtrlQ:
			app.Stop()
			return nil
		case tcell.KeyLeft:
			if len(logs) > 0 {
				active = (active - 1 + len(logs)) % len(logs)
				show()
			}
			return nil
		case tcell.KeyRight:
			if len(logs) > 0 {
				active = (active + 1) % len(logs)
				show()
			}
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q':
				app.Stop()
				return nil
			case 'h':
				if len(logs) > 0 {
					active = (active - 1 + len(logs)) % len(logs)
					show()
				}
				return nil
			case 'l':
				if len(logs) > 0 {
					active = (active + 1) % len(logs)
					show()
				}
				return nil
			}
		}
		return event
	})

	// Pick up new live logs while the viewer is open.
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			fresh := collectBuildLogs(cfg)
			app.QueueUpdateDraw(func() {
				logs = fresh
				show()
			})
		}
	}()

	app.SetRoot(flex, true).SetFocus(logView)
	show()

	if err := app.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "log viewer:", err)
		return 1
	}
	return 0
}

// collectBuildLogs gathers live logs under the output directories and
// archived .xz logs from the snapshot area, newest first.
func collectBuildLogs(cfg *Config) []buildLog {
	var paths []string
	for _, dir := range cfg.OutDirs {
		for _, pattern := range []string{
			filepath.Join(dir, "build.log"),
			filepath.Join(dir, "log", "build-log.txt"),
			filepath.Join(dir, "*", "log", "build-log.txt"),
		} {
			matches, _ := filepath.Glob(pattern)
			paths = append(paths, matches...)
		}
	}
	archived, _ := filepath.Glob(filepath.Join(cfg.SnapshotDir, "logs", "*.log.xz"))
	paths = append(paths, archived...)

	sort.Slice(paths, func(i, j int) bool {
		ai, err1 := os.Stat(paths[i])
		aj, err2 := os.Stat(paths[j])
		if err1 != nil || err2 != nil {
			return paths[i] > paths[j]
		}
		return ai.ModTime().After(aj.ModTime())
	})

	logs := make([]buildLog, 0, len(paths))
	for _, p := range paths {
		content, err := readLogFile(p)
		if err != nil {
			content = fmt.Sprintf("failed to read log: %v", err)
		}
		logs = append(logs, buildLog{path: p, content: content})
	}
	return logs
}

func readLogFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".xz") {
		xr, err := xz.NewReader(f)
		if err != nil {
			return "", err
		}
		r = xr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
