package nkb

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// bannerLines is the ASCII logo shown on every render.
var bannerLines = []string{
	" _   _                      _               ",
	"| \\ | | __ _ _ __ ___   ___| | ___  ___ __ __",
	"|  \\| |/ _` | '_ ` _ \\ / _ \\ |/ _ \\/ __/ __||",
	"| |\\  | (_| | | | | | |  __/ |  __/\\__ \\__ \\\\",
	"|_| \\_|\\__,_|_| |_| |_|\\___|_|\\___||___/___//",
}

// Menu drives the interactive kernel builder screen: render status,
// read one line, dispatch, repeat until exit.
type Menu struct {
	In   io.Reader
	Out  io.Writer
	Cfg  *Config
	Exec Runner

	// Env gathers the host snapshot for the welcome screen. Overridable
	// for tests; defaults to collectEnv.
	Env func(Runner) EnvSnapshot
}

// NewMenu wires a menu to the process stdio.
func NewMenu(cfg *Config, r Runner) *Menu {
	return &Menu{
		In:   os.Stdin,
		Out:  os.Stdout,
		Cfg:  cfg,
		Exec: r,
		Env:  collectEnv,
	}
}

// Run loops until the exit option is chosen or stdin is exhausted.
// Failures of the actions it dispatches are absorbed; the loop itself
// never terminates on bad input.
func (m *Menu) Run() error {
	scanner := bufio.NewScanner(m.In)

	if m.anyOutDirExists() {
		m.clear()
		fmt.Fprintln(m.Out, colTitle.Sprint("Out folder detected. Source is not clean ..."))
		m.pause()
	}

	for {
		m.clear()
		m.welcome()

		fmt.Fprint(m.Out, "Enter an option: ")
		if !scanner.Scan() {
			// stdin closed; nothing left to drive the menu
			fmt.Fprintln(m.Out)
			return scanner.Err()
		}
		// The raw line must match an option code exactly, no prefixes.
		choice := scanner.Text()

		switch choice {
		case "t":
			fmt.Fprintln(m.Out)
			fmt.Fprintln(m.Out, colWarn.Sprint("Toolchain setup is not implemented yet."))
			m.pause()
		case "b", "c":
			// Both codes run the full cleanup. Failures of the external
			// clean targets are swallowed, matching the loop contract.
			runCleanup(m.Cfg, m.Exec, m.Out, m.pause, m.clear)
		case "e":
			m.clear()
			fmt.Fprintf(m.Out, "%s Thank you for using Nameless Kernel Builder.\n", colDanger.Sprint("Exit!"))
			return nil
		default:
			fmt.Fprintln(m.Out, "\nSelected wrong Option!")
			m.pause()
		}
	}
}

// welcome renders the title, logo, environment snapshot and option list.
func (m *Menu) welcome() {
	env := m.Env(m.Exec)

	fmt.Fprintln(m.Out, colTitle.Sprint("******* Nameless Kernel Builder Menu *******"))
	for _, line := range bannerLines {
		fmt.Fprintln(m.Out, line)
	}

	fmt.Fprintf(m.Out, "\nOS: %s %s with %s %s\n",
		env.DistroName, env.DistroVersion, env.LibcVersion, libcStatus(m.Cfg, env.LibcVersion))
	fmt.Fprintf(m.Out, "Linux Kernel: %s\n", env.KernelRelease)
	fmt.Fprintln(m.Out, formatDisk(env.DiskTotal, env.DiskFree))

	fmt.Fprintln(m.Out, "\nSelect an option:\n*****************")
	fmt.Fprintln(m.Out, "t = Toolchain")
	fmt.Fprintln(m.Out, "b = Build")
	fmt.Fprintln(m.Out, "c = Clean all")
	fmt.Fprintf(m.Out, "e = %s\n*****************\n", colDanger.Sprint("EXIT"))
}

// anyOutDirExists reports whether any configured output directory is
// present, meaning the source tree is not clean.
func (m *Menu) anyOutDirExists() bool {
	for _, dir := range m.Cfg.OutDirs {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}

// clear wipes the display via the shell clear command, falling back to
// an ANSI erase sequence when that fails.
func (m *Menu) clear() {
	clearScreen(m.Exec, m.Out)
}

// pause blocks for the configured display pacing delay.
func (m *Menu) pause() {
	time.Sleep(m.Cfg.Pause)
}

func clearScreen(r Runner, out io.Writer) {
	cmd := exec.Command("clear")
	cmd.Stdout = out
	if err := r.Run(cmd); err != nil {
		fmt.Fprint(out, "\x1b[H\x1b[2J")
	}
}
