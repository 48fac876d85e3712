package nkb

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"golang.org/x/term"
)

// printHelp prints the commands table
func printHelp() {
	colSuccess.Println("Usage: nkb [command] [arguments]")
	colSuccess.Println("Without a command, nkb opens the interactive builder menu")
	fmt.Println()
	color.Info.Println("Available Commands:")

	type cmdInfo struct {
		Cmd  string
		Args string
		Desc string
	}
	cmds := []cmdInfo{
		{"menu", "", "Interactive builder menu (default)"},
		{"clean", "", "Delete output directories and run the clean targets"},
		{"env", "", "Print the host environment report"},
		{"snapshot", "", "Archive the kernel .config into the snapshot area"},
		{"restore", "[file]", "Restore a config snapshot (newest when omitted)"},
		{"log", "[file]", "TUI build log viewer, or page one log file"},
		{"upload", "[options] [name...]", "Upload snapshots to the mirror bucket"},
		{"version, --version", "", "Version information"},
	}

	maxLen := 0
	for _, c := range cmds {
		length := len(c.Cmd) + len(c.Args)
		if c.Args != "" {
			length++
		}
		if length > maxLen {
			maxLen = length
		}
	}
	columnWidth := maxLen + 4

	for _, c := range cmds {
		var usageString string
		if c.Args != "" {
			usageString = fmt.Sprintf("  %s %s", c.Cmd, c.Args)
		} else {
			usageString = fmt.Sprintf("  %s", c.Cmd)
		}

		fmt.Print("  ")
		color.Bold.Print(c.Cmd)
		if c.Args != "" {
			fmt.Print(" ")
			color.Cyan.Print(c.Args)
		}

		pad := columnWidth - len(usageString)
		if pad < 1 {
			pad = 1
		}
		fmt.Print(strings.Repeat(" ", pad))

		color.Info.Println(c.Desc)
	}

	fmt.Println()
}

// Main is the CLI entrypoint for cmd/nkb.
func Main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigs:
			colArrow.Print("\n-> ")
			color.Danger.Printf("Received %v. Cancelling process gracefully\n", sig)
			cancel()

			select {
			case <-sigs:
				colArrow.Print("\n-> ")
				color.Danger.Printf("Second interrupt received. Forcing immediate exit.")
				os.Exit(130)
			case <-time.After(2 * time.Second):
				colArrow.Print("\n-> ")
				color.Danger.Printf("Graceful shutdown timeout. Exiting.")
				os.Exit(0)
			}
		case <-ctx.Done():
		}
	}()

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.Disable()
	}

	configPath := ConfigFile
	if path := os.Getenv("NKB_CONF"); path != "" {
		configPath = path
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to read %s: %v\n", configPath, err)
	}

	Exec = &Executor{Context: ctx}

	command := "menu"
	if len(os.Args) >= 2 {
		command = os.Args[1]
	}

	var exitCode int

	switch command {
	case "menu":
		if err := NewMenu(cfg, Exec).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Menu failed: %v\n", err)
			exitCode = 1
		}

	case "clean":
		if err := handleCleanCommand(cfg, Exec); err != nil {
			fmt.Fprintf(os.Stderr, "Cleanup failed: %v\n", err)
			exitCode = 1
		}

	case "env":
		printEnvReport(cfg, Exec)

	case "snapshot":
		if err := handleSnapshotCommand(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Snapshot failed: %v\n", err)
			exitCode = 1
		}

	case "restore":
		if err := handleRestoreCommand(os.Args[2:], cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Restore failed: %v\n", err)
			exitCode = 1
		}

	case "log":
		exitCode = handleLogCommand(os.Args[2:], cfg)

	case "upload":
		if err := handleUploadCommand(ctx, os.Args[2:], cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
			exitCode = 1
		}

	case "version", "--version":
		fmt.Printf("nkb %s (%s, built %s)\n", version, arch, buildDate)

	default:
		printHelp()
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// printEnvReport prints the welcome-screen facts without the menu.
func printEnvReport(cfg *Config, r Runner) {
	env := collectEnv(r)
	colInfo.Println("Host environment:")
	fmt.Printf("OS: %s %s with %s %s\n",
		env.DistroName, env.DistroVersion, env.LibcVersion, libcStatus(cfg, env.LibcVersion))
	fmt.Printf("Linux Kernel: %s\n", env.KernelRelease)
	fmt.Println(formatDisk(env.DiskTotal, env.DiskFree))
}
