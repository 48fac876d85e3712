package nkb

import (
	"runtime"

	"github.com/gookit/color"
)

// Global variables
var (
	Debug      bool
	ConfigFile = "/etc/nkb.conf"
	version    = "dev" // overridden at build time
	arch       = runtime.GOARCH
	buildDate  = "unknown" // overridden at build time

	// Global executor (declared, assigned in Main)
	Exec *Executor
)

// color helpers
var (
	colInfo    = color.Info // style provided by gookit/color
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
	colNote    = color.Tag("notice")
	colTitle   = color.New(color.OpBold, color.FgYellow)
	colDanger  = color.New(color.OpBold, color.FgRed)
	colOK      = color.New(color.FgGreen)
)
