package natmod

import (
	"errors"
	"runtime"

	"github.com/gookit/color"
)

var (
	version   = "dev"     // overridden at build time
	buildDate = "unknown" // overridden at build time
	arch      = runtime.GOARCH

	ConfigFile = "natmod.conf"
	EnvFile    = ".env"
	LockName   = ".natmod.lock"
	LogName    = "natmod-build.log.xz"
)

var (
	ErrSourceMissing    = errors.New("source file not found")
	ErrBuildDirMissing  = errors.New("build directory does not exist")
	ErrMakefileMissing  = errors.New("makefile not found")
	ErrBuildToolMissing = errors.New("build tool not found")
	ErrAmbiguousModel   = errors.New("multiple model file candidates found")
	ErrTimeout          = errors.New("operation timed out")
	ErrLocked           = errors.New("another natmod run holds the workspace lock")
	ErrProtectedPath    = errors.New("refusing to delete protected path")
	ErrNoPublisher      = errors.New("publishing is not configured")
)

// color helpers
var (
	colInfo    = color.Info // style provided by gookit/color
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
	colNote    = color.Tag("notice")
	colBlock   = color.Cyan
	colRelay   = color.White
)
