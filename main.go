package main

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/matteobertozzi/aesfs/internal/configfile"
	"github.com/matteobertozzi/aesfs/internal/exitcodes"
	"github.com/matteobertozzi/aesfs/internal/speed"
	"github.com/matteobertozzi/aesfs/internal/tlog"
)

func main() {
	mxp := runtime.GOMAXPROCS(0)
	if mxp < 4 && os.Getenv("GOMAXPROCS") == "" {
		// On a 2-core machine, setting maxprocs to 4 gives 10% better performance.
		// But don't override an explicitly set GOMAXPROCS env variable.
		runtime.GOMAXPROCS(4)
	}
	// Parse all command-line options (i.e. arguments starting with "-")
	// into "args". Path arguments are parsed below.
	args := mustParseCliOpts()
	if args.debug {
		tlog.Debug.Enabled = true
	}
	// "-v"
	if args.version {
		printVersion()
		os.Exit(0)
	}
	// "-hh"
	if args.hh {
		helpLong()
		os.Exit(0)
	}
	// "-h"
	if args.help {
		helpShort()
		os.Exit(0)
	}
	// "-speed"
	if args.speed {
		speed.Run()
		os.Exit(0)
	}
	// Fork a child into the background if "-fg" is not set AND we are mounting
	// a filesystem. The child will do all the work.
	if !args.fg && countOpFlags(&args) == 0 && args.mountpoint != "" {
		ret := forkChild()
		os.Exit(ret)
	}
	if args.wpanic {
		tlog.Warn.Wpanic = true
		tlog.Debug.Printf("Panicking on warnings")
	}
	// Every operation below requires STORAGEDIR. Exit if we don't have it.
	if args.cipherdir == "" {
		tlog.Fatal.Printf("Missing argument STORAGEDIR, see -h")
		os.Exit(exitcodes.Usage)
	}
	var err error
	args.cipherdir, err = filepath.Abs(args.cipherdir)
	if err == nil {
		err = isDir(args.cipherdir)
	}
	if err != nil {
		tlog.Fatal.Printf("Invalid storage directory: %v", err)
		os.Exit(exitcodes.StorageDir)
	}
	// "-q"
	if args.quiet {
		tlog.Info.Enabled = false
	}
	// Operation flags
	nOps := countOpFlags(&args)
	if nOps == 1 && args.mountpoint != "" {
		tlog.Fatal.Printf("Usage: %s -init|-info|-fsck [OPTIONS] STORAGEDIR", tlog.ProgramName)
		os.Exit(exitcodes.Usage)
	}
	// "-info"
	if args.info {
		info(filepath.Join(args.cipherdir, configfile.ConfDefaultName))
		os.Exit(0)
	}
	// "-init"
	if args.init {
		initDir(&args)
		os.Exit(0)
	}
	// "-fsck"
	if args.fsck {
		code := fsck(&args)
		os.Exit(code)
	}
	// Default operation: mount.
	if args.mountpoint == "" {
		tlog.Info.Printf("Wrong number of arguments (have %s)", prettyArgs())
		tlog.Fatal.Printf("Usage: %s [OPTIONS] STORAGEDIR MOUNTPOINT [-o COMMA-SEPARATED-OPTIONS]", tlog.ProgramName)
		os.Exit(exitcodes.Usage)
	}
	doMount(&args)
	// Don't call os.Exit to give deferred functions a chance to run
}
