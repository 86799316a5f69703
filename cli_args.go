package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/integrii/flaggy"

	"github.com/matteobertozzi/aesfs/internal/codec"
	"github.com/matteobertozzi/aesfs/internal/configfile"
	"github.com/matteobertozzi/aesfs/internal/cryptocore"
	"github.com/matteobertozzi/aesfs/internal/exitcodes"
	"github.com/matteobertozzi/aesfs/internal/tlog"
)

// argContainer stores the parsed CLI options and arguments
type argContainer struct {
	debug, init, info, fsck, fusedebug, fg, version, quiet, nosyslog, wpanic,
	allow_other, ro, nonempty, plaintextnames, help, hh, speed bool
	codec, kdf, fsname, cipherdir, mountpoint string
	// -extpass, -passfile, -extsalt and -saltfile can be passed multiple times
	extpass, passfile, extsalt, saltfile []string
	notifypid, scryptn, rounds          int
}

const (
	kdfLegacy = "legacy"
	kdfScrypt = "scrypt"
)

// prefixOArgs transform options passed via "-o foo,bar" into regular options
// like "-foo -bar" and prefixes them to the command line.
// Testcases in TestPrefixOArgs().
func prefixOArgs(osArgs []string) ([]string, error) {
	// Need at least 3, example: aesfs -o    foo,bar
	//                           ^ 0   ^ 1   ^ 2
	if len(osArgs) < 3 {
		return osArgs, nil
	}
	// Passing "--" disables "-o" parsing. Ignore element 0 (program name).
	for _, v := range osArgs[1:] {
		if v == "--" {
			return osArgs, nil
		}
	}
	// Find and extract "-o foo,bar"
	var otherArgs, oOpts []string
	for i := 1; i < len(osArgs); i++ {
		if osArgs[i] == "-o" {
			// Last argument?
			if i+1 >= len(osArgs) {
				return nil, fmt.Errorf("The \"-o\" option requires an argument")
			}
			oOpts = strings.Split(osArgs[i+1], ",")
			// Skip over the arguments to "-o"
			i++
		} else if strings.HasPrefix(osArgs[i], "-o=") {
			oOpts = strings.Split(osArgs[i][3:], ",")
		} else {
			otherArgs = append(otherArgs, osArgs[i])
		}
	}
	// Start with program name
	newArgs := []string{osArgs[0]}
	// Add options from "-o"
	for _, o := range oOpts {
		if o == "" {
			continue
		}
		if o == "o" || o == "-o" {
			return nil, fmt.Errorf("You can't pass \"-o\" to \"-o\"")
		}
		newArgs = append(newArgs, "-"+o)
	}
	// Add other arguments
	newArgs = append(newArgs, otherArgs...)
	return newArgs, nil
}

// newParser registers all command line options and binds them to "args".
func newParser(args *argContainer) *flaggy.Parser {
	p := flaggy.NewParser(tlog.ProgramName)
	p.ShowVersionWithVersionFlag = false
	p.ShowHelpWithHFlag = false

	p.AddPositionalValue(&args.cipherdir, "STORAGEDIR", 1, false, "encrypted storage directory")
	p.AddPositionalValue(&args.mountpoint, "MOUNTPOINT", 2, false, "mountpoint")

	p.Bool(&args.debug, "d", "debug", "Enable debug output")
	p.Bool(&args.fusedebug, "fusedebug", "", "Enable fuse library debug output")
	p.Bool(&args.init, "init", "", "Initialize encrypted directory")
	p.Bool(&args.info, "info", "", "Display information about STORAGEDIR")
	p.Bool(&args.fsck, "fsck", "", "Run a filesystem check on STORAGEDIR")
	p.Bool(&args.fg, "f", "fg", "Stay in the foreground")
	p.Bool(&args.version, "version", "", "Print version and exit")
	p.Bool(&args.plaintextnames, "plaintextnames", "", "Do not encrypt file names (with -init)")
	p.Bool(&args.quiet, "q", "quiet", "Quiet - silence informational messages")
	p.Bool(&args.nosyslog, "nosyslog", "", "Do not redirect output to syslog when running in the background")
	p.Bool(&args.wpanic, "wpanic", "", "When encountering a warning, panic and exit immediately")
	p.Bool(&args.allow_other, "allow_other", "", "Allow other users to access the filesystem. "+
		"Only works if user_allow_other is set in /etc/fuse.conf.")
	p.Bool(&args.ro, "ro", "", "Mount the filesystem read-only")
	p.Bool(&args.nonempty, "nonempty", "", "Allow mounting over non-empty directories")
	p.Bool(&args.help, "h", "help", "Show the short help text")
	p.Bool(&args.hh, "hh", "", "Show this long help text")
	p.Bool(&args.speed, "speed", "", "Run codec speed test")

	args.codec = codec.KindAES.String()
	p.String(&args.codec, "codec", "", "Block codec: aes, xor or plain (with -init)")
	args.kdf = kdfLegacy
	p.String(&args.kdf, "kdf", "", "Key derivation: legacy or scrypt (with -init)")
	p.String(&args.fsname, "fsname", "", "Override the filesystem name")

	p.StringSlice(&args.extpass, "extpass", "", "Use external program for the key prompt")
	p.StringSlice(&args.passfile, "passfile", "", "Read key from file")
	p.StringSlice(&args.extsalt, "extsalt", "", "Use external program for the salt prompt")
	p.StringSlice(&args.saltfile, "saltfile", "", "Read salt from file")

	p.Int(&args.notifypid, "notifypid", "", "Send USR1 to the specified process after "+
		"successful mount - used internally for daemonization")
	args.scryptn = configfile.ScryptDefaultLogN
	p.Int(&args.scryptn, "scryptn", "", "scrypt cost parameter logN (with -init -kdf scrypt)")
	args.rounds = cryptocore.DefaultRounds
	p.Int(&args.rounds, "rounds", "", "SHA1 rounds of the legacy key derivation")

	var nofail bool
	p.Bool(&nofail, "nofail", "", "Ignored for /etc/fstab compatibility")

	var dummyString string
	p.String(&dummyString, "o", "", "For compatibility with mount(1), options can be also passed as a comma-separated list to -o on the end.")
	return p
}

// parseCliOpts - parse command line options (i.e. arguments that start with "-")
func parseCliOpts(osArgs []string) (args argContainer, err error) {
	osArgs, err = prefixOArgs(osArgs)
	if err != nil {
		return args, err
	}
	p := newParser(&args)
	if err = p.ParseArgs(osArgs[1:]); err != nil {
		return args, err
	}
	return args, nil
}

// validateArgs rejects option combinations that make no sense.
func validateArgs(args *argContainer) error {
	if countOpFlags(args) > 1 {
		return fmt.Errorf("At most one of -init, -info and -fsck may be passed")
	}
	kind, err := codec.ParseKind(args.codec)
	if err != nil {
		return err
	}
	if args.kdf != kdfLegacy && args.kdf != kdfScrypt {
		return fmt.Errorf("Invalid -kdf %q, must be %q or %q", args.kdf, kdfLegacy, kdfScrypt)
	}
	if !args.init {
		if args.codec != codec.KindAES.String() || args.kdf != kdfLegacy || args.plaintextnames {
			return fmt.Errorf("-codec, -kdf and -plaintextnames are only valid together with -init")
		}
	}
	if args.plaintextnames && kind == codec.KindAES {
		return fmt.Errorf("-plaintextnames requires -codec xor or -codec plain")
	}
	if args.rounds < 1 {
		return fmt.Errorf("-rounds must be at least 1")
	}
	if len(args.extpass) > 0 && len(args.passfile) > 0 {
		return fmt.Errorf("The options -extpass and -passfile cannot be used at the same time")
	}
	if len(args.extsalt) > 0 && len(args.saltfile) > 0 {
		return fmt.Errorf("The options -extsalt and -saltfile cannot be used at the same time")
	}
	return nil
}

// mustParseCliOpts parses os.Args and exits on error.
func mustParseCliOpts() argContainer {
	args, err := parseCliOpts(os.Args)
	if err != nil {
		tlog.Fatal.Printf("Invalid command line: %s: %v. Try '%s -help'.", prettyArgs(), err, tlog.ProgramName)
		os.Exit(exitcodes.Usage)
	}
	if err = validateArgs(&args); err != nil {
		tlog.Fatal.Println(err)
		os.Exit(exitcodes.Usage)
	}
	return args
}

// prettyArgs pretty-prints the command-line arguments.
func prettyArgs() string {
	pa := fmt.Sprintf("%v", os.Args)
	// Get rid of "[" and "]"
	pa = pa[1 : len(pa)-1]
	return pa
}

// countOpFlags counts the number of operation flags we were passed.
func countOpFlags(args *argContainer) int {
	var count int
	if args.info {
		count++
	}
	if args.init {
		count++
	}
	if args.fsck {
		count++
	}
	return count
}
