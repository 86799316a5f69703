package main

import (
	"fmt"

	"github.com/matteobertozzi/aesfs/internal/tlog"
)

const tUsage = "" +
	"Usage: " + tlog.ProgramName + " -init|-info|-fsck [OPTIONS] STORAGEDIR\n" +
	"  or   " + tlog.ProgramName + " [OPTIONS] STORAGEDIR MOUNTPOINT\n"

// helpShort is what gets displayed when passed "-h" or on syntax error.
func helpShort() {
	printVersion()
	fmt.Printf("\n")
	fmt.Printf(tUsage)
	fmt.Printf(`
Common Options (use -hh to show all):
  -allow_other       Allow other users to access the mount
  -codec             Block codec aes, xor or plain (with -init)
  -extpass           Call external program to prompt for the key
  -extsalt           Call external program to prompt for the salt
  -fg                Stay in the foreground
  -fsck              Check filesystem integrity
  -fusedebug         Debug FUSE calls
  -h, -help          This short help text
  -hh                Long help text with all options
  -init              Initialize encrypted directory
  -info              Display information about encrypted directory
  -kdf               Key derivation legacy or scrypt (with -init)
  -nonempty          Allow mounting over non-empty directory
  -nosyslog          Do not redirect log messages to syslog
  -passfile          Read key from plain text file(s)
  -plaintextnames    Do not encrypt file names (with -init)
  -q, -quiet         Silence informational messages
  -ro                Mount read-only
  -saltfile          Read salt from plain text file(s)
  -version           Print version information
  --                 Stop option parsing
`)
}

// helpLong gets only displayed on "-hh"
func helpLong() {
	printVersion()
	fmt.Printf("\n")
	fmt.Printf(tUsage)
	fmt.Printf(`
Notes: All options can equivalently use "-" (single dash) or "--" (double dash).
       A standalone "--" stops option parsing.
       Without aesfs.conf, STORAGEDIR is mounted with the aes codec, the
       legacy key derivation and encrypted names.
`)
	fmt.Printf("\nOptions:\n")
	var args argContainer
	newParser(&args).ShowHelp()
}
