package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/matteobertozzi/aesfs/internal/codec"
	"github.com/matteobertozzi/aesfs/internal/configfile"
	"github.com/matteobertozzi/aesfs/internal/exitcodes"
	"github.com/matteobertozzi/aesfs/internal/tlog"
)

// initDir writes aesfs.conf into an empty directory so it can be used as
// an aesfs storage root.
// The key is not needed here: it is only ever combined with the salt at
// mount time.
func initDir(args *argContainer) {
	err := isEmptyDir(args.cipherdir)
	if err != nil {
		tlog.Fatal.Printf("Invalid storage directory: %v", err)
		os.Exit(exitcodes.StorageDir)
	}
	kind, err := codec.ParseKind(args.codec)
	if err != nil {
		tlog.Fatal.Println(err)
		os.Exit(exitcodes.Usage)
	}
	if kind != codec.KindAES {
		tlog.Info.Printf(tlog.ColorYellow+"The %s codec does not encrypt file contents."+tlog.ColorReset, kind)
	}
	creator := tlog.ProgramName + " " + GitVersion
	err = configfile.Create(&configfile.CreateArgs{
		Filename:       filepath.Join(args.cipherdir, configfile.ConfDefaultName),
		Creator:        creator,
		Codec:          kind,
		Scrypt:         args.kdf == kdfScrypt,
		LogN:           args.scryptn,
		Rounds:         args.rounds,
		PlaintextNames: args.plaintextnames,
	})
	if err != nil {
		tlog.Fatal.Println(err)
		os.Exit(exitcodes.WriteConf)
	}
	tlog.Info.Printf(tlog.ColorGreen + "The filesystem has been created successfully." + tlog.ColorReset)
	wd, _ := os.Getwd()
	friendlyPath, _ := filepath.Rel(wd, args.cipherdir)
	if strings.HasPrefix(friendlyPath, "../") {
		// A relative path that starts with "../" is pretty unfriendly, just
		// keep the absolute path.
		friendlyPath = args.cipherdir
	}
	tlog.Info.Printf(tlog.ColorGrey+"You can now mount it using: %s %s MOUNTPOINT"+tlog.ColorReset,
		tlog.ProgramName, friendlyPath)
}
