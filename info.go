package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/matteobertozzi/aesfs/internal/configfile"
	"github.com/matteobertozzi/aesfs/internal/exitcodes"
)

// info pretty-prints the contents of the config file at "filename" for human
// consumption, stripping out sensitive data.
// This is called when you pass the "-info" option.
func info(filename string) {
	cf, err := configfile.Load(filename)
	if err != nil {
		fmt.Printf("Loading config file failed: %v\n", err)
		os.Exit(exitcodes.LoadConf)
	}
	// Pretty-print
	fmt.Printf("Creator:      %s\n", cf.Creator)
	fmt.Printf("VolumeID:     %s\n", cf.VolumeID)
	fmt.Printf("Codec:        %s\n", cf.Codec)
	fmt.Printf("FeatureFlags: %s\n", strings.Join(cf.FeatureFlags, " "))
	if s := cf.ScryptObject; s != nil {
		fmt.Printf("ScryptObject: Salt=%dB N=%d R=%d P=%d KeyLen=%d\n",
			len(s.Salt), s.N, s.R, s.P, s.KeyLen)
	}
	if cf.KDF != nil {
		fmt.Printf("KDF:          Rounds=%d\n", cf.KDF.Rounds)
	}
}
