package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/matteobertozzi/aesfs/internal/codec"
	"github.com/matteobertozzi/aesfs/internal/configfile"
	"github.com/matteobertozzi/aesfs/internal/contentenc"
	"github.com/matteobertozzi/aesfs/internal/cryptocore"
	"github.com/matteobertozzi/aesfs/internal/exitcodes"
	"github.com/matteobertozzi/aesfs/internal/nametransform"
	"github.com/matteobertozzi/aesfs/internal/readpassword"
	"github.com/matteobertozzi/aesfs/internal/tlog"
)

// loadConfig reads STORAGEDIR/aesfs.conf. A storage directory without a
// config file gets the legacy defaults.
// Calls os.Exit on failure.
func loadConfig(args *argContainer) *configfile.ConfFile {
	fn := filepath.Join(args.cipherdir, configfile.ConfDefaultName)
	cf, err := configfile.Load(fn)
	if errors.Is(err, os.ErrNotExist) {
		tlog.Debug.Printf("No %s, using legacy defaults with %d rounds", configfile.ConfDefaultName, args.rounds)
		return configfile.Default(args.rounds)
	}
	if err != nil {
		tlog.Fatal.Printf("Loading config file %q failed: %v", fn, err)
		os.Exit(exitcodes.LoadConf)
	}
	return cf
}

// cryptoStack bundles the objects built from the key and salt. Call wipe()
// once the filesystem is no longer served.
type cryptoStack struct {
	conf          *configfile.ConfFile
	cipher        *cryptocore.CipherContext
	contentEnc    *contentenc.ContentEnc
	nameTransform *nametransform.NameTransform
}

func (cs *cryptoStack) wipe() {
	cs.cipher.Wipe()
}

// initCrypto loads the config, asks for the key and the salt and builds the
// codec, the block engine and the name transform.
// Calls os.Exit on failure.
func initCrypto(args *argContainer) *cryptoStack {
	cf := loadConfig(args)
	kind, err := cf.CodecKind()
	if err != nil {
		tlog.Fatal.Println(err)
		os.Exit(exitcodes.LoadConf)
	}
	pass, err := readpassword.Once(args.extpass, args.passfile, "Key")
	if errors.Is(err, readpassword.ErrEmpty) {
		tlog.Fatal.Println(err)
		os.Exit(exitcodes.PasswordEmpty)
	} else if err != nil {
		tlog.Fatal.Println(err)
		os.Exit(exitcodes.ReadPassword)
	}
	salt, err := readpassword.Salt(args.extsalt, args.saltfile)
	if err != nil {
		tlog.Fatal.Println(err)
		os.Exit(exitcodes.ReadPassword)
	}
	tlog.Info.Println("Deriving key")
	key, iv := cf.DeriveKeyIV(pass, salt)
	cc := cryptocore.New(key, iv)
	c, err := codec.New(kind, codec.Secret{Cipher: cc, Passphrase: pass})
	// The cipher context has its own copy, the key buffers can go.
	for _, b := range [][]byte{pass, salt, key, iv} {
		for i := range b {
			b[i] = 0
		}
	}
	if err != nil {
		tlog.Fatal.Println(err)
		os.Exit(exitcodes.Init)
	}
	cEnc := contentenc.New(c)
	tlog.Debug.Printf("codec %s, %d payload bytes per block", c.Name(), cEnc.Capacity())
	return &cryptoStack{
		conf:          cf,
		cipher:        cc,
		contentEnc:    cEnc,
		nameTransform: nametransform.New(cc, cf.IsFeatureFlagSet(configfile.FlagPlaintextNames)),
	}
}
