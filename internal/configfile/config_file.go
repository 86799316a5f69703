// Package configfile reads and writes aesfs.conf and turns the secret typed
// at mount time into the key and IV.
//
// The config file is optional. A storage root without one is mounted with
// the legacy defaults, so stores written by older tools keep working.
package configfile

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/matteobertozzi/aesfs/internal/codec"
	"github.com/matteobertozzi/aesfs/internal/cryptocore"
	"github.com/matteobertozzi/aesfs/internal/tlog"
)

const (
	// ConfDefaultName is the default configuration file name.
	// It has an odd length, so it can never be mistaken for an encrypted
	// name.
	ConfDefaultName = "aesfs.conf"
	// CurrentVersion is the config file format version
	CurrentVersion = 1
)

// LegacyKDFParams holds the parameters of cryptocore.LegacyKDF.
type LegacyKDFParams struct {
	// Rounds is the number of SHA1 iterations per digest
	Rounds int
}

// ConfFile is the content of a config file.
type ConfFile struct {
	// Creator is the aesfs version string.
	// This only documents the config file for humans who look at it. The actual
	// technical info is contained in FeatureFlags.
	Creator string
	// Version is the config file format version
	Version uint16
	// VolumeID identifies the store. Informational.
	VolumeID string
	// Codec is "aes", "xor" or "plain"
	Codec string
	// KDF stores the legacy key derivation parameters.
	// Set if the LegacyKDF feature flag is set.
	KDF *LegacyKDFParams `json:",omitempty"`
	// ScryptObject stores parameters for scrypt hashing (key derivation).
	// Set if the ScryptKDF feature flag is set.
	ScryptObject *ScryptKDF `json:",omitempty"`
	// FeatureFlags is a list of feature flags this filesystem has enabled.
	// If aesfs encounters a feature flag it does not support, it will refuse
	// mounting.
	FeatureFlags []string
	// Filename is the name of the config file. Not exported to JSON.
	filename string
}

// CreateArgs exists because the argument list to Create got too long.
type CreateArgs struct {
	Filename string
	Creator  string
	Codec    codec.Kind
	// Scrypt selects scrypt+HKDF instead of the legacy KDF
	Scrypt bool
	// LogN is the scrypt cost. Zero means ScryptDefaultLogN.
	LogN int
	// Rounds for the legacy KDF. Zero means cryptocore.DefaultRounds.
	Rounds         int
	PlaintextNames bool
}

// Create writes a new config file to args.Filename.
func Create(args *CreateArgs) error {
	cf := ConfFile{
		filename: args.Filename,
		Creator:  args.Creator,
		Version:  CurrentVersion,
		VolumeID: uuid.NewString(),
		Codec:    args.Codec.String(),
	}
	if args.Scrypt {
		s := NewScryptKDF(args.LogN)
		cf.ScryptObject = &s
		cf.setFeatureFlag(FlagScryptKDF)
	} else {
		rounds := args.Rounds
		if rounds <= 0 {
			rounds = cryptocore.DefaultRounds
		}
		cf.KDF = &LegacyKDFParams{Rounds: rounds}
		cf.setFeatureFlag(FlagLegacyKDF)
	}
	if args.PlaintextNames {
		cf.setFeatureFlag(FlagPlaintextNames)
	} else {
		cf.setFeatureFlag(FlagHexNames)
	}
	if err := cf.Validate(); err != nil {
		return err
	}
	return cf.WriteFile()
}

// Default returns the settings used when a storage root has no config file:
// AES, the legacy KDF with "rounds" rounds and hex names.
func Default(rounds int) *ConfFile {
	if rounds <= 0 {
		rounds = cryptocore.DefaultRounds
	}
	return &ConfFile{
		Version:      CurrentVersion,
		Codec:        codec.KindAES.String(),
		KDF:          &LegacyKDFParams{Rounds: rounds},
		FeatureFlags: []string{knownFlags[FlagLegacyKDF], knownFlags[FlagHexNames]},
	}
}

// Load reads and validates the config file "filename".
func Load(filename string) (*ConfFile, error) {
	var cf ConfFile
	cf.filename = filename

	js, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if len(js) == 0 {
		return nil, fmt.Errorf("Config file is empty")
	}
	err = json.Unmarshal(js, &cf)
	if err != nil {
		tlog.Warn.Printf("Failed to unmarshal config file")
		return nil, err
	}
	if err := cf.Validate(); err != nil {
		return nil, err
	}
	return &cf, nil
}

// Filename returns the path the config was loaded from or will be written
// to. Empty for Default().
func (cf *ConfFile) Filename() string {
	return cf.filename
}

// CodecKind returns the parsed Codec field.
func (cf *ConfFile) CodecKind() (codec.Kind, error) {
	return codec.ParseKind(cf.Codec)
}

// DeriveKeyIV turns the key and salt typed by the user into the 32-byte
// AES key and the IV.
func (cf *ConfFile) DeriveKeyIV(pass []byte, salt []byte) (key []byte, iv []byte) {
	if cf.IsFeatureFlagSet(FlagScryptKDF) {
		secret := cf.ScryptObject.DeriveKey(pass, salt)
		defer func() {
			for i := range secret {
				secret[i] = 0
			}
		}()
		return cryptocore.HKDFKeyIV(secret, cryptocore.HKDFInfoKeyIV)
	}
	return cryptocore.LegacyKDF(pass, salt, cf.KDF.Rounds)
}

// WriteFile - write out config in JSON format to file "filename.tmp"
// then rename over "filename".
// This way a rewrite atomically replaces the file.
func (cf *ConfFile) WriteFile() error {
	tmp := cf.filename + ".tmp"
	// 0400 permissions: aesfs.conf should never be written to.
	fd, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0400)
	if err != nil {
		return err
	}
	js, err := json.MarshalIndent(cf, "", "\t")
	if err != nil {
		fd.Close()
		return err
	}
	// For convenience for the user, add a newline at the end.
	js = append(js, '\n')
	_, err = fd.Write(js)
	if err != nil {
		fd.Close()
		return err
	}
	err = fd.Sync()
	if err != nil {
		fd.Close()
		return err
	}
	err = fd.Close()
	if err != nil {
		return err
	}
	return os.Rename(tmp, cf.filename)
}
