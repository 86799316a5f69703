package configfile

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/matteobertozzi/aesfs/internal/codec"
)

// maxLegacyRounds guards against a config file that makes every mount hang.
const maxLegacyRounds = 1 << 20

// Validate that the combination of settings makes sense and is supported
func (cf *ConfFile) Validate() error {
	if cf.Version != CurrentVersion {
		return fmt.Errorf("Unsupported config format %d", cf.Version)
	}
	// All feature flags that are in the config file are known?
	for _, flag := range cf.FeatureFlags {
		if !isFeatureFlagKnown(flag) {
			return fmt.Errorf("Unknown feature flag %q", flag)
		}
	}
	kind, err := cf.CodecKind()
	if err != nil {
		return err
	}
	if cf.VolumeID != "" {
		if _, err := uuid.Parse(cf.VolumeID); err != nil {
			return fmt.Errorf("Invalid VolumeID %q: %v", cf.VolumeID, err)
		}
	}
	// Key derivation
	{
		legacy := cf.IsFeatureFlagSet(FlagLegacyKDF)
		scrypt := cf.IsFeatureFlagSet(FlagScryptKDF)
		if legacy == scrypt {
			return fmt.Errorf("Exactly one of the LegacyKDF and ScryptKDF feature flags must be set")
		}
		if legacy {
			if cf.KDF == nil {
				return fmt.Errorf("LegacyKDF feature flag set but KDF is missing")
			}
			if cf.KDF.Rounds < 1 || cf.KDF.Rounds > maxLegacyRounds {
				return fmt.Errorf("KDF rounds %d out of range", cf.KDF.Rounds)
			}
			if cf.ScryptObject != nil {
				return fmt.Errorf("LegacyKDF conflicts with ScryptObject")
			}
		}
		if scrypt {
			if cf.ScryptObject == nil {
				return fmt.Errorf("ScryptKDF feature flag set but ScryptObject is missing")
			}
			// scrypt params ok?
			if err := cf.ScryptObject.validateParams(); err != nil {
				return err
			}
			if cf.KDF != nil {
				return fmt.Errorf("ScryptKDF conflicts with KDF")
			}
		}
	}
	// Filename encryption
	{
		hex := cf.IsFeatureFlagSet(FlagHexNames)
		plain := cf.IsFeatureFlagSet(FlagPlaintextNames)
		if hex == plain {
			return fmt.Errorf("Exactly one of the HexNames and PlaintextNames feature flags must be set")
		}
		if plain && kind == codec.KindAES {
			return fmt.Errorf("PlaintextNames conflicts with the aes codec")
		}
	}
	return nil
}
