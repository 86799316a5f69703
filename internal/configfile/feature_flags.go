package configfile

type flagIota int

const (
	// FlagLegacyKDF selects the iterated SHA1 key derivation.
	FlagLegacyKDF flagIota = iota
	// FlagScryptKDF selects scrypt followed by HKDF.
	FlagScryptKDF
	// FlagHexNames indicates AES-CBC encrypted, hex encoded file names.
	FlagHexNames
	// FlagPlaintextNames indicates that filenames are unencrypted.
	FlagPlaintextNames
)

// knownFlags stores the known feature flags and their string representation
var knownFlags = map[flagIota]string{
	FlagLegacyKDF:      "LegacyKDF",
	FlagScryptKDF:      "ScryptKDF",
	FlagHexNames:       "HexNames",
	FlagPlaintextNames: "PlaintextNames",
}

// isFeatureFlagKnown verifies that we understand a feature flag.
func isFeatureFlagKnown(flag string) bool {
	for _, knownFlag := range knownFlags {
		if knownFlag == flag {
			return true
		}
	}
	return false
}

// IsFeatureFlagSet returns true if the feature flag "flagWant" is enabled.
func (cf *ConfFile) IsFeatureFlagSet(flagWant flagIota) bool {
	flagString := knownFlags[flagWant]
	for _, flag := range cf.FeatureFlags {
		if flag == flagString {
			return true
		}
	}
	return false
}

func (cf *ConfFile) setFeatureFlag(f flagIota) {
	if cf.IsFeatureFlagSet(f) {
		return
	}
	cf.FeatureFlags = append(cf.FeatureFlags, knownFlags[f])
}
