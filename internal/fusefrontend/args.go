package fusefrontend

// Args is a container for arguments that are passed from main() to fusefrontend
type Args struct {
	// Cipherdir is the backing storage directory (absolute path).
	Cipherdir string
	// PlaintextNames disables name encryption. The config file in the root
	// directory is then hidden and protected explicitly.
	PlaintextNames bool
	// Should we chown a file after it has been created?
	// This only makes sense if (1) allow_other is set and (2) we run as root.
	PreserveOwner bool
	// ReadOnly mounts reject every modifying operation with EROFS before
	// they reach the storage root.
	ReadOnly bool
}
