// aespack converts files to and from the aesfs block format without
// mounting a filesystem.
package main

import (
	_ "github.com/matteobertozzi/aesfs/internal/ensurefds012"

	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/matteobertozzi/aesfs/internal/codec"
	"github.com/matteobertozzi/aesfs/internal/contentenc"
	"github.com/matteobertozzi/aesfs/internal/cryptocore"
	"github.com/matteobertozzi/aesfs/internal/exitcodes"
	"github.com/matteobertozzi/aesfs/internal/pack"
	"github.com/matteobertozzi/aesfs/internal/readpassword"
	"github.com/matteobertozzi/aesfs/internal/tlog"
)

const myName = "aespack"

type packArgs struct {
	decrypt, aes, xor, plain, quiet bool
	jobs, rounds                    int
	passfile, extpass               []string
	saltfile, extsalt               []string
}

func newRootCmd() *cobra.Command {
	var a packArgs
	cmd := &cobra.Command{
		Use:   myName + " [-d] (-a|-x|-p) SRC DST [SRC DST ...]",
		Short: "Pack files into the aesfs block format, or unpack them with -d",
		Long: `aespack writes each SRC to DST in the block format aesfs stores files in,
so the result can be dropped into a storage directory. With -d it does the
reverse and writes the plain content of SRC to DST.

Examples:
  # Encrypt two files with the aes codec
  aespack -a notes.txt store/notes.txt photo.jpg store/photo.jpg

  # Decrypt, key and salt read from files
  aespack -d -a --passfile key.txt --saltfile salt.txt store/notes.txt notes.txt`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), &a, args)
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	f := cmd.Flags()
	f.BoolVarP(&a.decrypt, "decrypt", "d", false, "Unpack instead of pack")
	f.BoolVarP(&a.aes, "aes", "a", false, "AES codec")
	f.BoolVarP(&a.xor, "xor", "x", false, "XOR codec")
	f.BoolVarP(&a.plain, "plain", "p", false, "Plain codec")
	f.BoolVarP(&a.quiet, "quiet", "q", false, "Do not print one line per file")
	f.IntVarP(&a.jobs, "jobs", "j", 1, "Number of file pairs processed in parallel")
	f.IntVar(&a.rounds, "rounds", cryptocore.DefaultRounds, "SHA1 rounds of the key derivation (aes codec)")
	f.StringArrayVar(&a.passfile, "passfile", nil, "Read the key from file")
	f.StringArrayVar(&a.extpass, "extpass", nil, "Use external program for the key prompt")
	f.StringArrayVar(&a.saltfile, "saltfile", nil, "Read the salt from file (aes codec)")
	f.StringArrayVar(&a.extsalt, "extsalt", nil, "Use external program for the salt prompt (aes codec)")
	cmd.MarkFlagsMutuallyExclusive("aes", "xor", "plain")
	cmd.MarkFlagsOneRequired("aes", "xor", "plain")
	cmd.MarkFlagsMutuallyExclusive("passfile", "extpass")
	cmd.MarkFlagsMutuallyExclusive("saltfile", "extsalt")
	return cmd
}

func (a *packArgs) kind() codec.Kind {
	switch {
	case a.xor:
		return codec.KindXOR
	case a.plain:
		return codec.KindPlain
	}
	return codec.KindAES
}

// newCodec reads the secrets the selected codec needs and builds it.
// Call wipe() when done.
func newCodec(a *packArgs) (c codec.Codec, wipe func(), err error) {
	kind := a.kind()
	var secret codec.Secret
	wipe = func() {}
	switch kind {
	case codec.KindAES:
		pass, err := readpassword.Once(a.extpass, a.passfile, "Key")
		if err != nil {
			return nil, nil, exitcodes.Wrap(err, exitcodes.ReadPassword)
		}
		salt, err := readpassword.Salt(a.extsalt, a.saltfile)
		if err != nil {
			return nil, nil, exitcodes.Wrap(err, exitcodes.ReadPassword)
		}
		key, iv := cryptocore.LegacyKDF(pass, salt, a.rounds)
		secret.Cipher = cryptocore.New(key, iv)
		wipe = secret.Cipher.Wipe
		for _, b := range [][]byte{pass, salt, key, iv} {
			clear(b)
		}
	case codec.KindXOR:
		pass, err := readpassword.Once(a.extpass, a.passfile, "Key")
		if err != nil {
			return nil, nil, exitcodes.Wrap(err, exitcodes.ReadPassword)
		}
		secret.Passphrase = pass
		defer clear(pass)
	}
	c, err = codec.New(kind, secret)
	return c, wipe, err
}

func run(ctx context.Context, a *packArgs, args []string) error {
	pairs, err := pack.Pairs(args)
	if err != nil {
		return exitcodes.Wrap(err, exitcodes.Usage)
	}
	if a.rounds < 1 {
		return exitcodes.NewErr("--rounds must be at least 1", exitcodes.Usage)
	}
	if a.quiet {
		tlog.Info.Enabled = false
	}
	c, wipe, err := newCodec(a)
	if err != nil {
		return err
	}
	defer wipe()
	p := pack.New(contentenc.New(c))
	if err := p.Run(ctx, pairs, a.decrypt, a.jobs); err != nil {
		return exitcodes.Wrap(err, exitcodes.PackErrors)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := newRootCmd().ExecuteContext(ctx)
	if err == nil {
		return
	}
	tlog.Fatal.Println(err)
	var ec exitcodes.Err
	if !errors.As(err, &ec) {
		// Flag parsing errors from cobra
		fmt.Fprintf(os.Stderr, "Run '%s --help' for usage.\n", myName)
		os.Exit(exitcodes.Usage)
	}
	exitcodes.Exit(err)
}
