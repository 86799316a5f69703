// aesfs-xray shows the file header and the block layout of a backing file,
// and translates names between their plain and stored form.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/integrii/flaggy"

	"github.com/matteobertozzi/aesfs/internal/codec"
	"github.com/matteobertozzi/aesfs/internal/configfile"
	"github.com/matteobertozzi/aesfs/internal/contentenc"
	"github.com/matteobertozzi/aesfs/internal/cryptocore"
	"github.com/matteobertozzi/aesfs/internal/exitcodes"
	"github.com/matteobertozzi/aesfs/internal/nametransform"
	"github.com/matteobertozzi/aesfs/internal/readpassword"
	"github.com/matteobertozzi/aesfs/internal/tlog"
)

const myName = "aesfs-xray"

type xrayArgs struct {
	codec, config, file        string
	rounds                     int
	decryptNames, encryptNames bool
	passfile, saltfile         []string
}

func errExit(err error) {
	fmt.Println(err)
	exitcodes.Exit(err)
}

func main() {
	var args xrayArgs
	p := flaggy.NewParser(myName)
	p.Description = "Inspect aesfs backing files"
	p.ShowVersionWithVersionFlag = false
	p.AddPositionalValue(&args.file, "FILE", 1, false, "backing file to inspect")
	args.codec = codec.KindAES.String()
	p.String(&args.codec, "codec", "", "Codec the file was written with: aes, xor or plain")
	p.String(&args.config, "config", "", "Take codec and key derivation from this aesfs.conf")
	args.rounds = cryptocore.DefaultRounds
	p.Int(&args.rounds, "rounds", "", "SHA1 rounds of the legacy key derivation")
	p.Bool(&args.decryptNames, "decryptnames", "", "Decrypt the stored names read from stdin, one per line")
	p.Bool(&args.encryptNames, "encryptnames", "", "Encrypt the plain names read from stdin, one per line")
	p.StringSlice(&args.passfile, "passfile", "", "Read key from file")
	p.StringSlice(&args.saltfile, "saltfile", "", "Read salt from file")
	if err := p.Parse(); err != nil {
		errExit(exitcodes.Wrap(err, exitcodes.Usage))
	}
	if args.file == "" && !args.decryptNames && !args.encryptNames {
		p.ShowHelp()
		fmt.Fprintf(os.Stderr, "\nExamples:\n"+
			"  %s -codec xor store/0a1b2c...\n"+
			"  ls store | %s -decryptnames -config store/aesfs.conf\n", myName, myName)
		os.Exit(exitcodes.Usage)
	}
	tlog.Info.Enabled = false

	secret, kind, plainNames, err := loadKey(&args)
	if err != nil {
		errExit(err)
	}
	if secret.Cipher != nil {
		defer secret.Cipher.Wipe()
	}
	if args.decryptNames || args.encryptNames {
		nt := nametransform.New(secret.Cipher, plainNames)
		if err := transformNames(os.Stdout, os.Stdin, nt, args.encryptNames); err != nil {
			errExit(exitcodes.Wrap(err, exitcodes.Other))
		}
		return
	}
	c, err := codec.New(kind, secret)
	clear(secret.Passphrase)
	if err != nil {
		errExit(err)
	}
	fd, err := os.Open(args.file)
	if err != nil {
		errExit(err)
	}
	defer fd.Close()
	if err := inspectFile(os.Stdout, contentenc.New(c), fd); err != nil {
		errExit(exitcodes.Wrap(err, exitcodes.Other))
	}
}

// loadKey reads the key and the salt. The plain codec needs neither unless
// encrypted names are translated, and the returned secret is empty.
// secret.Passphrase is only kept for the XOR codec.
func loadKey(args *xrayArgs) (secret codec.Secret, kind codec.Kind, plainNames bool, err error) {
	cf := configfile.Default(args.rounds)
	if args.config != "" {
		cf, err = configfile.Load(args.config)
		if err != nil {
			return secret, 0, false, exitcodes.Wrap(err, exitcodes.LoadConf)
		}
	} else {
		cf.Codec = args.codec
	}
	kind, err = cf.CodecKind()
	if err != nil {
		return secret, 0, false, exitcodes.Wrap(err, exitcodes.Usage)
	}
	plainNames = cf.IsFeatureFlagSet(configfile.FlagPlaintextNames)
	needNames := (args.decryptNames || args.encryptNames) && !plainNames
	if kind == codec.KindPlain && !needNames {
		return secret, kind, plainNames, nil
	}
	pass, err := readpassword.Once(nil, args.passfile, "Key")
	if err != nil {
		return secret, 0, false, exitcodes.Wrap(err, exitcodes.ReadPassword)
	}
	if kind == codec.KindXOR {
		secret.Passphrase = append([]byte(nil), pass...)
	}
	salt, err := readpassword.Salt(nil, args.saltfile)
	if err != nil {
		return secret, 0, false, exitcodes.Wrap(err, exitcodes.ReadPassword)
	}
	key, iv := cf.DeriveKeyIV(pass, salt)
	secret.Cipher = cryptocore.New(key, iv)
	for _, b := range [][]byte{pass, salt, key, iv} {
		clear(b)
	}
	return secret, kind, plainNames, nil
}

func prettyPrintHeader(w io.Writer, h *contentenc.FileHeader) {
	fmt.Fprintf(w, "Header: Magic: %#08x, Flags: %#x, Length: %d\n", h.Magic, h.Flags, h.Length)
}

// inspectFile prints the header and one line per block of "fd".
func inspectFile(w io.Writer, be *contentenc.ContentEnc, fd io.ReaderAt) error {
	h, err := contentenc.ReadHeader(fd)
	if err == io.EOF {
		fmt.Fprintln(w, "empty file")
		return nil
	} else if err == io.ErrUnexpectedEOF {
		fmt.Fprintf(w, "incomplete file header: want %d bytes\n", contentenc.HeaderLen)
		return err
	} else if err != nil {
		return err
	}
	prettyPrintHeader(w, h)
	var bad int
	for blockNo := uint64(0); ; blockNo++ {
		info, err := be.InspectBlock(fd, blockNo)
		if err == io.EOF {
			break
		} else if err != nil {
			return err
		}
		switch {
		case info.Err != nil:
			bad++
			fmt.Fprintf(w, "Block %2d: Offset: %6d BAD: %v\n", info.BlockNo, info.Offset, info.Err)
		case info.Hole:
			fmt.Fprintf(w, "Block %2d: Offset: %6d hole\n", info.BlockNo, info.Offset)
		default:
			fmt.Fprintf(w, "Block %2d: Offset: %6d Len: %3d CRC: %08x\n",
				info.BlockNo, info.Offset, info.Length, info.CRC)
		}
	}
	if bad > 0 {
		return fmt.Errorf("%d bad blocks", bad)
	}
	return nil
}

// transformNames translates one name or path per input line.
func transformNames(w io.Writer, r io.Reader, nt *nametransform.NameTransform, encrypt bool) error {
	var errorCount int
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		in := scanner.Text()
		var out string
		var err error
		if encrypt {
			out, err = nt.EncryptPath(in)
		} else {
			out, err = nt.DecryptPath(filepath.ToSlash(in))
		}
		if err != nil {
			fmt.Fprintf(w, "error: %q: %v\n", in, err)
			errorCount++
			continue
		}
		fmt.Fprintln(w, out)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if errorCount > 0 {
		return fmt.Errorf("%d names failed", errorCount)
	}
	return nil
}
