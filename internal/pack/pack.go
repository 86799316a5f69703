// Package pack converts whole files between their plain form and the block
// format used by aesfs, without mounting anything.
package pack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/matteobertozzi/aesfs/internal/contentenc"
	"github.com/matteobertozzi/aesfs/internal/tlog"
)

// ErrOddArgs is returned by Pairs when a source has no destination.
var ErrOddArgs = errors.New("files must be given as SRC DST [SRC DST ...]")

// Pair is one source and destination file.
type Pair struct {
	Src string
	Dst string
}

// Pairs groups "args" into source/destination pairs.
func Pairs(args []string) ([]Pair, error) {
	if len(args)%2 != 0 {
		return nil, ErrOddArgs
	}
	pairs := make([]Pair, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		pairs = append(pairs, Pair{Src: args[i], Dst: args[i+1]})
	}
	return pairs, nil
}

// Packer packs and unpacks files with one block engine. It is safe for
// concurrent use.
type Packer struct {
	contentEnc *contentenc.ContentEnc
}

// New returns a Packer that stores blocks through "c".
func New(c *contentenc.ContentEnc) *Packer {
	return &Packer{contentEnc: c}
}

// Pack reads the plain file "src" and writes the block-encoded file "dst".
// "dst" is created or truncated. The header is written last, once the final
// length is known.
func (p *Packer) Pack(ctx context.Context, src, dst string) error {
	tlog.Info.Printf("encrypt %s -> %s", src, dst)
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	buf := make([]byte, p.contentEnc.Capacity())
	var off int64
	for {
		if err = ctx.Err(); err != nil {
			break
		}
		var n int
		n, err = io.ReadFull(in, buf)
		if n > 0 {
			if _, werr := p.contentEnc.WriteAt(out, buf[:n], off); werr != nil {
				err = fmt.Errorf("%s: block write at %d: %w", dst, off, werr)
				break
			}
			off += int64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			err = nil
			break
		}
		if err != nil {
			break
		}
	}
	if err == nil {
		h := contentenc.NewFileHeader()
		h.Length = uint64(off)
		err = h.Persist(out)
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

// Unpack reads the block-encoded file "src" and writes the plain content
// to "dst". The output is bounded by the length stored in the header.
func (p *Packer) Unpack(ctx context.Context, src, dst string) error {
	tlog.Info.Printf("decrypt %s -> %s", src, dst)
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	var length uint64
	h, err := contentenc.ReadHeader(in)
	switch {
	case err == io.EOF:
		// An empty file is a valid empty file
	case err != nil:
		return fmt.Errorf("%s: %w", src, err)
	default:
		length = h.Length
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	// Read a few blocks at a time to keep the syscall count down
	buf := make([]byte, 16*p.contentEnc.Capacity())
	var off uint64
	for off < length {
		if err = ctx.Err(); err != nil {
			break
		}
		want := min(uint64(len(buf)), length-off)
		var n int
		n, err = p.contentEnc.ReadAt(in, buf[:want], int64(off))
		if err != nil {
			err = fmt.Errorf("%s: read at %d: %w", src, off, err)
			break
		}
		if n == 0 {
			// The blocks end before the header says so. The rest is a hole.
			n = int(want)
			clear(buf[:n])
		}
		if _, err = out.Write(buf[:n]); err != nil {
			break
		}
		off += uint64(n)
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

// Run packs (or, if "unpack" is set, unpacks) all pairs with at most "jobs"
// pairs in flight. All pairs are attempted; the returned error joins the
// individual failures.
func (p *Packer) Run(ctx context.Context, pairs []Pair, unpack bool, jobs int) error {
	if jobs < 1 {
		jobs = 1
	}
	op := p.Pack
	if unpack {
		op = p.Unpack
	}
	errs := make([]error, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, pair := range pairs {
		i, pair := i, pair
		g.Go(func() error {
			if err := op(gctx, pair.Src, pair.Dst); err != nil {
				tlog.Warn.Printf("error during %q: %v", pair.Src, err)
				errs[i] = fmt.Errorf("%s: %w", pair.Src, err)
			}
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}
