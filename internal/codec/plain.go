package codec

// Plain copies blocks unchanged.
type Plain struct{}

var _ Codec = Plain{}

func (Plain) Encode(dst, src []byte) error {
	if err := checkSizes(dst, src); err != nil {
		return err
	}
	copy(dst, src)
	return nil
}

func (Plain) Decode(dst, src []byte) error {
	if err := checkSizes(dst, src); err != nil {
		return err
	}
	copy(dst, src)
	return nil
}

func (Plain) MaxLength(n int) int {
	return n
}

func (Plain) Overhead() int {
	return 0
}

func (Plain) Name() string {
	return KindPlain.String()
}
