package zkpipe

import (
	"encoding/binary"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"golang.org/x/crypto/sha3"
)

const (
	ACCELERATOR_NONE   = "none"
	ACCELERATOR_ICICLE = "icicle"
)

// ProverConfig is the configuration for the prover with the options applied.
type ProverConfig struct {
	Seed        []byte
	Accelerator string
}

// ProverOption defines option for altering the behavior of the prover.
type ProverOption func(*ProverConfig) error

func NewProverConfig(opts ...ProverOption) (ProverConfig, error) {
	opt := ProverConfig{Accelerator: ACCELERATOR_NONE}
	for _, option := range opts {
		if err := option(&opt); err != nil {
			return ProverConfig{}, err
		}
	}
	return opt, nil
}

// WithSeed derives the blinding scalars from seed instead of the system
// randomness. The same seed and witness give the same proof bytes; reusing a
// seed across witnesses leaks information about them.
func WithSeed(seed []byte) ProverOption {
	return func(opt *ProverConfig) error {
		if len(seed) == 0 {
			return fmt.Errorf("empty seed")
		}
		opt.Seed = append([]byte(nil), seed...)
		return nil
	}
}

// WithIcicleAcceleration routes the KZG commitments to an icicle device.
func WithIcicleAcceleration() ProverOption {
	return WithAccelerator(ACCELERATOR_ICICLE)
}

func WithAccelerator(name string) ProverOption {
	return func(opt *ProverConfig) error {
		switch name {
		case "", ACCELERATOR_NONE:
			opt.Accelerator = ACCELERATOR_NONE
		case ACCELERATOR_ICICLE:
			opt.Accelerator = name
		default:
			return fmt.Errorf("%w: %q", ErrAccelerator, name)
		}
		return nil
	}
}

// blinder draws the blinding scalars of one proof.
type blinder struct {
	seed    []byte
	counter uint64
}

func (b *blinder) next() (fr.Element, error) {
	var res fr.Element
	if b.seed == nil {
		_, err := res.SetRandom()
		return res, err
	}
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], b.counter)
	b.counter++
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte("blind"))
	h.Write(b.seed)
	h.Write(ctr[:])
	res.SetBytes(h.Sum(nil))
	return res, nil
}

func (b *blinder) polynomial(size int) ([]fr.Element, error) {
	res := make([]fr.Element, size)
	for i := range res {
		var err error
		if res[i], err = b.next(); err != nil {
			return nil, err
		}
	}
	return res, nil
}
