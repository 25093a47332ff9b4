package constraint

import (
	"bytes"
	"fmt"
	"io"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fxamacker/cbor/v2"
)

const EncodingVersion = 1

type encodedGate struct {
	_                  struct{} `cbor:",toarray"`
	L, R, O            uint32
	QL, QR, QO, QM, QC []byte
}

type encodedSystem struct {
	Version  uint          `cbor:"1,keyasint"`
	Public   []string      `cbor:"2,keyasint"`
	Secret   []string      `cbor:"3,keyasint"`
	Internal uint32        `cbor:"4,keyasint"`
	Gates    []encodedGate `cbor:"5,keyasint"`
}

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

var decMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

func encodeCoeff(e *fr.Element) []byte {
	b := e.Bytes()
	return b[:]
}

func decodeCoeff(b []byte) (fr.Element, error) {
	if len(b) != fr.Bytes {
		return fr.Element{}, fmt.Errorf("coefficient of %d bytes", len(b))
	}
	return fr.BigEndian.Element((*[fr.Bytes]byte)(b))
}

// MarshalBinary returns the canonical CBOR encoding of the system.
// Equal systems always encode to equal bytes.
func (cs *System) MarshalBinary() ([]byte, error) {
	enc := encodedSystem{
		Version:  EncodingVersion,
		Public:   cs.Public,
		Secret:   cs.Secret,
		Internal: uint32(cs.Internal),
		Gates:    make([]encodedGate, len(cs.Gates)),
	}
	for i := range cs.Gates {
		g := &cs.Gates[i]
		enc.Gates[i] = encodedGate{
			L:  uint32(g.L),
			R:  uint32(g.R),
			O:  uint32(g.O),
			QL: encodeCoeff(&g.QL),
			QR: encodeCoeff(&g.QR),
			QO: encodeCoeff(&g.QO),
			QM: encodeCoeff(&g.QM),
			QC: encodeCoeff(&g.QC),
		}
	}
	return encMode.Marshal(&enc)
}

// UnmarshalBinary decodes and validates a system written by MarshalBinary.
func (cs *System) UnmarshalBinary(data []byte) error {
	var enc encodedSystem
	if err := decMode.Unmarshal(data, &enc); err != nil {
		return fmt.Errorf("decode constraint system: %w", err)
	}
	if enc.Version != EncodingVersion {
		return fmt.Errorf("%w: %d", ErrVersion, enc.Version)
	}
	out := System{
		Public:   enc.Public,
		Secret:   enc.Secret,
		Internal: int(enc.Internal),
		Gates:    make([]Gate, len(enc.Gates)),
	}
	for i, eg := range enc.Gates {
		g := Gate{L: Wire(eg.L), R: Wire(eg.R), O: Wire(eg.O)}
		for _, c := range []struct {
			dst *fr.Element
			src []byte
		}{{&g.QL, eg.QL}, {&g.QR, eg.QR}, {&g.QO, eg.QO}, {&g.QM, eg.QM}, {&g.QC, eg.QC}} {
			v, err := decodeCoeff(c.src)
			if err != nil {
				return &CompileError{Gate: i, Wire: NoWire, Reason: "malformed coefficient", Err: err}
			}
			*c.dst = v
		}
		out.Gates[i] = g
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*cs = out
	return nil
}

func (cs *System) WriteTo(w io.Writer) (int64, error) {
	data, err := cs.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

func (cs *System) ReadFrom(r io.Reader) (int64, error) {
	var buf bytes.Buffer
	n, err := buf.ReadFrom(r)
	if err != nil {
		return n, err
	}
	return n, cs.UnmarshalBinary(buf.Bytes())
}

// Digest identifies the system by the keccak256 hash of its canonical encoding.
func (cs *System) Digest() (common.Hash, error) {
	data, err := cs.MarshalBinary()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(data), nil
}
