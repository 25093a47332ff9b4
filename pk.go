package zkpipe

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"sync"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr/fft"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/kzg"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/logger"
	"golang.org/x/sync/errgroup"

	"github.com/eon-protocol/zkpipe/constraint"
	"github.com/eon-protocol/zkpipe/gpu"
)

// indexes of the preprocessed polynomials
const (
	id_Ql int = iota
	id_Qr
	id_Qm
	id_Qo
	id_Qc
	id_S1
	id_S2
	id_S3
	nb_preprocessed
)

type Pk struct {
	vk  Vk
	cs  *constraint.System
	Kzg kzg.ProvingKey

	trace   *trace
	domain0 *fft.Domain
	domain1 *fft.Domain
	polys   [nb_preprocessed][]fr.Element // canonical coefficients
	coset   [nb_preprocessed][]fr.Element // evaluations on the 4n coset, regular order

	deviceOnce sync.Once
	device     *gpu.Device
	deviceErr  error
}

// trace is the execution trace layout: one row per public input, then one per gate.
type trace struct {
	wires [3][]constraint.Wire // wire in column L, R, O of each row
	q     [5][]fr.Element      // selectors in Lagrange form, ordered as id_Ql..id_Qc
	s     [3][]fr.Element      // σ labels in Lagrange form
	roots []fr.Element         // ωⁱ
}

func buildTrace(cs *constraint.System, domain *fft.Domain) *trace {
	n := int(domain.Cardinality)
	np := cs.NbPublic()
	t := &trace{roots: make([]fr.Element, n)}
	fft.BuildExpTable(domain.Generator, t.roots)
	for i := range t.wires {
		t.wires[i] = make([]constraint.Wire, n)
		for j := range t.wires[i] {
			t.wires[i][j] = constraint.NoWire
		}
	}
	for i := range t.q {
		t.q[i] = make([]fr.Element, n)
	}

	for i := 0; i < np; i++ {
		t.wires[0][i] = constraint.Wire(i)
		t.q[id_Ql][i].SetOne()
	}
	for j, g := range cs.Gates {
		row := np + j
		t.wires[0][row], t.wires[1][row], t.wires[2][row] = g.L, g.R, g.O
		t.q[id_Ql][row] = g.QL
		t.q[id_Qr][row] = g.QR
		t.q[id_Qm][row] = g.QM
		t.q[id_Qo][row] = g.QO
		t.q[id_Qc][row] = g.QC
	}

	// cells holding the same wire form a cycle; unused cells are fixed points
	cycles := make([][]int, cs.NbWires())
	for col := range t.wires {
		for row, w := range t.wires[col] {
			if w != constraint.NoWire {
				cycles[w] = append(cycles[w], col*n+row)
			}
		}
	}
	next := make([]int, 3*n)
	for i := range next {
		next[i] = i
	}
	for _, c := range cycles {
		for k := range c {
			next[c[k]] = c[(k+1)%len(c)]
		}
	}
	shifts := [3]fr.Element{fr.One(), COSET_SHIFT, COSET_SHIFT_SQ}
	for col := range t.s {
		t.s[col] = make([]fr.Element, n)
		for row := range t.s[col] {
			c := next[col*n+row]
			t.s[col][row].Mul(&shifts[c/n], &t.roots[c%n])
		}
	}
	return t
}

// init derives everything that is not persisted from vk.SZ and the constraint system.
func (me *Pk) init() error {
	n := me.vk.Size()
	if n != me.cs.DomainSize() {
		return fmt.Errorf("domain size %d does not match the constraint system (%d)", n, me.cs.DomainSize())
	}
	if me.vk.NP != uint32(me.cs.NbPublic()) {
		return fmt.Errorf("vk has %d public inputs, constraint system has %d", me.vk.NP, me.cs.NbPublic())
	}
	me.domain0 = fft.NewDomain(n)
	me.domain1 = fft.NewDomain(4*n, fft.WithoutPrecompute())
	me.trace = buildTrace(me.cs, me.domain0)

	lagrange := [nb_preprocessed][]fr.Element{
		me.trace.q[id_Ql], me.trace.q[id_Qr], me.trace.q[id_Qm], me.trace.q[id_Qo], me.trace.q[id_Qc],
		me.trace.s[0], me.trace.s[1], me.trace.s[2],
	}
	parallelize(nb_preprocessed, func(start, end int) {
		for i := start; i < end; i++ {
			p := make([]fr.Element, n)
			copy(p, lagrange[i])
			me.domain0.FFTInverse(p, fft.DIF)
			fft.BitReverse(p)
			me.polys[i] = p
			me.coset[i] = toCoset(p, me.domain1)
		}
	})
	return nil
}

// toCoset evaluates canonical p on the coset g·H of domain, in regular order.
func toCoset(p []fr.Element, domain *fft.Domain) []fr.Element {
	res := make([]fr.Element, domain.Cardinality)
	copy(res, p)
	domain.FFT(res, fft.DIF, fft.OnCoset())
	fft.BitReverse(res)
	return res
}

// Setup derives the proving and verification keys of cs. It is deterministic for a fixed srs.
func Setup(cs *constraint.System, srs *kzg.SRS) (*Pk, *Vk, error) {
	if err := cs.Validate(); err != nil {
		return nil, nil, &SetupError{Reason: "constraint system", Err: err}
	}
	size := SRSSize(cs)
	if err := ValidateSRS(srs, size); err != nil {
		return nil, nil, err
	}
	n := cs.DomainSize()
	pk := &Pk{
		cs:  cs,
		Kzg: kzg.ProvingKey{G1: srs.Pk.G1[:size]},
		vk: Vk{
			SZ:  uint8(bits.TrailingZeros64(n)),
			NP:  uint32(cs.NbPublic()),
			Kzg: srs.Vk,
		},
	}
	if err := pk.init(); err != nil {
		return nil, nil, &SetupError{Reason: "trace", Err: err}
	}

	digests := [nb_preprocessed]*bls12381.G1Affine{&pk.vk.QL, &pk.vk.QR, &pk.vk.QM, &pk.vk.QO, &pk.vk.QC, &pk.vk.S1, &pk.vk.S2, &pk.vk.S3}
	var g errgroup.Group
	for i := range digests {
		g.Go(func() (err error) {
			*digests[i], err = kzg.Commit(pk.polys[i], pk.Kzg)
			return
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, &SetupError{Reason: "commit", Err: err}
	}

	digest := pk.vk.Digest()
	log := logger.Logger()
	log.Debug().
		Int("nbConstraints", len(cs.Gates)).
		Uint64("domain", n).
		Hex("vk", digest[:]).
		Msg("setup done")
	vk := pk.vk
	return pk, &vk, nil
}

// Compile compiles circuit, loads a reference string large enough for it from
// src and runs Setup.
func Compile(ctx context.Context, circuit frontend.Circuit, src SRSSource) (*Pk, *Vk, error) {
	cs, err := constraint.Compile(circuit)
	if err != nil {
		return nil, nil, err
	}
	srs, err := LoadSRS(ctx, src, SRSSize(cs))
	if err != nil {
		return nil, nil, err
	}
	return Setup(cs, srs)
}

func (me *Pk) Vk() Vk {
	return me.vk
}

func (me *Pk) ConstraintSystem() *constraint.System {
	return me.cs
}

// accelerator attaches the proving key G1 powers to the icicle device once.
func (me *Pk) accelerator() (*gpu.Device, error) {
	me.deviceOnce.Do(func() {
		me.device, me.deviceErr = gpu.NewDevice(me.Kzg.G1)
		if me.deviceErr != nil {
			me.deviceErr = errors.Join(ErrAccelerator, me.deviceErr)
		}
	})
	return me.device, me.deviceErr
}

// WriteTo persists the verification key, the constraint system and the G1 powers.
// Everything else is rebuilt by ReadFrom.
func (me *Pk) WriteTo(w io.Writer) (int64, error) {
	n, err := me.vk.WriteTo(w)
	if err != nil {
		return n, err
	}
	data, err := me.cs.MarshalBinary()
	if err != nil {
		return n, err
	}
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(data)))
	m, err := w.Write(size[:])
	n += int64(m)
	if err != nil {
		return n, err
	}
	m, err = w.Write(data)
	n += int64(m)
	if err != nil {
		return n, err
	}
	enc := bls12381.NewEncoder(w)
	err = enc.Encode(me.Kzg.G1)
	return n + enc.BytesWritten(), err
}

func (me *Pk) ReadFrom(r io.Reader) (int64, error) {
	n, err := me.vk.ReadFrom(r)
	if err != nil {
		return n, err
	}
	var size [4]byte
	m, err := io.ReadFull(r, size[:])
	n += int64(m)
	if err != nil {
		return n, err
	}
	want := int(binary.BigEndian.Uint32(size[:]))
	data, err := io.ReadAll(io.LimitReader(r, int64(want)))
	n += int64(len(data))
	if err != nil {
		return n, err
	}
	if len(data) != want {
		return n, fmt.Errorf("read constraint system: %w", io.ErrUnexpectedEOF)
	}
	me.cs = new(constraint.System)
	if err := me.cs.UnmarshalBinary(data); err != nil {
		return n, err
	}
	dec := bls12381.NewDecoder(r)
	if err := dec.Decode(&me.Kzg.G1); err != nil {
		return n + dec.BytesRead(), err
	}
	n += dec.BytesRead()
	if uint64(len(me.Kzg.G1)) < SRSSize(me.cs) || !me.Kzg.G1[0].Equal(&me.vk.Kzg.G1) {
		return n, &SetupError{Reason: "proving key powers do not match the verification key"}
	}
	return n, me.init()
}
