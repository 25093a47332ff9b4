package zkpipe

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr/fft"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/kzg"
	"github.com/consensys/gnark/logger"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/eon-protocol/zkpipe/constraint"
	"github.com/eon-protocol/zkpipe/gpu"
	"github.com/eon-protocol/zkpipe/witness"
)

// blinding factors
const (
	id_Bl int = iota
	id_Br
	id_Bo
	id_Bz
	nb_blinding_polynomials
)

// blinding orders
const (
	order_blinding_L = 1
	order_blinding_R = 1
	order_blinding_O = 1
	order_blinding_Z = 2
)

var errContextDone = errors.New("context done")

func (me *Pk) Prove(w *witness.Witness, opts ...ProverOption) (*Proof, error) {
	return me.ProveContext(context.Background(), w, opts...)
}

// ProveContext produces a proof for w. A witness that does not satisfy every
// gate still yields a proof, which verifiers reject.
func (me *Pk) ProveContext(ctx context.Context, w *witness.Witness, opts ...ProverOption) (*Proof, error) {
	log := logger.Logger().With().
		Str("curve", "bls12_381").
		Int("nbConstraints", len(me.cs.Gates)).
		Str("backend", "plonk").Logger()

	opt, err := NewProverConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("get prover options: %w", err)
	}
	if len(w.Values) != me.cs.NbWires() || w.NbPublic != me.cs.NbPublic() {
		return nil, fmt.Errorf("%w: %d values, %d public", ErrWitnessSize, len(w.Values), w.NbPublic)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	instance, err := newInstance(gctx, me, w, &opt, log)
	if err != nil {
		return nil, fmt.Errorf("new instance: %w", err)
	}

	// init blinding polynomials
	g.Go(instance.initBlindingPolynomials)

	// commit to the blinded a, b, c
	g.Go(instance.commitToLRO)

	// derive gamma, beta (copy constraint)
	g.Go(instance.deriveGammaAndBeta)

	// compute accumulating ratio for the copy constraint
	g.Go(instance.buildRatioCopyConstraint)

	// compute h
	g.Go(instance.computeQuotient)

	// evaluate at ζ and ωζ
	g.Go(instance.evaluate)

	// batch opening
	g.Go(instance.batchOpening)

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	log.Debug().Dur("took", time.Since(start)).Msg("prover done")
	return instance.proof, nil
}

// represents a Prover instance
type instance struct {
	ctx context.Context

	pk     *Pk
	proof  *Proof
	w      *witness.Witness
	opt    *ProverConfig
	log    zerolog.Logger
	device *gpu.Device

	fs   *Transcript
	rand blinder

	// polynomials
	lagrange [3][]fr.Element // a, b, c on the trace domain
	x        [3][]fr.Element // blinded a, b, c in canonical form
	bp       [nb_blinding_polynomials][]fr.Element
	pi       []fr.Element // canonical public input polynomial
	z        []fr.Element // blinded z in canonical form
	h        [QUOTIENT_CHUNKS][]fr.Element

	// challenges
	gamma, beta, alpha, zeta, nu fr.Element

	// channels to wait for the steps
	chbp,
	chLRO,
	chGammaBeta,
	chZ,
	chH,
	chEvals chan struct{}
}

func newInstance(ctx context.Context, pk *Pk, w *witness.Witness, opt *ProverConfig, log zerolog.Logger) (*instance, error) {
	s := instance{
		ctx:         ctx,
		pk:          pk,
		proof:       &Proof{},
		w:           w,
		opt:         opt,
		log:         log,
		fs:          NewTranscript(CHALLENGES...),
		rand:        blinder{seed: opt.Seed},
		chbp:        make(chan struct{}, 1),
		chLRO:       make(chan struct{}, 1),
		chGammaBeta: make(chan struct{}, 1),
		chZ:         make(chan struct{}, 1),
		chH:         make(chan struct{}, 1),
		chEvals:     make(chan struct{}, 1),
	}
	if opt.Accelerator == ACCELERATOR_ICICLE {
		if !gpu.HasIcicle {
			return nil, fmt.Errorf("%w: icicle requested but program compiled without 'icicle' build tag", ErrAccelerator)
		}
		device, err := pk.accelerator()
		if err != nil {
			return nil, err
		}
		s.device = device
	}
	return &s, nil
}

func (s *instance) wait(ch <-chan struct{}) error {
	select {
	case <-s.ctx.Done():
		return errContextDone
	case <-ch:
		return nil
	}
}

func (s *instance) initBlindingPolynomials() (err error) {
	orders := [nb_blinding_polynomials]int{order_blinding_L, order_blinding_R, order_blinding_O, order_blinding_Z}
	for i, order := range orders {
		if s.bp[i], err = s.rand.polynomial(order + 1); err != nil {
			return err
		}
	}
	close(s.chbp)
	return nil
}

func (s *instance) commitToLRO() error {
	n := s.pk.domain0.Cardinality
	values := s.w.Values
	for col := range s.lagrange {
		s.lagrange[col] = make([]fr.Element, n)
		for row, wire := range s.pk.trace.wires[col] {
			if wire != constraint.NoWire {
				s.lagrange[col][row] = values[wire]
			}
		}
	}

	// PI(ωⁱ) = -xᵢ
	s.pi = make([]fr.Element, n)
	for i, x := range s.w.Public() {
		s.pi[i].Neg(&x)
	}
	s.pk.domain0.FFTInverse(s.pi, fft.DIF)
	fft.BitReverse(s.pi)

	if err := s.wait(s.chbp); err != nil {
		return err
	}
	digests := [3]*kzg.Digest{&s.proof.L, &s.proof.R, &s.proof.O}
	g := new(errgroup.Group)
	for col := range s.x {
		g.Go(func() (err error) {
			p := make([]fr.Element, n)
			copy(p, s.lagrange[col])
			s.pk.domain0.FFTInverse(p, fft.DIF)
			fft.BitReverse(p)
			s.x[col] = getBlindedCoefficients(p, s.bp[id_Bl+col])
			*digests[col], err = s.commit(s.x[col])
			return
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	close(s.chLRO)
	return nil
}

func (s *instance) deriveGammaAndBeta() (err error) {
	if err := s.wait(s.chLRO); err != nil {
		return err
	}
	digest := s.pk.vk.Digest()
	if err = s.fs.Bind(CID_BETA, digest[:]); err != nil {
		return
	}
	if err = s.fs.BindScalars(CID_BETA, s.w.Public()...); err != nil {
		return
	}
	if err = s.fs.BindPoints(CID_BETA, s.proof.L, s.proof.R, s.proof.O); err != nil {
		return
	}
	if s.beta, err = s.fs.ComputeChallenge(CID_BETA); err != nil {
		return
	}
	if s.gamma, err = s.fs.ComputeChallenge(CID_GAMMA); err != nil {
		return
	}
	close(s.chGammaBeta)
	return nil
}

// buildRatioCopyConstraint computes z(ω⁰)=1, z(ωⁱ⁺¹) = z(ωⁱ)·∏(w+β·id+γ)/∏(w+β·σ+γ)
func (s *instance) buildRatioCopyConstraint() (err error) {
	if err := s.wait(s.chGammaBeta); err != nil {
		return err
	}
	n := int(s.pk.domain0.Cardinality)
	tr := s.pk.trace
	shifts := [3]fr.Element{fr.One(), COSET_SHIFT, COSET_SHIFT_SQ}
	num := make([]fr.Element, n)
	den := make([]fr.Element, n)
	parallelize(n, func(start, end int) {
		var id, t fr.Element
		for i := start; i < end; i++ {
			num[i].SetOne()
			den[i].SetOne()
			for col := range s.lagrange {
				id.Mul(&shifts[col], &tr.roots[i]).Mul(&id, &s.beta)
				t.Add(&s.lagrange[col][i], &id).Add(&t, &s.gamma)
				num[i].Mul(&num[i], &t)
				t.Mul(&tr.s[col][i], &s.beta).Add(&t, &s.lagrange[col][i]).Add(&t, &s.gamma)
				den[i].Mul(&den[i], &t)
			}
		}
	})
	den = fr.BatchInvert(den)

	z := make([]fr.Element, n)
	z[0].SetOne()
	for i := 0; i < n-1; i++ {
		z[i+1].Mul(&z[i], &num[i]).Mul(&z[i+1], &den[i])
	}
	s.pk.domain0.FFTInverse(z, fft.DIF)
	fft.BitReverse(z)
	s.z = getBlindedCoefficients(z, s.bp[id_Bz])

	if s.proof.Z, err = s.commit(s.z); err != nil {
		return err
	}
	close(s.chZ)
	return nil
}

func (s *instance) deriveAlpha() (err error) {
	if err = s.fs.BindPoints(CID_ALPHA, s.proof.Z); err != nil {
		return
	}
	s.alpha, err = s.fs.ComputeChallenge(CID_ALPHA)
	return
}

// computeQuotient computes t = (gate + PI + α·perm + α²·(z-1)L₁)/Z_H on the
// coset of the 4n domain and splits it into h₀ + Xⁿ⁺²h₁ + X²⁽ⁿ⁺²⁾h₂.
func (s *instance) computeQuotient() error {
	if err := s.wait(s.chZ); err != nil {
		return err
	}
	if err := s.deriveAlpha(); err != nil {
		return err
	}

	d0, d1 := s.pk.domain0, s.pk.domain1
	n := int(d0.Cardinality)
	N := int(d1.Cardinality)
	tr := s.pk.trace

	// z(ωX)
	zs := make([]fr.Element, len(s.z))
	for i := range zs {
		zs[i].Mul(&s.z[i], &tr.roots[i%n])
	}
	canonical := [][]fr.Element{s.x[0], s.x[1], s.x[2], s.z, zs, s.pi}
	evals := make([][]fr.Element, len(canonical))
	parallelize(len(canonical), func(start, end int) {
		for i := start; i < end; i++ {
			evals[i] = toCoset(canonical[i], d1)
		}
	})
	if err := s.ctx.Err(); err != nil {
		return errContextDone
	}
	a, b, c, z, zw, pi := evals[0], evals[1], evals[2], evals[3], evals[4], evals[5]
	q := &s.pk.coset

	// xⱼ = g·ω₁ʲ
	xs := make([]fr.Element, N)
	fft.BuildExpTable(d1.Generator, xs)
	den := make([]fr.Element, N)
	one := fr.One()
	parallelize(N, func(start, end int) {
		for j := start; j < end; j++ {
			xs[j].Mul(&xs[j], &d1.FrMultiplicativeGen)
			den[j].Sub(&xs[j], &one)
		}
	})
	den = fr.BatchInvert(den)

	zh := evaluateXnMinusOneDomainBigCoset(d0, d1)
	zhInv := fr.BatchInvert(zh)
	rho := len(zh)
	var sizeInv, alphaSq fr.Element
	sizeInv.SetUint64(uint64(n)).Inverse(&sizeInv)
	alphaSq.Square(&s.alpha)

	t := make([]fr.Element, N)
	parallelize(N, func(start, end int) {
		var gate, perm1, perm2, bx, tmp, l1 fr.Element
		for j := start; j < end; j++ {
			gate.Mul(&q[id_Ql][j], &a[j])
			gate.Add(&gate, tmp.Mul(&q[id_Qr][j], &b[j]))
			gate.Add(&gate, tmp.Mul(&q[id_Qm][j], &a[j]).Mul(&tmp, &b[j]))
			gate.Add(&gate, tmp.Mul(&q[id_Qo][j], &c[j]))
			gate.Add(&gate, &q[id_Qc][j]).Add(&gate, &pi[j])

			bx.Mul(&s.beta, &xs[j])
			perm1.Add(&a[j], &bx).Add(&perm1, &s.gamma)
			perm1.Mul(&perm1, tmp.Mul(&bx, &COSET_SHIFT).Add(&tmp, &b[j]).Add(&tmp, &s.gamma))
			perm1.Mul(&perm1, tmp.Mul(&bx, &COSET_SHIFT_SQ).Add(&tmp, &c[j]).Add(&tmp, &s.gamma)).Mul(&perm1, &z[j])
			perm2.Mul(&s.beta, &q[id_S1][j]).Add(&perm2, &a[j]).Add(&perm2, &s.gamma)
			perm2.Mul(&perm2, tmp.Mul(&s.beta, &q[id_S2][j]).Add(&tmp, &b[j]).Add(&tmp, &s.gamma))
			perm2.Mul(&perm2, tmp.Mul(&s.beta, &q[id_S3][j]).Add(&tmp, &c[j]).Add(&tmp, &s.gamma)).Mul(&perm2, &zw[j])

			// L₁(x) = (xⁿ-1)/(n(x-1))
			l1.Mul(&zh[j%rho], &sizeInv).Mul(&l1, &den[j])
			tmp.Sub(&z[j], &one).Mul(&tmp, &l1).Mul(&tmp, &alphaSq)

			t[j].Sub(&perm1, &perm2).Mul(&t[j], &s.alpha).Add(&t[j], &gate).Add(&t[j], &tmp)
			t[j].Mul(&t[j], &zhInv[j%rho])
		}
	})
	d1.FFTInverse(t, fft.DIF, fft.OnCoset())
	fft.BitReverse(t)

	chunk := n + 2
	for i := QUOTIENT_CHUNKS * chunk; i < N; i++ {
		if !t[i].IsZero() {
			s.log.Debug().Int("degree", i).Msg("quotient exceeds its bound; the witness does not satisfy the constraints")
			break
		}
	}
	digests := [QUOTIENT_CHUNKS]*kzg.Digest{&s.proof.H0, &s.proof.H1, &s.proof.H2}
	g := new(errgroup.Group)
	for i := range s.h {
		s.h[i] = t[i*chunk : (i+1)*chunk]
		g.Go(func() (err error) {
			*digests[i], err = s.commit(s.h[i])
			return
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	close(s.chH)
	return nil
}

// evaluateXnMinusOneDomainBigCoset evaluates Xⁿ-1 on the coset of the big
// domain; the values repeat with period ρ = |big|/n.
func evaluateXnMinusOneDomainBigCoset(d0, d1 *fft.Domain) []fr.Element {
	rho := d1.Cardinality / d0.Cardinality
	res := make([]fr.Element, rho)

	expo := big.NewInt(int64(d0.Cardinality))
	res[0].Exp(d1.FrMultiplicativeGen, expo)

	var t fr.Element
	t.Exp(d1.Generator, expo)

	one := fr.One()
	for i := 1; i < int(rho); i++ {
		res[i].Mul(&res[i-1], &t)
		res[i-1].Sub(&res[i-1], &one)
	}
	res[len(res)-1].Sub(&res[len(res)-1], &one)
	return res
}

// folded returns the polynomials opened at ζ, in the order of Proof.scalars.
func (s *instance) folded() [NUM_FOLDED][]fr.Element {
	p := &s.pk.polys
	return [NUM_FOLDED][]fr.Element{
		s.x[0], s.x[1], s.x[2],
		p[id_S1], p[id_S2], p[id_S3],
		p[id_Ql], p[id_Qr], p[id_Qm], p[id_Qo], p[id_Qc],
		s.h[0], s.h[1], s.h[2],
		s.z,
	}
}

func (s *instance) evaluate() (err error) {
	if err := s.wait(s.chH); err != nil {
		return err
	}
	if err = s.fs.BindPoints(CID_ZETA, s.proof.H0, s.proof.H1, s.proof.H2); err != nil {
		return
	}
	if s.zeta, err = s.fs.ComputeChallenge(CID_ZETA); err != nil {
		return
	}

	var zetaShifted fr.Element
	zetaShifted.Mul(&s.zeta, &s.pk.domain0.Generator)
	polys := s.folded()
	claims := s.proof.scalars()
	parallelize(NUM_FOLDED+1, func(start, end int) {
		for i := start; i < end; i++ {
			if i == NUM_FOLDED {
				*claims[i] = eval(s.z, zetaShifted)
			} else {
				*claims[i] = eval(polys[i], s.zeta)
			}
		}
	})

	if err = s.fs.BindScalars(CID_NU, s.proof.evaluations()...); err != nil {
		return
	}
	if s.nu, err = s.fs.ComputeChallenge(CID_NU); err != nil {
		return
	}
	close(s.chEvals)
	return nil
}

// batchOpening opens ∑νⁱpᵢ at ζ and z at ωζ.
func (s *instance) batchOpening() error {
	if err := s.wait(s.chEvals); err != nil {
		return err
	}
	polys := s.folded()
	claims := s.proof.evaluations()
	size := 0
	for _, p := range polys {
		size = max(size, len(p))
	}
	folded := make([]fr.Element, size)
	var acc, y, tmp fr.Element
	acc.SetOne()
	for i, p := range polys {
		for k := range p {
			folded[k].Add(&folded[k], tmp.Mul(&p[k], &acc))
		}
		y.Add(&y, tmp.Mul(&claims[i], &acc))
		acc.Mul(&acc, &s.nu)
	}

	var zetaShifted fr.Element
	zetaShifted.Mul(&s.zeta, &s.pk.domain0.Generator)
	shifted := make([]fr.Element, len(s.z))
	copy(shifted, s.z)

	g := new(errgroup.Group)
	g.Go(func() (err error) {
		s.proof.Wz, err = s.commit(dividePolyByXminusA(folded, y, s.zeta))
		return
	})
	g.Go(func() (err error) {
		s.proof.Wzw, err = s.commit(dividePolyByXminusA(shifted, s.proof.EZW, zetaShifted))
		return
	})
	return g.Wait()
}
