package zkpipe

import (
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fp"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/eon-protocol/zkpipe/constraint"
)

const POINT_SIZE = 2 * fp.Bytes
const SCALAR_SIZE = fr.Bytes
const PROOF_POINTS = 9
const PROOF_SCALARS = 16
const PROOF_SIZE = PROOF_POINTS*POINT_SIZE + PROOF_SCALARS*SCALAR_SIZE

// byte offsets of the proof sections
const (
	OFFSET_LRO   = 0
	OFFSET_Z     = 3 * POINT_SIZE
	OFFSET_H     = 4 * POINT_SIZE
	OFFSET_W     = 7 * POINT_SIZE
	OFFSET_EVALS = PROOF_POINTS * POINT_SIZE
)

// number of polynomials opened at ζ
const NUM_FOLDED = 15

// h₀, h₁, h₂ hold n+2 coefficients each
const QUOTIENT_CHUNKS = 3

// minimal SRS length for a domain of size n is n+SRS_EXTRA
const SRS_EXTRA = 3

const SRS_FILE = "SRS.BIN"

var FIELD = constraint.FIELD
var COSET_SHIFT = fr.NewElement(7)
var COSET_SHIFT_SQ = fr.NewElement(49)

// Fiat-Shamir challenge tags, in transcript order.
const (
	CID_BETA  = "beta"
	CID_GAMMA = "gamma"
	CID_ALPHA = "alpha"
	CID_ZETA  = "zeta"
	CID_NU    = "nu"
	CID_ETA   = "eta"
)

var CHALLENGES = []string{CID_BETA, CID_GAMMA, CID_ALPHA, CID_ZETA, CID_NU, CID_ETA}
