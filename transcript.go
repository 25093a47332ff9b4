package zkpipe

import (
	"errors"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"golang.org/x/crypto/sha3"
)

var (
	errChallengeNotFound            = errors.New("challenge not recorded in the transcript")
	errChallengeAlreadyComputed     = errors.New("challenge already computed, cannot be bound to other values")
	errPreviousChallengeNotComputed = errors.New("the previous challenge is needed and has not been computed")
)

// Transcript derives Fiat-Shamir challenges with keccak256 so that the same
// values can be recomputed by an EVM contract from calldata.
type Transcript struct {
	challenges map[string]challenge
	previous   *challenge
}

type challenge struct {
	position   int      // position of the challenge in the Transcript. order matters.
	bindings   [][]byte // bindings stores the bytes a challenge is bound to.
	value      fr.Element
	isComputed bool
}

// NewTranscript returns a new transcript. The order of the challenge IDs matters.
func NewTranscript(challengesID ...string) *Transcript {
	challenges := make(map[string]challenge)
	for i := range challengesID {
		challenges[challengesID[i]] = challenge{position: i}
	}
	return &Transcript{challenges: challenges}
}

// Bind appends raw bytes to the challenge preimage.
func (t *Transcript) Bind(challengeID string, data ...[]byte) error {
	c, ok := t.challenges[challengeID]
	if !ok {
		return errChallengeNotFound
	}
	if c.isComputed {
		return errChallengeAlreadyComputed
	}
	for _, d := range data {
		c.bindings = append(c.bindings, append([]byte(nil), d...))
	}
	t.challenges[challengeID] = c
	return nil
}

func (t *Transcript) BindScalars(challengeID string, v ...fr.Element) error {
	data := make([][]byte, len(v))
	for i := range v {
		b := v[i].Bytes()
		data[i] = b[:]
	}
	return t.Bind(challengeID, data...)
}

func (t *Transcript) BindPoints(challengeID string, p ...bls12381.G1Affine) error {
	data := make([][]byte, len(p))
	for i := range p {
		data[i] = make([]byte, POINT_SIZE)
		encodePoint(data[i], &p[i])
	}
	return t.Bind(challengeID, data...)
}

// ComputeChallenge computes the challenge corresponding to the given name:
//
//	keccak256(name || previous_challenge || bound_values...) mod r
//
// previous_challenge is omitted for the first challenge.
func (t *Transcript) ComputeChallenge(challengeID string) (fr.Element, error) {
	c, ok := t.challenges[challengeID]
	if !ok {
		return fr.Element{}, errChallengeNotFound
	}
	if c.isComputed {
		return c.value, nil
	}

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(challengeID))
	if c.position != 0 {
		if t.previous == nil || t.previous.position != c.position-1 {
			return fr.Element{}, errPreviousChallengeNotComputed
		}
		prev := t.previous.value.Bytes()
		h.Write(prev[:])
	}
	for _, b := range c.bindings {
		h.Write(b)
	}
	c.value.SetBytes(h.Sum(nil))
	c.isComputed = true

	t.challenges[challengeID] = c
	t.previous = &c
	return c.value, nil
}
