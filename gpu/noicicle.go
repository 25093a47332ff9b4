//go:build !icicle

package gpu

import (
	curve "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/kzg"
)

const HasIcicle = false

type Device struct{}

func NewDevice(_ []curve.G1Affine) (*Device, error) {
	return nil, ErrNoIcicle
}

func (d *Device) Commit(_ []fr.Element) (kzg.Digest, error) {
	return kzg.Digest{}, ErrNoIcicle
}
