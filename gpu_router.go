package zkpipe

import (
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/kzg"
)

// commit routes a KZG commitment to the icicle device when the instance has
// one, and falls back to the CPU when the device fails.
func (s *instance) commit(p []fr.Element) (kzg.Digest, error) {
	if s.device != nil {
		digest, err := s.device.Commit(p)
		if err == nil {
			return digest, nil
		}
		s.log.Warn().Err(err).Msg("[GPU failed -> CPU] kzg.Commit")
	}
	return kzg.Commit(p, s.pk.Kzg)
}
