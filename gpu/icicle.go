//go:build icicle

package gpu

import (
	"fmt"
	"sync"

	curve "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fp"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/kzg"

	icicle_core "github.com/ingonyama-zk/icicle-gnark/v3/wrappers/golang/core"
	icicle_bls12_381 "github.com/ingonyama-zk/icicle-gnark/v3/wrappers/golang/curves/bls12381"
	icicle_msm "github.com/ingonyama-zk/icicle-gnark/v3/wrappers/golang/curves/bls12381/msm"
	icicle_runtime "github.com/ingonyama-zk/icicle-gnark/v3/wrappers/golang/runtime"
)

const HasIcicle = true

// Device holds the G1 powers of a proving key in device memory.
type Device struct {
	mu     sync.Mutex
	device icicle_runtime.Device
	g1     icicle_core.DeviceSlice
	size   int
}

// NewDevice uploads g1 to the first CUDA device and converts it out of Montgomery form.
func NewDevice(g1 []curve.G1Affine) (*Device, error) {
	if st := icicle_runtime.LoadBackendFromEnvOrDefault(); st != icicle_runtime.Success {
		return nil, fmt.Errorf("icicle backend: %s", st.AsString())
	}
	d := &Device{device: icicle_runtime.CreateDevice("CUDA", 0), size: len(g1)}

	var copyErr error
	done := make(chan struct{})
	icicle_runtime.RunOnDevice(&d.device, func(args ...any) {
		defer close(done)
		host := icicle_core.HostSlice[curve.G1Affine](g1)
		host.CopyToDevice(&d.g1, true)
		if st := icicle_bls12_381.AffineFromMontgomery(d.g1); st != icicle_runtime.Success {
			copyErr = fmt.Errorf("AffineFromMontgomery(G1): %s", st.AsString())
		}
	})
	<-done
	if copyErr != nil {
		return nil, copyErr
	}
	return d, nil
}

// Commit computes [p(τ)]₁ with an MSM on the device.
func (d *Device) Commit(p []fr.Element) (kzg.Digest, error) {
	if len(p) > d.size {
		return kzg.Digest{}, fmt.Errorf("polynomial has %d coefficients, device holds %d powers", len(p), d.size)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var dig kzg.Digest
	var st icicle_runtime.EIcicleError
	done := make(chan struct{})
	icicle_runtime.RunOnDevice(&d.device, func(args ...any) {
		defer close(done)
		dig, st = onDeviceCommit(p, d.g1.RangeTo(len(p), false))
	})
	<-done
	if st != icicle_runtime.Success {
		return kzg.Digest{}, fmt.Errorf("icicle msm: %s", st.AsString())
	}
	return dig, nil
}

func onDeviceCommit(p []fr.Element, bases icicle_core.DeviceSlice) (kzg.Digest, icicle_runtime.EIcicleError) {
	host := icicle_core.HostSliceFromElements(p)

	var scalarsDev icicle_core.DeviceSlice
	host.CopyToDevice(&scalarsDev, true)
	defer scalarsDev.Free()

	// scalars stay in Montgomery form, bases were converted on upload
	cfg := icicle_msm.GetDefaultMSMConfig()
	cfg.AreScalarsMontgomeryForm = true
	cfg.AreBasesMontgomeryForm = false

	out := make(icicle_core.HostSlice[icicle_bls12_381.Projective], 1)
	if st := icicle_msm.Msm(scalarsDev, bases, &cfg, out); st != icicle_runtime.Success {
		return kzg.Digest{}, st
	}
	return kzg.Digest(projectiveToAffine(out[0])), icicle_runtime.Success
}

func projectiveToAffine(p icicle_bls12_381.Projective) curve.G1Affine {
	bx := p.X.ToBytesLittleEndian()
	by := p.Y.ToBytesLittleEndian()
	bz := p.Z.ToBytesLittleEndian()

	var ax, ay, az fp.Element
	ax, _ = fp.LittleEndian.Element((*[fp.Bytes]byte)(bx))
	ay, _ = fp.LittleEndian.Element((*[fp.Bytes]byte)(by))
	az, _ = fp.LittleEndian.Element((*[fp.Bytes]byte)(bz))
	if az.IsZero() {
		return curve.G1Affine{}
	}

	var zInv fp.Element
	zInv.Inverse(&az)
	ax.Mul(&ax, &zInv)
	ay.Mul(&ay, &zInv)

	return curve.G1Affine{X: ax, Y: ay}
}
