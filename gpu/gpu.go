// Package gpu offloads KZG commitments to an icicle device. Without the
// icicle build tag every entry point fails with ErrNoIcicle.
package gpu

import "errors"

var ErrNoIcicle = errors.New("icicle requested but program compiled without 'icicle' build tag")
