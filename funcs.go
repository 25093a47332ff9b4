package zkpipe

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/kzg"
	"github.com/consensys/gnark/logger"
	"github.com/schollz/progressbar/v3"

	"github.com/eon-protocol/zkpipe/constraint"
)

// SRSSource says where the KZG reference string comes from. Sources are
// tried in order: local file, download, development ceremony.
type SRSSource struct {
	Path   string `yaml:"path"`
	URL    string `yaml:"url"`
	SHA256 string `yaml:"sha256"`
	// DevSecret is a decimal τ. Anyone knowing it can forge proofs.
	DevSecret string `yaml:"dev_secret"`
}

// SRSSize is the number of G1 powers needed to prove cs.
func SRSSize(cs *constraint.System) uint64 {
	return cs.DomainSize() + SRS_EXTRA
}

// NewDevSRS runs an insecure single-party ceremony with a known τ.
func NewDevSRS(size uint64, secret *big.Int) (*kzg.SRS, error) {
	return kzg.NewSRS(size, secret)
}

func ReadSRS(path string) (*kzg.SRS, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseSRS(data)
}

func parseSRS(data []byte) (*kzg.SRS, error) {
	var srs kzg.SRS
	if _, err := srs.ReadFrom(bytes.NewReader(data)); err != nil {
		return nil, &SetupError{Reason: "decode reference string", Err: err}
	}
	return &srs, nil
}

func WriteSRS(path string, srs *kzg.SRS) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if _, err := srs.WriteTo(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func checkSum(data []byte, want string) error {
	if want == "" {
		return nil
	}
	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); !strings.EqualFold(got, want) {
		return &SetupError{Reason: fmt.Sprintf("sha256 mismatch: got %s, want %s", got, want)}
	}
	return nil
}

// DownloadSRS fetches a serialized reference string, checks its sha256 and
// caches it at path.
func DownloadSRS(ctx context.Context, url, path, sum string) (*kzg.SRS, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: %s", url, resp.Status)
	}
	var buf bytes.Buffer
	bar := progressbar.DefaultBytes(resp.ContentLength, "Downloading SRS")
	if _, err := io.Copy(io.MultiWriter(&buf, bar), resp.Body); err != nil {
		return nil, err
	}
	data := buf.Bytes()
	if err := checkSum(data, sum); err != nil {
		return nil, err
	}
	srs, err := parseSRS(data)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, err
		}
	}
	return srs, nil
}

// LoadSRS returns a validated reference string holding at least size powers.
func LoadSRS(ctx context.Context, src SRSSource, size uint64) (*kzg.SRS, error) {
	log := logger.Logger().With().Str("srs", src.Path).Uint64("size", size).Logger()
	var srs *kzg.SRS
	data, err := os.ReadFile(src.Path)
	switch {
	case src.Path != "" && err == nil:
		if err := checkSum(data, src.SHA256); err != nil {
			return nil, err
		}
		if srs, err = parseSRS(data); err != nil {
			return nil, err
		}
	case src.Path != "" && !errors.Is(err, os.ErrNotExist):
		return nil, err
	case src.URL != "":
		log.Info().Str("url", src.URL).Msg("local srs cache not found; downloading ...")
		if srs, err = DownloadSRS(ctx, src.URL, src.Path, src.SHA256); err != nil {
			return nil, err
		}
	case src.DevSecret != "":
		secret, ok := new(big.Int).SetString(src.DevSecret, 10)
		if !ok {
			return nil, &SetupError{Reason: "dev secret is not a decimal integer"}
		}
		log.Warn().Msg("generating a development reference string; proofs are forgeable")
		if srs, err = NewDevSRS(size, secret); err != nil {
			return nil, err
		}
		if src.Path != "" {
			if err := WriteSRS(src.Path, srs); err != nil {
				return nil, err
			}
		}
	default:
		return nil, &SetupError{Reason: "no reference string source configured"}
	}
	if err := ValidateSRS(srs, size); err != nil {
		return nil, err
	}
	return srs, nil
}

// ValidateSRS checks that srs holds at least size consistent powers of one τ:
// e(∑rᵢ[τⁱ⁺¹]₁, [1]₂) = e(∑rᵢ[τⁱ]₁, [τ]₂) for random rᵢ.
func ValidateSRS(srs *kzg.SRS, size uint64) error {
	if srs == nil {
		return &SetupError{Reason: "missing reference string"}
	}
	g1 := srs.Pk.G1
	if uint64(len(g1)) < size || size < 2 {
		return &SetupError{Reason: fmt.Sprintf("reference string holds %d powers, need %d", len(g1), size)}
	}
	if !g1[0].Equal(&srs.Vk.G1) || g1[0].IsInfinity() {
		return &SetupError{Reason: "first power is not the verifying key generator"}
	}
	for i := range srs.Vk.G2 {
		if srs.Vk.G2[i].IsInfinity() || !srs.Vk.G2[i].IsInSubGroup() {
			return &SetupError{Reason: fmt.Sprintf("G2 power %d is not a valid subgroup point", i)}
		}
	}
	var bad error
	var once sync.Once
	parallelize(int(size), func(start, end int) {
		for i := start; i < end; i++ {
			if !g1[i].IsInSubGroup() {
				once.Do(func() { bad = &SetupError{Reason: fmt.Sprintf("G1 power %d is not a valid subgroup point", i)} })
				return
			}
		}
	})
	if bad != nil {
		return bad
	}

	r := make([]fr.Element, size-1)
	for i := range r {
		if _, err := r[i].SetRandom(); err != nil {
			return err
		}
	}
	var lo, hi bls12381.G1Affine
	if _, err := lo.MultiExp(g1[:size-1], r, ecc.MultiExpConfig{}); err != nil {
		return &SetupError{Reason: "multi exponentiation", Err: err}
	}
	if _, err := hi.MultiExp(g1[1:size], r, ecc.MultiExpConfig{}); err != nil {
		return &SetupError{Reason: "multi exponentiation", Err: err}
	}
	lo.Neg(&lo)
	ok, err := bls12381.PairingCheck([]bls12381.G1Affine{hi, lo}, []bls12381.G2Affine{srs.Vk.G2[0], srs.Vk.G2[1]})
	if err != nil {
		return &SetupError{Reason: "pairing", Err: err}
	}
	if !ok {
		return &SetupError{Reason: "powers are not consistent with [τ]₂"}
	}
	return nil
}

func eval(p []fr.Element, point fr.Element) fr.Element {
	var res fr.Element
	n := len(p)
	res.Set(&p[n-1])
	for i := n - 2; i >= 0; i-- {
		res.Mul(&res, &point).Add(&res, &p[i])
	}
	return res
}

// dividePolyByXminusA returns (f-f(a))/(X-a); f is modified.
func dividePolyByXminusA(f []fr.Element, fa, a fr.Element) []fr.Element {
	f[0].Sub(&f[0], &fa)

	// synthetic division
	var t fr.Element
	for i := len(f) - 2; i >= 0; i-- {
		t.Mul(&f[i+1], &a)
		f[i].Add(&f[i], &t)
	}
	return f[1:]
}

// getBlindedCoefficients returns p + b·(Xⁿ-1) where n = len(p).
func getBlindedCoefficients(p, b []fr.Element) []fr.Element {
	n := len(p)
	res := make([]fr.Element, n+len(b))
	copy(res, p)
	for i := range b {
		res[i].Sub(&res[i], &b[i])
		res[n+i].Add(&res[n+i], &b[i])
	}
	return res
}

func parallelize(nbIterations int, work func(int, int), maxCpus ...int) {
	nbTasks := runtime.NumCPU()
	if len(maxCpus) == 1 {
		nbTasks = maxCpus[0]
	}
	nbIterationsPerCpus := nbIterations / nbTasks

	// more CPUs than tasks: a CPU will work on exactly one iteration
	if nbIterationsPerCpus < 1 {
		nbIterationsPerCpus = 1
		nbTasks = nbIterations
	}

	var wg sync.WaitGroup

	extraTasks := nbIterations - (nbTasks * nbIterationsPerCpus)
	extraTasksOffset := 0

	for i := 0; i < nbTasks; i++ {
		wg.Add(1)
		_start := i*nbIterationsPerCpus + extraTasksOffset
		_end := _start + nbIterationsPerCpus
		if extraTasks > 0 {
			_end++
			extraTasks--
			extraTasksOffset++
		}
		go func() {
			work(_start, _end)
			wg.Done()
		}()
	}

	wg.Wait()
}
