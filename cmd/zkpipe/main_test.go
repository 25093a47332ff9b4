package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/stretchr/testify/require"

	"github.com/eon-protocol/zkpipe/circuits/preimage"
)

func run(t *testing.T, cfg string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", cfg}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPipeline(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "zkpipe.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
data_dir: `+dir+`
log:
  level: error
srs:
  path: SRS.BIN
  dev_secret: "123456789"
prover:
  workers: 2
`), 0o644))

	out, err := run(t, cfg, "compile", "--out", filepath.Join(dir, "circuit.cbor"))
	require.NoError(t, err)
	require.Contains(t, out, "public=32")
	require.FileExists(t, filepath.Join(dir, "circuit.cbor"))

	out, err = run(t, cfg, "setup")
	require.NoError(t, err)
	require.Contains(t, out, "vk digest 0x")
	require.FileExists(t, filepath.Join(dir, "SRS.BIN"))

	_, err = run(t, cfg, "prove", "--x", "189")
	require.NoError(t, err)
	out, err = run(t, cfg, "verify")
	require.NoError(t, err)
	require.Contains(t, out, "accepted (native)")
	out, err = run(t, cfg, "verify", "--onchain")
	require.NoError(t, err)
	require.Contains(t, out, "accepted (chain, gas")

	digest := preimage.Digest(fr.NewElement(189))
	_, err = run(t, cfg, "prove", "--x", "199", "--result", hex.EncodeToString(digest[:]), "--id", "bad")
	require.NoError(t, err)
	out, err = run(t, cfg, "verify", "--id", "bad")
	require.ErrorIs(t, err, ErrRejected)
	require.Contains(t, out, "rejected (native)")
	out, err = run(t, cfg, "verify", "--id", "bad", "--onchain")
	require.ErrorIs(t, err, ErrRejected)
	require.Contains(t, out, "Proof failed")

	out, err = run(t, cfg, "info")
	require.NoError(t, err)
	require.Contains(t, out, "proofs: 2")
	require.Contains(t, out, "public=32")

	out, err = run(t, cfg, "srs")
	require.NoError(t, err)
	require.Contains(t, out, "sha256")

	_, err = run(t, cfg, "prove", "--x", "not-a-number")
	require.Error(t, err)
	_, err = run(t, cfg, "verify", "--id", "missing")
	require.Error(t, err)
}

func TestMissingKeys(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "zkpipe.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("data_dir: "+dir+"\nlog: {level: error}\n"), 0o644))
	_, err := run(t, cfg, "prove", "--x", "1")
	require.ErrorContains(t, err, "run setup first")
}
