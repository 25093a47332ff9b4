package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eon-protocol/zkpipe"
	"github.com/eon-protocol/zkpipe/store"
)

func write(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zkpipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Equal(t, filepath.Join("data", zkpipe.SRS_FILE), cfg.SRSSource().Path)
	require.Equal(t, zerolog.InfoLevel, cfg.Level())
}

func TestLoad(t *testing.T) {
	path := write(t, `
data_dir: /var/lib/zkpipe
log:
  level: debug
srs:
  url: https://example.org/srs.bin
  sha256: abcd
prover:
  workers: 4
  seed: fixed
store:
  backend: badger
  path: db
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, zerolog.DebugLevel, cfg.Level())
	require.Equal(t, 4, cfg.Prover.Workers)
	require.Equal(t, "/var/lib/zkpipe/db", cfg.Path(cfg.Store.Path))
	require.Equal(t, "https://example.org/srs.bin", cfg.SRS.URL)
	// unset keys keep their defaults
	require.Equal(t, zkpipe.SRS_FILE, cfg.SRS.Path)
	require.EqualValues(t, 30_000_000, cfg.Chain.GasLimit)
	require.Len(t, cfg.ProverOptions(), 2)

	popts, err := zkpipe.NewProverConfig(cfg.ProverOptions()...)
	require.NoError(t, err)
	require.Equal(t, []byte("fixed"), popts.Seed)
}

func TestValidate(t *testing.T) {
	for name, content := range map[string]string{
		"level":       "log: {level: loud}",
		"workers":     "prover: {workers: -1}",
		"accelerator": "prover: {accelerator: tpu}",
		"backend":     "store: {backend: s3}",
		"gas":         "chain: {gas_limit: 0}",
		"srs":         "srs: {path: ''}",
		"yaml":        "log: [",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(write(t, content))
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpenStore(t *testing.T) {
	cfg := Default()
	cfg.DataDir = t.TempDir()
	s, err := cfg.OpenStore()
	require.NoError(t, err)
	defer s.Close()
	_, ok := s.(*store.Dir)
	require.True(t, ok)
}
