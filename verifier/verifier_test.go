package verifier

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/eon-protocol/zkpipe"
	"github.com/eon-protocol/zkpipe/circuits/preimage"
	"github.com/eon-protocol/zkpipe/constraint"
	"github.com/eon-protocol/zkpipe/onchain"
	"github.com/eon-protocol/zkpipe/witness"
)

type fixture struct {
	vk      *zkpipe.Vk
	publics []fr.Element
	good    []byte
	bad     []byte
}

var (
	fixtureOnce sync.Once
	fix         *fixture
	fixErr      error
)

func buildFixture() (*fixture, error) {
	cs, err := constraint.Compile(&preimage.Circuit{})
	if err != nil {
		return nil, err
	}
	srs, err := zkpipe.NewDevSRS(zkpipe.SRSSize(cs), big.NewInt(7))
	if err != nil {
		return nil, err
	}
	pk, vk, err := zkpipe.Setup(cs, srs)
	if err != nil {
		return nil, err
	}
	digest := preimage.Digest(fr.NewElement(189))
	res := &fixture{vk: vk, publics: preimage.Publics(digest)}
	for x, dst := range map[int64]*[]byte{189: &res.good, 199: &res.bad} {
		w, err := witness.Bind(cs, preimage.Assignment(big.NewInt(x), digest))
		if err != nil {
			return nil, err
		}
		proof, err := pk.Prove(w)
		if err != nil {
			return nil, err
		}
		if *dst, err = proof.MarshalBinary(); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func getFixture(t *testing.T) *fixture {
	t.Helper()
	fixtureOnce.Do(func() {
		fix, fixErr = buildFixture()
	})
	require.NoError(t, fixErr)
	return fix
}

func backends(t *testing.T, vk *zkpipe.Vk) []Backend {
	t.Helper()
	chain := onchain.NewChain(0)
	tx, err := DeployChain(chain, vk)
	require.NoError(t, err)
	return []Backend{
		NewNative(vk),
		tx,
		NewChain(chain, tx.Address(), Simulate()),
		Instrument(NewNative(vk)),
	}
}

func TestBackends(t *testing.T) {
	f := getFixture(t)
	ctx := context.Background()

	for _, b := range backends(t, f.vk) {
		t.Run(b.Name(), func(t *testing.T) {
			res, err := b.Verify(ctx, f.good, f.publics)
			require.NoError(t, err)
			require.True(t, res.Accepted, res.Reason)

			res, err = b.Verify(ctx, f.bad, f.publics)
			require.NoError(t, err)
			require.False(t, res.Accepted)
			require.NotEmpty(t, res.Reason)
		})
	}
}

func TestBackendsFailClosed(t *testing.T) {
	f := getFixture(t)
	ctx := context.Background()

	garbage := make([]byte, zkpipe.PROOF_SIZE)
	for i := range garbage {
		garbage[i] = byte(i * 31)
	}
	cases := map[string]struct {
		proof   []byte
		publics []fr.Element
	}{
		"nil proof":       {nil, f.publics},
		"short proof":     {f.good[:100], f.publics},
		"long proof":      {append(append([]byte(nil), f.good...), 0), f.publics},
		"garbage":         {garbage, f.publics},
		"no publics":      {f.good, nil},
		"too many public": {f.good, append(append([]fr.Element(nil), f.publics...), fr.One())},
	}
	for _, b := range backends(t, f.vk) {
		for name, tc := range cases {
			t.Run(b.Name()+"/"+name, func(t *testing.T) {
				res, err := b.Verify(ctx, tc.proof, tc.publics)
				require.NoError(t, err)
				require.False(t, res.Accepted)
				require.NotEmpty(t, res.Reason)
			})
		}
	}
}

func TestOnchainGasAndReceipt(t *testing.T) {
	f := getFixture(t)
	chain := onchain.NewChain(0)
	b, err := DeployChain(chain, f.vk)
	require.NoError(t, err)

	res, err := b.Verify(context.Background(), f.good, f.publics)
	require.NoError(t, err)
	require.True(t, res.Accepted)
	require.NotZero(t, res.GasUsed)
	require.NotZero(t, res.TxHash)

	res, err = b.Verify(context.Background(), f.bad, f.publics)
	require.NoError(t, err)
	require.Equal(t, onchain.REVERT_FAILED, res.Reason)

	starved := NewChain(chain, b.Address(), WithGas(100_000))
	res, err = starved.Verify(context.Background(), f.good, f.publics)
	require.NoError(t, err)
	require.False(t, res.Accepted)
	require.EqualValues(t, 100_000, res.GasUsed)
}

func TestNativeWithoutKey(t *testing.T) {
	f := getFixture(t)
	res, err := NewNative(nil).Verify(context.Background(), f.good, f.publics)
	require.NoError(t, err)
	require.False(t, res.Accepted)
}

func TestCancelledContext(t *testing.T) {
	f := getFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, b := range backends(t, f.vk) {
		_, err := b.Verify(ctx, f.good, f.publics)
		require.ErrorIs(t, err, context.Canceled)
	}
}

func TestUnknownContract(t *testing.T) {
	f := getFixture(t)
	chain := onchain.NewChain(0)
	for _, b := range []Backend{NewChain(chain, common.Address{0x42}), NewChain(chain, common.Address{0x42}, Simulate())} {
		_, err := b.Verify(context.Background(), f.good, f.publics)
		require.ErrorIs(t, err, onchain.ErrUnknownContract)
	}
}
