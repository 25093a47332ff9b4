package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/spf13/cobra"

	"github.com/eon-protocol/zkpipe"
	"github.com/eon-protocol/zkpipe/circuits/preimage"
	"github.com/eon-protocol/zkpipe/constraint"
	"github.com/eon-protocol/zkpipe/onchain"
	"github.com/eon-protocol/zkpipe/pool"
	"github.com/eon-protocol/zkpipe/store"
	"github.com/eon-protocol/zkpipe/verifier"
	"github.com/eon-protocol/zkpipe/witness"
)

var ErrRejected = errors.New("proof rejected")

// circuit loads the stored constraint system, compiling it on first use.
func (a *app) circuit(ctx context.Context) (*constraint.System, error) {
	data, err := a.store.Get(ctx, store.KEY_CIRCUIT)
	if errors.Is(err, store.ErrNotFound) {
		return a.compile(ctx)
	}
	if err != nil {
		return nil, err
	}
	cs := new(constraint.System)
	if err := cs.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("stored circuit: %w", err)
	}
	return cs, nil
}

func (a *app) compile(ctx context.Context) (*constraint.System, error) {
	cs, err := constraint.Compile(&preimage.Circuit{})
	if err != nil {
		return nil, err
	}
	if err := store.Save(ctx, a.store, store.KEY_CIRCUIT, cs); err != nil {
		return nil, err
	}
	return cs, nil
}

func (a *app) compileCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile the preimage circuit and store its constraint system",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cs, err := a.compile(cmd.Context())
			if err != nil {
				return err
			}
			if out != "" {
				data, err := cs.MarshalBinary()
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return err
				}
			}
			digest, err := cs.Digest()
			if err != nil {
				return err
			}
			size := cs.Size()
			a.out(cmd, "gates=%d wires=%d public=%d secret=%d domain=%d", size.Gates, size.Wires, size.Public, size.Secret, size.Domain)
			a.out(cmd, "circuit digest %s", digest.Hex())
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "also write the serialized circuit to this file")
	return cmd
}

func (a *app) setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Derive the proving and verification keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cs, err := a.circuit(ctx)
			if err != nil {
				return err
			}
			srs, err := zkpipe.LoadSRS(ctx, a.cfg.SRSSource(), zkpipe.SRSSize(cs))
			if err != nil {
				return err
			}
			pk, vk, err := zkpipe.Setup(cs, srs)
			if err != nil {
				return err
			}
			if err := store.Save(ctx, a.store, store.KEY_PK, pk); err != nil {
				return err
			}
			if err := store.Save(ctx, a.store, store.KEY_VK, vk); err != nil {
				return err
			}
			digest := vk.Digest()
			a.out(cmd, "vk digest 0x%s", hex.EncodeToString(digest[:]))
			return nil
		},
	}
}

func parseDigest(s string) (res [preimage.DIGEST_SIZE]byte, err error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return res, err
	}
	if len(b) != len(res) {
		return res, fmt.Errorf("digest is %d bytes, want %d", len(b), len(res))
	}
	copy(res[:], b)
	return res, nil
}

func (a *app) proveCmd() *cobra.Command {
	var (
		x, result, id string
		printPayload  bool
	)
	cmd := &cobra.Command{
		Use:   "prove",
		Short: "Prove knowledge of x hashing to result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			value, ok := new(big.Int).SetString(x, 0)
			if !ok {
				return fmt.Errorf("x: %q is not an integer", x)
			}
			var digest [preimage.DIGEST_SIZE]byte
			if result == "" {
				var e fr.Element
				e.SetBigInt(value)
				digest = preimage.Digest(e)
			} else {
				var err error
				if digest, err = parseDigest(result); err != nil {
					return fmt.Errorf("result: %w", err)
				}
			}

			pk := new(zkpipe.Pk)
			if err := store.Load(ctx, a.store, store.KEY_PK, pk); err != nil {
				return fmt.Errorf("load proving key (run setup first): %w", err)
			}
			p := pool.New(pk,
				pool.WithWorkers(a.cfg.Prover.Workers),
				pool.WithProverOptions(a.cfg.ProverOptions()...),
				pool.WithBindOptions(witness.WithStrict(a.cfg.Prover.Strict)),
			)
			outputs, err := p.Prove(ctx, []pool.Job{{ID: id, Inputs: preimage.Inputs(value, digest)}})
			if err != nil {
				return err
			}
			res := outputs[0]
			if res.Err != nil {
				return res.Err
			}
			if !res.Satisfied {
				a.log.Warn().Str("id", id).Msg("x does not hash to result; the proof will be rejected")
			}
			proof, err := res.Proof.MarshalBinary()
			if err != nil {
				return err
			}
			payload := onchain.Payload(proof, res.Publics)
			if err := a.store.Put(ctx, store.ProofKey(id), payload); err != nil {
				return err
			}
			a.out(cmd, "proof %s stored (%d bytes, %d public inputs)", id, len(proof), len(res.Publics))
			if printPayload {
				a.out(cmd, "0x%s", hex.EncodeToString(payload))
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&x, "x", "", "secret preimage")
	flags.StringVar(&result, "result", "", "public digest as hex; defaults to the digest of x")
	flags.StringVar(&id, "id", "latest", "proof name in the store")
	flags.BoolVar(&printPayload, "print", false, "print the verify(bytes) payload as hex")
	_ = cmd.MarkFlagRequired("x")
	return cmd
}

// splitPayload separates the public inputs from the proof bytes.
func splitPayload(payload []byte, np int) ([]fr.Element, []byte, error) {
	if len(payload) < np*fr.Bytes {
		return nil, nil, fmt.Errorf("payload is %d bytes, want at least %d", len(payload), np*fr.Bytes)
	}
	publics := make([]fr.Element, np)
	for i := range publics {
		v, err := fr.BigEndian.Element((*[fr.Bytes]byte)(payload[i*fr.Bytes : (i+1)*fr.Bytes]))
		if err != nil {
			return nil, nil, fmt.Errorf("public input %d: %w", i, err)
		}
		publics[i] = v
	}
	return publics, payload[np*fr.Bytes:], nil
}

func (a *app) verifyCmd() *cobra.Command {
	var (
		id, payloadHex string
		onchainFlag    bool
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a stored or given proof natively or on the simulated chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			vk := new(zkpipe.Vk)
			if err := store.Load(ctx, a.store, store.KEY_VK, vk); err != nil {
				return fmt.Errorf("load verification key (run setup first): %w", err)
			}
			var payload []byte
			var err error
			if payloadHex != "" {
				payload, err = hex.DecodeString(strings.TrimPrefix(payloadHex, "0x"))
			} else {
				payload, err = a.store.Get(ctx, store.ProofKey(id))
			}
			if err != nil {
				return err
			}
			publics, proof, err := splitPayload(payload, int(vk.NP))
			if err != nil {
				return err
			}

			var backend verifier.Backend = verifier.NewNative(vk)
			if onchainFlag {
				if backend, err = verifier.DeployChain(onchain.NewChain(a.cfg.Chain.GasLimit), vk); err != nil {
					return err
				}
			}
			res, err := verifier.Instrument(backend).Verify(ctx, proof, publics)
			if err != nil {
				return err
			}
			if !res.Accepted {
				a.out(cmd, "rejected (%s): %s", backend.Name(), res.Reason)
				return ErrRejected
			}
			if res.GasUsed > 0 {
				a.out(cmd, "accepted (%s, gas %d)", backend.Name(), res.GasUsed)
			} else {
				a.out(cmd, "accepted (%s)", backend.Name())
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&id, "id", "latest", "proof name in the store")
	flags.StringVar(&payloadHex, "payload", "", "verify(bytes) payload as hex instead of a stored proof")
	flags.BoolVar(&onchainFlag, "onchain", false, "verify with the contract on a simulated chain")
	return cmd
}

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the circuit size, the verification key and the stored proofs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cs, err := a.circuit(ctx)
			if err != nil {
				return err
			}
			size := cs.Size()
			a.out(cmd, "circuit: gates=%d wires=%d public=%d secret=%d domain=%d", size.Gates, size.Wires, size.Public, size.Secret, size.Domain)
			a.out(cmd, "srs: %d powers", zkpipe.SRSSize(cs))

			vk := new(zkpipe.Vk)
			switch err := store.Load(ctx, a.store, store.KEY_VK, vk); {
			case errors.Is(err, store.ErrNotFound):
				a.out(cmd, "vk: none")
			case err != nil:
				return err
			default:
				digest := vk.Digest()
				a.out(cmd, "vk: digest=0x%s public=%d domain=%d", hex.EncodeToString(digest[:]), vk.NP, vk.Size())
			}

			keys, err := a.store.List(ctx, store.PREFIX_PROOF)
			if err != nil {
				return err
			}
			a.out(cmd, "proofs: %d", len(keys))
			for _, k := range keys {
				a.out(cmd, "  %s", strings.TrimSuffix(strings.TrimPrefix(k, store.PREFIX_PROOF), ".bin"))
			}
			return nil
		},
	}
}

func (a *app) srsCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "srs",
		Short: "Fetch or generate the reference string, validate it and print its sha256",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cs, err := a.circuit(ctx)
			if err != nil {
				return err
			}
			src := a.cfg.SRSSource()
			srs, err := zkpipe.LoadSRS(ctx, src, zkpipe.SRSSize(cs))
			if err != nil {
				return err
			}
			if out == "" {
				out = src.Path
			}
			if out == "" {
				return errors.New("no output path: set srs.path or --out")
			}
			if out != src.Path {
				if err := zkpipe.WriteSRS(out, srs); err != nil {
					return err
				}
			}
			data, err := os.ReadFile(out)
			if err != nil {
				return err
			}
			sum := sha256.Sum256(data)
			a.out(cmd, "%s: %d powers, sha256 %s", out, len(srs.Pk.G1), hex.EncodeToString(sum[:]))
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write the reference string here (default srs.path)")
	return cmd
}
