package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"math/big"
	"os"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/eon-protocol/zkpipe"
	"github.com/eon-protocol/zkpipe/circuits/preimage"
	"github.com/eon-protocol/zkpipe/config"
	"github.com/eon-protocol/zkpipe/onchain"
	"github.com/eon-protocol/zkpipe/witness"
)

func main() {
	if len(os.Args) != 2 && len(os.Args) != 3 {
		log.Fatalln("usage:", os.Args[0], "<x>", "[result]")
	}
	cfg, err := config.Load(os.Getenv("ZKPIPE_CONFIG"))
	if err != nil {
		log.Fatalln(err)
	}
	pk, _, err := zkpipe.Compile(context.Background(), &preimage.Circuit{}, cfg.SRSSource())
	if err != nil {
		log.Fatalln(err)
	}
	x, ok := new(big.Int).SetString(os.Args[1], 0)
	if !ok {
		log.Fatalln("invalid x:", os.Args[1])
	}
	var e fr.Element
	e.SetBigInt(x)
	digest := preimage.Digest(e)
	if len(os.Args) == 3 {
		b, err := hex.DecodeString(strings.TrimPrefix(os.Args[2], "0x"))
		if err != nil || len(b) != preimage.DIGEST_SIZE {
			log.Fatalln("invalid result:", os.Args[2])
		}
		copy(digest[:], b)
	}
	w, err := witness.Bind(pk.ConstraintSystem(), preimage.Assignment(x, digest))
	if err != nil {
		log.Fatalln(err)
	}
	proof, err := pk.Prove(w, cfg.ProverOptions()...)
	if err != nil {
		log.Fatalln(err)
	}
	data, err := proof.MarshalBinary()
	if err != nil {
		log.Fatalln(err)
	}
	// the verify(bytes) argument: publics ‖ proof
	fmt.Println(hex.EncodeToString(onchain.Payload(data, w.Public())))
}
