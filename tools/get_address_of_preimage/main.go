package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/eon-protocol/zkpipe"
	"github.com/eon-protocol/zkpipe/circuits/preimage"
	"github.com/eon-protocol/zkpipe/config"
	"github.com/eon-protocol/zkpipe/onchain"
)

func main() {
	cfg, err := config.Load(os.Getenv("ZKPIPE_CONFIG"))
	if err != nil {
		log.Fatalln(err)
	}
	_, vk, err := zkpipe.Compile(context.Background(), &preimage.Circuit{}, cfg.SRSSource())
	if err != nil {
		log.Fatalln(err)
	}
	addr := vk.Address()
	digest := vk.Digest()
	chain := onchain.NewChain(cfg.Chain.GasLimit)
	contract, err := onchain.DeployVerifier(chain, common.Address{}, vk)
	if err != nil {
		log.Fatalln(err)
	}
	fmt.Println("fingerprint", addr.Text(16))
	fmt.Println("digest", hex.EncodeToString(digest[:]))
	fmt.Println("verifier", contract.Hex())
}
