package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"os"

	"github.com/eon-protocol/zkpipe"
	"github.com/eon-protocol/zkpipe/circuits/preimage"
	"github.com/eon-protocol/zkpipe/config"
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
	enc := hex.NewEncoder(os.Stdout)
	if _, err := vk.WriteTo(enc); err != nil {
		log.Fatalln(err)
	}
	fmt.Println()
}
