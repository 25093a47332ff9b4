package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"math/bits"
	"os"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/kzg"

	"github.com/eon-protocol/zkpipe"
)

func main() {
	file, err := io.ReadAll(os.Stdin)
	if err != nil {
		log.Fatalln(err)
	}
	var srs kzg.SRS
	if _, err := srs.ReadFrom(bytes.NewReader(file)); err != nil {
		log.Fatalln("invalid srs file;", "size:", len(file), err)
	}
	size := uint64(len(srs.Pk.G1))
	if err := zkpipe.ValidateSRS(&srs, size); err != nil {
		log.Fatalln(err)
	}
	sum := sha256.Sum256(file)
	fmt.Println("sha256", "(", zkpipe.SRS_FILE, ")", "=", hex.EncodeToString(sum[:]))
	if size > zkpipe.SRS_EXTRA {
		domain := uint64(1) << (bits.Len64(size-zkpipe.SRS_EXTRA) - 1)
		fmt.Println("powers", size, "max domain", domain)
	}
}
