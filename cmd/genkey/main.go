package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

func main() {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}

	fmt.Printf("Public key (hex):  %s\n", hex.EncodeToString(pub))
	fmt.Printf("Private key (hex): %s\n", hex.EncodeToString(priv))
}
