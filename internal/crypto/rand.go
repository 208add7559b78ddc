package crypto

import (
	"crypto/rand"
	"fmt"
	"io"
)

// randReader is the random source for keys and nonces. Tests may replace it.
var randReader io.Reader = rand.Reader

// RandReader returns the random source used for key and nonce generation.
func RandReader() io.Reader {
	return randReader
}

func readRandom(b []byte) error {
	if _, err := io.ReadFull(randReader, b); err != nil {
		return fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}
	return nil
}
