package crypto

import "io"

// SetRandReaderForTesting replaces the random source and returns a restore function.
// The package is internal, so only this module's tests can reach it.
func SetRandReaderForTesting(r io.Reader) func() {
	original := randReader
	randReader = r
	return func() { randReader = original }
}
