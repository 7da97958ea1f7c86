// Package common provides small encoding helpers shared across the
// wallet engine's packages, kept deliberately free of any dependency on
// the rest of the module.
package common

import (
	"crypto/rand"
	"encoding/hex"
)

// HexToBytes decodes a hex string, tolerating an optional "0x"/"0X"
// prefix.
func HexToBytes(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	return hex.DecodeString(s)
}

// BytesToHex encodes b as a "0x"-prefixed lowercase hex string.
func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// RandomBytes fills and returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}
