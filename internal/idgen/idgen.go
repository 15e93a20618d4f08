// Package idgen generates hash-based obligation IDs.
//
// IDs look like obl-7k2m9x: a fixed prefix plus a base36 hash of the
// obligation's identifying content. Hash IDs avoid the coordination a
// sequential counter would need and stay stable across export/import.
package idgen

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Prefix is the fixed obligation ID prefix.
const Prefix = "obl"

// DefaultLength is the base36 hash length appended to the prefix.
const DefaultLength = 6

// base36Alphabet is the character set for base36 encoding (0-9, a-z).
const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// EncodeBase36 converts a byte slice to a base36 string of the given
// length, zero-padded on the left and truncated to the least significant
// digits when longer.
func EncodeBase36(data []byte, length int) string {
	num := new(big.Int).SetBytes(data)

	base := big.NewInt(36)
	zero := big.NewInt(0)
	mod := new(big.Int)

	chars := make([]byte, 0, length)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		chars = append(chars, base36Alphabet[mod.Int64()])
	}

	var result strings.Builder
	for i := len(chars) - 1; i >= 0; i-- {
		result.WriteByte(chars[i])
	}

	str := result.String()
	if len(str) < length {
		str = strings.Repeat("0", length-len(str)) + str
	}
	if len(str) > length {
		str = str[len(str)-length:]
	}
	return str
}

// GenerateID creates a hash-based obligation ID from identifying content.
// The nonce exists for collision retry: callers that hit a duplicate key
// bump it and regenerate.
func GenerateID(userID, obligationType, title string, timestamp time.Time, nonce int) string {
	content := fmt.Sprintf("%s|%s|%s|%d|%d", userID, obligationType, title, timestamp.UnixNano(), nonce)
	hash := sha256.Sum256([]byte(content))

	// 4 bytes = 32 bits, slightly more entropy than 6 base36 chars hold.
	shortHash := EncodeBase36(hash[:4], DefaultLength)
	return fmt.Sprintf("%s-%s", Prefix, shortHash)
}
