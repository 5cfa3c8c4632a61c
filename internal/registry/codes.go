package registry

import (
	"crypto/rand"
	"fmt"
)

// codeAlphabet is the restricted character set for room codes: digits and
// uppercase letters minus the visually ambiguous 0/O and 1/I. Exactly 32
// characters, so a random byte masked to 5 bits indexes it uniformly.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is the fixed length of every room code.
const CodeLength = 6

// generateCode produces one random candidate code. Uniqueness against live
// rooms is the caller's responsibility.
func generateCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to draw room code: %w", err)
	}
	code := make([]byte, CodeLength)
	for i, b := range buf {
		code[i] = codeAlphabet[b&0x1f]
	}
	return string(code), nil
}

// newCode draws candidates until one is not taken. With 32^6 possible codes
// and at most a few hundred live rooms the loop terminates in O(1) amortized
// tries; codes are reusable once their room is destroyed.
func newCode(taken func(string) bool) (string, error) {
	for {
		code, err := generateCode()
		if err != nil {
			return "", err
		}
		if !taken(code) {
			return code, nil
		}
	}
}
