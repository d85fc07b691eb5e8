package rooms

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// codeAlphabet leaves out 0, O, 1, I and L so codes can be read aloud.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	codeLength   = 4
	codeAttempts = 10
)

var alphabetSize = big.NewInt(int64(len(codeAlphabet)))

// NewCode returns a random join code.
func NewCode() (string, error) {
	code := make([]byte, codeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("reading random index: %w", err)
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// NormalizeCode maps user input onto the stored form of a code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// uniqueCode draws codes until taken reports one as free.
func uniqueCode(taken func(string) bool) (string, error) {
	for range codeAttempts {
		code, err := NewCode()
		if err != nil {
			return "", err
		}
		if !taken(code) {
			return code, nil
		}
	}
	return "", fmt.Errorf("no free room code after %d attempts", codeAttempts)
}
