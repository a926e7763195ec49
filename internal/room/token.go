package room

import (
	"crypto/rand"
	"log"
	"math/big"
	"strings"
)

// Notes is the vocabulary room tokens are built from.
var Notes = []string{"do", "re", "mi", "fa", "sol", "la", "si"}

// TokenLength is the number of notes in a room token.
const TokenLength = 3

// RandomToken creates a random, memorable room token using note names.
// Format: note-note-note (e.g., "do-mi-sol")
func RandomToken() string {
	tune := make([]string, TokenLength)
	for i := range tune {
		tune[i] = Notes[randomIndex(len(Notes))]
	}
	return strings.Join(tune, "-")
}

// Valid reports whether token is TokenLength known notes joined by '-'.
func Valid(token string) bool {
	parts := strings.Split(token, "-")
	if len(parts) != TokenLength {
		return false
	}
	for _, p := range parts {
		if !isNote(p) {
			return false
		}
	}
	return true
}

// Normalize lowercases and trims a user supplied token. It accepts
// space or comma separated notes as well ("do mi sol").
func Normalize(input string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == '-' || r == ' ' || r == ',' || r == '#'
	})
	return strings.Join(fields, "-")
}

func isNote(s string) bool {
	for _, n := range Notes {
		if n == s {
			return true
		}
	}
	return false
}

// randomIndex returns a cryptographically secure random index for a slice of given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		log.Panic("Failed to generate random index:", err)
	}
	return int(n.Int64())
}
