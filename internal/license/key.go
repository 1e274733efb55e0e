package license

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// KeyBytes is the entropy of a license key. Keys are hex encoded.
const KeyBytes = 24

var keyValidator = validator.New()

// GenerateKey returns a new random license key
func GenerateKey() (string, error) {
	buf := make([]byte, KeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate license key: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

// ValidateKey checks the key format
func ValidateKey(key string) error {
	if err := keyValidator.Var(key, "required,hexadecimal,len=48,uppercase"); err != nil {
		return fmt.Errorf("malformed license key: %w", err)
	}
	return nil
}
