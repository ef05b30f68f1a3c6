// Package keygen produces license key strings.
package keygen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const groupLen = 4

// Generate creates a key in the format PREFIX-XXXX-XXXX-... with the given
// number of upper-case hex groups. An empty prefix yields the groups alone.
func Generate(prefix string, groups int) (string, error) {
	if groups < 1 {
		return "", fmt.Errorf("generate key: groups must be positive, got %d", groups)
	}
	b := make([]byte, groups*groupLen/2)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	h := strings.ToUpper(hex.EncodeToString(b))

	parts := make([]string, 0, groups+1)
	if prefix != "" {
		parts = append(parts, strings.ToUpper(prefix))
	}
	for i := 0; i < groups; i++ {
		parts = append(parts, h[i*groupLen:(i+1)*groupLen])
	}
	return strings.Join(parts, "-"), nil
}

// License generates a four-group key for a directly issued license.
func License() (string, error) {
	return Generate("CLP", 4)
}

// Resold generates a key for a reseller sale.
func Resold() (string, error) {
	return Generate("RS", 4)
}
