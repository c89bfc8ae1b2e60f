package utils

import (
	"crypto/sha256"
	"fmt"
)

// HashContent produces the content hash used for exact-duplicate detection
// and analysis-cache keys.
func HashContent(input string) string {
	hash := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%x", hash)
}
