// Package randsecret generates the random credential strings stored in
// cluster secrets throughout the provisioning pipeline (spec §9): at least
// 16 random bytes, base64-rendered with non-alphanumerics stripped.
package randsecret

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
)

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// minBytes is the spec's floor: 16 bytes is 128 bits, comfortably above the
// "at least 96 bits of entropy" the database workload calls for (spec §4.6).
const minBytes = 16

// Generate returns a random credential string of n random bytes (an n below
// 16 is raised to 16), base64-rendered with non-alphanumeric characters stripped.
func Generate(n int) (string, error) {
	if n < minBytes {
		n = minBytes
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating random secret: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(buf)
	return nonAlnum.ReplaceAllString(encoded, ""), nil
}
