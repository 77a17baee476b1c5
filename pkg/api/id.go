package api

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	markerIDLength = 16

	// Crockford base32 alphabet, matching the id charset embedded in
	// transcript markers.
	markerCharset = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
)

var markerIDPattern = regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]{16}$`)

// NewMarkerID generates a 16-character Crockford base32 identifier for a
// persisted transcript item.
func NewMarkerID() string {
	return randomFromCharset(markerCharset, markerIDLength)
}

// ValidateMarkerID checks whether the given string is a well-formed marker id.
func ValidateMarkerID(id string) bool {
	return markerIDPattern.MatchString(id)
}

func randomFromCharset(charset string, n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
