package common

import (
	"encoding/binary"
	"hash/fnv"
	"strconv"
)

// Fingerprint is a 64-bit content identity for resolved shader source text.
// Two sources with equal fingerprints are treated as the same logical input;
// caching and rebuild-skipping decisions key off this value.
type Fingerprint uint64

// FingerprintString computes the FNV-1a fingerprint of a string.
//
// Parameters:
//   - s: the text to fingerprint
//
// Returns:
//   - Fingerprint: the 64-bit FNV-1a hash of s
func FingerprintString(s string) Fingerprint {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return Fingerprint(h.Sum64())
}

// FingerprintBytes computes the FNV-1a fingerprint of a byte slice.
//
// Parameters:
//   - b: the bytes to fingerprint
//
// Returns:
//   - Fingerprint: the 64-bit FNV-1a hash of b
func FingerprintBytes(b []byte) Fingerprint {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return Fingerprint(h.Sum64())
}

// CombineFingerprints folds several fingerprints into one stable value,
// order-sensitively. Used to derive a whole-program identity from its
// per-stage fingerprints.
//
// Parameters:
//   - fps: the fingerprints to fold, in a fixed order
//
// Returns:
//   - Fingerprint: the combined fingerprint
func CombineFingerprints(fps ...Fingerprint) Fingerprint {
	h := fnv.New64a()
	var buf [8]byte
	for _, fp := range fps {
		binary.LittleEndian.PutUint64(buf[:], uint64(fp))
		_, _ = h.Write(buf[:])
	}
	return Fingerprint(h.Sum64())
}

// String renders the fingerprint as fixed-width hex for logs and keys.
//
// Returns:
//   - string: 16 hex digits
func (f Fingerprint) String() string {
	const hexDigits = 16
	s := strconv.FormatUint(uint64(f), 16)
	for len(s) < hexDigits {
		s = "0" + s
	}
	return s
}
