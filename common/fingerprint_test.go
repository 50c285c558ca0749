package common

import (
	"hash/fnv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintIdentity(t *testing.T) {
	a := FingerprintString("fn main() {}")
	b := FingerprintString("fn main() {}")
	c := FingerprintString("fn main() { }")

	assert.Equal(t, a, b, "identical text must fingerprint identically")
	assert.NotEqual(t, a, c, "differing text must fingerprint differently")
	assert.Equal(t, a, FingerprintBytes([]byte("fn main() {}")))
}

func TestFingerprintIsStdlibFNV1a(t *testing.T) {
	h := fnv.New64a()
	_, _ = h.Write([]byte("fn main() {}"))
	assert.Equal(t, Fingerprint(h.Sum64()), FingerprintString("fn main() {}"))
}

func TestCombineFingerprintsOrderSensitive(t *testing.T) {
	a := FingerprintString("vertex")
	b := FingerprintString("fragment")

	assert.Equal(t, CombineFingerprints(a, b), CombineFingerprints(a, b))
	assert.NotEqual(t, CombineFingerprints(a, b), CombineFingerprints(b, a))
}

func TestFingerprintStringWidth(t *testing.T) {
	assert.Len(t, Fingerprint(0).String(), 16)
	assert.Len(t, Fingerprint(1).String(), 16)
	assert.Equal(t, "0000000000000001", Fingerprint(1).String())
}
