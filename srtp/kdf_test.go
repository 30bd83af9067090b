package srtp

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RFC 3711 appendix B.3 key derivation test vectors.
func TestDeriveKeyReferenceVectors(t *testing.T) {
	masterKey, err := hex.DecodeString("E1F97A0D3E018BE0D64FA32C06DE4139")
	require.NoError(t, err)
	masterSalt, err := hex.DecodeString("0EC675AD498AFEEBB6960B3AABE6")
	require.NoError(t, err)

	tests := []struct {
		name     string
		label    byte
		outLen   int
		expected string
	}{
		{
			name:     "Cipher key",
			label:    labelRTPEncryption,
			outLen:   16,
			expected: "c61e7a93744f39ee10734afe3ff7a087",
		},
		{
			name:     "Auth key",
			label:    labelRTPAuth,
			outLen:   20,
			expected: "cebe321f6ff7716b6fd4ab49af256a156d38baa4",
		},
		{
			name:     "Cipher salt",
			label:    labelRTPSalt,
			outLen:   14,
			expected: "30cbbc08863d8c85d49db34a9ae1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := deriveKey(masterKey, masterSalt, tt.label, tt.outLen)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, hex.EncodeToString(out))
		})
	}
}

func TestDeriveKeyDistinctLabels(t *testing.T) {
	masterKey := make([]byte, 16)
	masterSalt := make([]byte, 14)
	for i := range masterKey {
		masterKey[i] = byte(i)
	}

	seen := map[string]byte{}
	for label := byte(labelRTPEncryption); label <= labelRTCPSalt; label++ {
		out, err := deriveKey(masterKey, masterSalt, label, 16)
		require.NoError(t, err)
		key := hex.EncodeToString(out)
		prev, dup := seen[key]
		assert.False(t, dup, "label %d collides with label %d", label, prev)
		seen[key] = label
	}
}

func TestDeriveKeyBadMasterKey(t *testing.T) {
	_, err := deriveKey(make([]byte, 5), make([]byte, 14), labelRTPEncryption, 16)
	assert.Error(t, err)
}
