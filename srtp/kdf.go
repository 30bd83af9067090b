package srtp

import (
	"crypto/aes"
	"encoding/binary"
	"fmt"
)

// RFC 3711 §4.3.2 key derivation labels.
const (
	labelRTPEncryption  = 0x00
	labelRTPAuth        = 0x01
	labelRTPSalt        = 0x02
	labelRTCPEncryption = 0x03
	labelRTCPAuth       = 0x04
	labelRTCPSalt       = 0x05
)

// hmacSHA1KeyLen is the session authentication key size (RFC 3711 §8.2).
const hmacSHA1KeyLen = 20

// deriveKey runs the RFC 3711 AES-CM key derivation function: the label
// is XORed into the master salt to form the IV of an AES counter-mode
// keystream under the master key, and outLen bytes of that keystream
// become the session key. The key derivation rate is zero (single
// derivation per master key), so the index term vanishes.
func deriveKey(masterKey, masterSalt []byte, label byte, outLen int) ([]byte, error) {
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("kdf cipher: %w", err)
	}

	var iv [16]byte
	copy(iv[:], masterSalt)
	iv[7] ^= label

	out := make([]byte, 0, outLen)
	var ctr, ks [16]byte
	for i := uint16(0); len(out) < outLen; i++ {
		ctr = iv
		binary.BigEndian.PutUint16(ctr[14:16], i)
		block.Encrypt(ks[:], ctr[:])

		need := outLen - len(out)
		if need > len(ks) {
			need = len(ks)
		}
		out = append(out, ks[:need]...)
	}
	return out, nil
}
