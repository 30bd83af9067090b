package srtp

// Profile selects the cryptographic transform and its key, salt and tag
// geometry.
type Profile int

const (
	// ProfileAES128CMSHA1_80 is AES-128 counter mode with a 10-byte
	// HMAC-SHA1 tag (the RFC 3711 default).
	ProfileAES128CMSHA1_80 Profile = iota
	// ProfileAES128CMSHA1_32 is AES-128 counter mode with a 4-byte tag.
	ProfileAES128CMSHA1_32
	// ProfileAEADAES128GCM is AEAD AES-128-GCM (RFC 7714).
	ProfileAEADAES128GCM
	// ProfileAEADAES256GCM is AEAD AES-256-GCM (RFC 7714).
	ProfileAEADAES256GCM
	// ProfileAEADChaCha20Poly1305 is AEAD ChaCha20-Poly1305 using the
	// RFC 7714 nonce construction.
	ProfileAEADChaCha20Poly1305
)

// KeyLen returns the master/session key length in bytes.
func (p Profile) KeyLen() int {
	switch p {
	case ProfileAEADAES256GCM, ProfileAEADChaCha20Poly1305:
		return 32
	default:
		return 16
	}
}

// SaltLen returns the master/session salt length in bytes.
func (p Profile) SaltLen() int {
	switch p {
	case ProfileAES128CMSHA1_80, ProfileAES128CMSHA1_32:
		return 14
	default:
		return 12
	}
}

// TagLen returns the authentication tag length in bytes.
func (p Profile) TagLen() int {
	switch p {
	case ProfileAES128CMSHA1_80:
		return 10
	case ProfileAES128CMSHA1_32:
		return 4
	default:
		return 16
	}
}

// aead reports whether the profile is a combined encrypt+auth transform.
func (p Profile) aead() bool {
	switch p {
	case ProfileAEADAES128GCM, ProfileAEADAES256GCM, ProfileAEADChaCha20Poly1305:
		return true
	default:
		return false
	}
}

func (p Profile) valid() bool {
	switch p {
	case ProfileAES128CMSHA1_80, ProfileAES128CMSHA1_32,
		ProfileAEADAES128GCM, ProfileAEADAES256GCM, ProfileAEADChaCha20Poly1305:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer for logging.
func (p Profile) String() string {
	switch p {
	case ProfileAES128CMSHA1_80:
		return "AES_128_CM_SHA1_80"
	case ProfileAES128CMSHA1_32:
		return "AES_128_CM_SHA1_32"
	case ProfileAEADAES128GCM:
		return "AEAD_AES_128_GCM"
	case ProfileAEADAES256GCM:
		return "AEAD_AES_256_GCM"
	case ProfileAEADChaCha20Poly1305:
		return "AEAD_CHACHA20_POLY1305"
	default:
		return "UNKNOWN"
	}
}
