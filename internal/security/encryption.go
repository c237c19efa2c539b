package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// Envelope layout: magic | version | salt | nonce | ciphertext||tag.
// The header (magic through nonce) is authenticated as GCM additional data.
const (
	envelopeMagic   = "NLK"
	envelopeVersion = byte(1)
)

// ErrEnvelopeInvalid reports a blob that is not a well-formed envelope or
// fails authentication under the configured key.
var ErrEnvelopeInvalid = errors.New("invalid or tampered envelope")

// CipherConfig defines key derivation and AES-GCM parameters
type CipherConfig struct {
	SCryptN      int // CPU/memory cost parameter (32768 minimum in production)
	SCryptR      int
	SCryptP      int
	SCryptKeyLen int // 32 for AES-256
	SaltSize     int
	NonceSize    int // 96-bit nonce for GCM
}

// DefaultCipherConfig returns the production parameters
func DefaultCipherConfig() CipherConfig {
	return CipherConfig{
		SCryptN:      32768,
		SCryptR:      8,
		SCryptP:      1,
		SCryptKeyLen: 32,
		SaltSize:     16,
		NonceSize:    12,
	}
}

// Validate enforces the production minimums
func (c CipherConfig) Validate() error {
	if c.SCryptN < 32768 {
		return errors.New("SCryptN must be at least 32768")
	}
	if c.SCryptR < 8 {
		return errors.New("SCryptR must be at least 8")
	}
	if c.SCryptP < 1 {
		return errors.New("SCryptP must be at least 1")
	}
	if c.SCryptKeyLen != 32 {
		return errors.New("SCryptKeyLen must be 32 for AES-256")
	}
	if c.SaltSize < 16 {
		return errors.New("SaltSize must be at least 16")
	}
	if c.NonceSize != 12 {
		return errors.New("NonceSize must be 12 for AES-GCM")
	}
	return nil
}

func (c CipherConfig) headerLen() int {
	return len(envelopeMagic) + 1 + c.SaltSize + c.NonceSize
}

// Seal encrypts plaintext under a key derived from keyMaterial and a fresh
// random salt, and returns the opaque envelope.
func Seal(plaintext, keyMaterial []byte, cfg CipherConfig) ([]byte, error) {
	if len(keyMaterial) == 0 {
		return nil, errors.New("key material cannot be empty")
	}

	header := make([]byte, cfg.headerLen())
	copy(header, envelopeMagic)
	header[len(envelopeMagic)] = envelopeVersion

	salt := header[len(envelopeMagic)+1 : len(envelopeMagic)+1+cfg.SaltSize]
	nonce := header[len(envelopeMagic)+1+cfg.SaltSize:]
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	gcm, err := newGCM(keyMaterial, salt, cfg)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(header), len(header)+len(plaintext)+gcm.Overhead())
	copy(out, header)
	return gcm.Seal(out, nonce, plaintext, header), nil
}

// Open authenticates and decrypts an envelope produced by Seal. Any
// structural or authentication failure wraps ErrEnvelopeInvalid.
func Open(envelope, keyMaterial []byte, cfg CipherConfig) ([]byte, error) {
	if len(keyMaterial) == 0 {
		return nil, errors.New("key material cannot be empty")
	}

	hl := cfg.headerLen()
	if len(envelope) < hl+16 {
		return nil, fmt.Errorf("%w: envelope too short (%d bytes)", ErrEnvelopeInvalid, len(envelope))
	}
	if string(envelope[:len(envelopeMagic)]) != envelopeMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrEnvelopeInvalid)
	}
	if v := envelope[len(envelopeMagic)]; v != envelopeVersion {
		return nil, fmt.Errorf("%w: unsupported envelope version %d", ErrEnvelopeInvalid, v)
	}

	header := envelope[:hl]
	salt := header[len(envelopeMagic)+1 : len(envelopeMagic)+1+cfg.SaltSize]
	nonce := header[len(envelopeMagic)+1+cfg.SaltSize:]

	gcm, err := newGCM(keyMaterial, salt, cfg)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, envelope[hl:], header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelopeInvalid, err)
	}
	return plaintext, nil
}

func newGCM(keyMaterial, salt []byte, cfg CipherConfig) (cipher.AEAD, error) {
	key, err := scrypt.Key(keyMaterial, salt, cfg.SCryptN, cfg.SCryptR, cfg.SCryptP, cfg.SCryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, cfg.NonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// SecureCompare performs constant-time comparison to prevent timing attacks
func SecureCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
