package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastCipher keeps scrypt cheap in tests
func fastCipher() CipherConfig {
	cfg := DefaultCipherConfig()
	cfg.SCryptN = 16
	return cfg
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := []byte("test-key-material")
	tests := []struct {
		name      string
		plaintext []byte
	}{
		{name: "record", plaintext: []byte(`{"license_code":"ABCD-EFGH-IJKL-MNOP"}`)},
		{name: "empty", plaintext: []byte{}},
		{name: "large", plaintext: make([]byte, 64*1024)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Seal(tt.plaintext, key, fastCipher())
			require.NoError(t, err)
			assert.Equal(t, "NLK", string(env[:3]))

			got, err := Open(env, key, fastCipher())
			require.NoError(t, err)
			assert.Equal(t, len(tt.plaintext), len(got))
			assert.Equal(t, string(tt.plaintext), string(got))
		})
	}
}

func TestSealUsesFreshSaltAndNonce(t *testing.T) {
	key := []byte("test-key-material")
	a, err := Seal([]byte("same"), key, fastCipher())
	require.NoError(t, err)
	b, err := Seal([]byte("same"), key, fastCipher())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpenDetectsTampering(t *testing.T) {
	key := []byte("test-key-material")
	env, err := Seal([]byte(`{"license_code":"ABCD-EFGH-IJKL-MNOP"}`), key, fastCipher())
	require.NoError(t, err)

	for i := range env {
		mutated := append([]byte(nil), env...)
		mutated[i] ^= 0x01
		_, err := Open(mutated, key, fastCipher())
		assert.ErrorIs(t, err, ErrEnvelopeInvalid, "flipped byte %d", i)
	}

	for _, n := range []int{0, 3, 10, len(env) - 1} {
		_, err := Open(env[:n], key, fastCipher())
		assert.ErrorIs(t, err, ErrEnvelopeInvalid, "truncated to %d", n)
	}
}

func TestOpenWrongKey(t *testing.T) {
	env, err := Seal([]byte("payload"), []byte("key-one"), fastCipher())
	require.NoError(t, err)

	_, err = Open(env, []byte("key-two"), fastCipher())
	assert.ErrorIs(t, err, ErrEnvelopeInvalid)
}

func TestEmptyKeyMaterial(t *testing.T) {
	_, err := Seal([]byte("payload"), nil, fastCipher())
	assert.Error(t, err)
	_, err = Open([]byte("NLK\x01"), nil, fastCipher())
	assert.Error(t, err)
}

func TestCipherConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultCipherConfig().Validate())
	assert.Error(t, fastCipher().Validate())

	bad := DefaultCipherConfig()
	bad.NonceSize = 16
	assert.Error(t, bad.Validate())

	bad = DefaultCipherConfig()
	bad.SCryptKeyLen = 16
	assert.Error(t, bad.Validate())
}

func TestSecureCompare(t *testing.T) {
	assert.True(t, SecureCompare([]byte("ABCD"), []byte("ABCD")))
	assert.False(t, SecureCompare([]byte("ABCD"), []byte("ABCE")))
	assert.False(t, SecureCompare([]byte("ABCD"), []byte("ABC")))
}
