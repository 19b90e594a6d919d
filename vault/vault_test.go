package vault

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMasterKey = "0123456789abcdef0123456789abcdef-test"

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := New(testMasterKey, 10)
	require.NoError(t, err)
	return v
}

func TestNewRejectsShortMasterKey(t *testing.T) {
	_, err := New("too-short", 10)
	require.ErrorIs(t, err, ErrMasterKey)

	_, err = New("", 10)
	require.ErrorIs(t, err, ErrMasterKey)
}

func TestNewRejectsBadBcryptCost(t *testing.T) {
	_, err := New(testMasterKey, 99)
	require.Error(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := newTestVault(t)

	for _, secret := range []string{"JBSWY3DPEHPK3PXP", "x", strings.Repeat("s", 512)} {
		blob, err := v.Encrypt(secret)
		require.NoError(t, err)

		got, err := v.Decrypt(blob)
		require.NoError(t, err)
		assert.Equal(t, secret, got)
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	v := newTestVault(t)

	a, err := v.Encrypt("same-secret")
	require.NoError(t, err)
	b, err := v.Encrypt("same-secret")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDecryptFailsClosedOnTamper(t *testing.T) {
	v := newTestVault(t)

	blob, err := v.Encrypt("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	tampered := append([]byte(nil), blob...)
	tampered[len(tampered)-1] ^= 0x01

	_, err = v.Decrypt(tampered)
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestDecryptRejectsMalformedBlobs(t *testing.T) {
	v := newTestVault(t)

	for _, blob := range [][]byte{nil, {}, {blobVersion1}, {0xff, 1, 2, 3}, make([]byte, 8)} {
		_, err := v.Decrypt(blob)
		assert.ErrorIs(t, err, ErrDecrypt)
	}
}

func TestDecryptRejectsForeignKey(t *testing.T) {
	v := newTestVault(t)
	other, err := New(testMasterKey+"-other", 10)
	require.NoError(t, err)

	blob, err := v.Encrypt("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	_, err = other.Decrypt(blob)
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestBackupCodeHashRoundTrip(t *testing.T) {
	v := newTestVault(t)

	hash, err := v.HashBackupCode("A1B2C3D4")
	require.NoError(t, err)

	assert.True(t, v.VerifyBackupCode("A1B2C3D4", hash))
	assert.False(t, v.VerifyBackupCode("A1B2C3D5", hash))
	assert.False(t, v.VerifyBackupCode("", hash))
}

func TestBackupCodeHashesAreSalted(t *testing.T) {
	v := newTestVault(t)

	a, err := v.HashBackupCode("A1B2C3D4")
	require.NoError(t, err)
	b, err := v.HashBackupCode("A1B2C3D4")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}
