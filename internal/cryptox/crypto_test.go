package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talkreg/regbot/internal/common"
)

func TestSealer_RoundTrip(t *testing.T) {
	s := NewSealer("test-secret", common.GenerateRandByteArray(16))
	require.True(t, s.Enabled())

	sealed, err := s.Seal("hunter2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "v1:"))
	assert.NotContains(t, sealed, "hunter2")

	got, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)
}

func TestSealer_SealIsRandomized(t *testing.T) {
	s := NewSealer("test-secret", common.GenerateRandByteArray(16))

	a, err := s.Seal("hunter2")
	require.NoError(t, err)
	b, err := s.Seal("hunter2")
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "each seal must use a fresh nonce")
}

func TestSealer_Passthrough(t *testing.T) {
	s := NewSealer("", nil)
	require.False(t, s.Enabled())

	sealed, err := s.Seal("hunter2")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", sealed)

	got, err := s.Open("hunter2")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)
}

func TestSealer_OpenLegacyCleartext(t *testing.T) {
	// A keyed sealer must still read rows written before sealing was enabled.
	s := NewSealer("test-secret", common.GenerateRandByteArray(16))

	got, err := s.Open("plain-old-password")
	require.NoError(t, err)
	assert.Equal(t, "plain-old-password", got)
}

func TestSealer_OpenRejectsTamperedValue(t *testing.T) {
	s := NewSealer("test-secret", common.GenerateRandByteArray(16))

	sealed, err := s.Seal("hunter2")
	require.NoError(t, err)

	tampered := sealed[:len(sealed)-2] + "AA"
	_, err = s.Open(tampered)
	assert.Error(t, err)
}

func TestSealer_OpenRejectsWrongKey(t *testing.T) {
	salt := common.GenerateRandByteArray(16)
	a := NewSealer("secret-a", salt)
	b := NewSealer("secret-b", salt)

	sealed, err := a.Seal("hunter2")
	require.NoError(t, err)

	_, err = b.Open(sealed)
	assert.Error(t, err)
}

func TestSealer_SealedValueWithoutKeyFails(t *testing.T) {
	s := NewSealer("", nil)

	_, err := s.Open("v1:AAAA")
	assert.Error(t, err)
}
