package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestNewCredentials(t *testing.T) {
	c, err := NewCredentials("plaintext", 10)
	require.NoError(t, err)
	assert.Equal(t, "plaintext", c.Name())

	c, err = NewCredentials("bcrypt", 12)
	require.NoError(t, err)
	assert.Equal(t, Bcrypt{Cost: 12}, c)

	_, err = NewCredentials("md5", 10)
	assert.Error(t, err)
}

func TestPlaintextCredentials(t *testing.T) {
	p := Plaintext{}
	stored, err := p.Hash("pw1")
	require.NoError(t, err)
	assert.Equal(t, "pw1", stored)
	assert.True(t, p.Verify(stored, "pw1"))
	assert.False(t, p.Verify(stored, "pw2"))
	assert.False(t, p.Verify("", ""))
}

func TestBcryptNeverStoresPlaintext(t *testing.T) {
	b := Bcrypt{Cost: bcrypt.MinCost}
	stored, err := b.Hash("pw1")
	require.NoError(t, err)

	assert.NotEqual(t, "pw1", stored)
	assert.NotContains(t, stored, "pw1")
	assert.True(t, b.Verify(stored, "pw1"))
	assert.False(t, b.Verify(stored, "pw2"))
	assert.False(t, b.Verify("", "pw1"))

	cost, err := bcrypt.Cost([]byte(stored))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}

func TestBcryptSaltsEachHash(t *testing.T) {
	b := Bcrypt{Cost: bcrypt.MinCost}
	first, err := b.Hash("pw1")
	require.NoError(t, err)
	second, err := b.Hash("pw1")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestBcryptRejectsLongPassword(t *testing.T) {
	_, err := Bcrypt{Cost: bcrypt.MinCost}.Hash(strings.Repeat("x", 80))
	assert.ErrorIs(t, err, ErrInvalidInput)
}
