package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/secrets-app/internal/config"
)

// Credentials はパスワードの保存形式と照合方法を表します。
type Credentials interface {
	Name() string
	// Hash は保存する値を返します。
	Hash(password string) (string, error)
	// Verify は保存済みの値と入力されたパスワードを照合します。
	Verify(stored, password string) bool
}

// NewCredentials は設定名から Credentials を作成します。
func NewCredentials(name string, bcryptCost int) (Credentials, error) {
	switch name {
	case config.CredentialsPlaintext:
		return Plaintext{}, nil
	case config.CredentialsBcrypt, "":
		return Bcrypt{Cost: bcryptCost}, nil
	default:
		return nil, fmt.Errorf("unknown credentials strategy %q", name)
	}
}

// Plaintext は入力をそのまま保存します。ローカル検証専用です。
type Plaintext struct{}

func (Plaintext) Name() string { return config.CredentialsPlaintext }

func (Plaintext) Hash(password string) (string, error) {
	return password, nil
}

func (Plaintext) Verify(stored, password string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}

// Bcrypt は bcrypt でハッシュ化して保存します。
type Bcrypt struct {
	Cost int
}

func (Bcrypt) Name() string { return config.CredentialsBcrypt }

func (b Bcrypt) Hash(password string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: password too long", ErrInvalidInput)
		}
		return "", err
	}
	return string(hash), nil
}

func (Bcrypt) Verify(stored, password string) bool {
	if stored == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}
