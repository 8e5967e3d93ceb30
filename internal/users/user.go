// Package users はユーザーレコードの永続化を提供します。
package users

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound はレコードが存在しない場合に返されます。
	ErrNotFound = errors.New("user not found")
	// ErrDuplicate は同じユーザー名が既に登録されている場合に返されます。
	ErrDuplicate = errors.New("username already registered")
)

// Provider は外部IdPの種別です。
type Provider string

const (
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
)

// User は1人の利用者を表します。
// ローカルのパスワードと各IdPのIDはどの組み合わせでも共存できます。
type User struct {
	ID         string    `json:"id" bson:"_id"`
	Username   string    `json:"username" bson:"username"`
	Name       string    `json:"name,omitempty" bson:"name,omitempty"`
	Email      string    `json:"email,omitempty" bson:"email,omitempty"`
	Password   string    `json:"-" bson:"password,omitempty"`
	GoogleID   string    `json:"googleId,omitempty" bson:"google_id,omitempty"`
	FacebookID string    `json:"facebookId,omitempty" bson:"facebook_id,omitempty"`
	Secret     string    `json:"secret,omitempty" bson:"secret,omitempty"`
	CreatedAt  time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updated_at"`
}

// DisplayName は画面表示用の名前を返します。
func (u *User) DisplayName() string {
	switch {
	case u.Username != "":
		return u.Username
	case u.Name != "":
		return u.Name
	case u.Email != "":
		return u.Email
	default:
		return "anonymous"
	}
}

// ProviderID は指定したIdPのIDを返します。
func (u *User) ProviderID(p Provider) string {
	switch p {
	case ProviderGoogle:
		return u.GoogleID
	case ProviderFacebook:
		return u.FacebookID
	default:
		return ""
	}
}

func (u *User) setProviderID(p Provider, id string) {
	switch p {
	case ProviderGoogle:
		u.GoogleID = id
	case ProviderFacebook:
		u.FacebookID = id
	}
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Store はユーザーレコードの読み書きを行います。
type Store interface {
	// Create は ID と作成日時を割り当てて保存します。
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	// FindOrCreateByProvider は IdP の ID で検索し、無ければ seed を元に作成します。
	// 2つ目の戻り値は新規作成したかどうかです。
	FindOrCreateByProvider(ctx context.Context, p Provider, providerID string, seed *User) (*User, bool, error)
	// Save はメモリ上の変更を保存します。
	Save(ctx context.Context, u *User) error
	// ListWithSecrets は秘密が登録されているユーザーを作成順に返します。
	ListWithSecrets(ctx context.Context) ([]*User, error)
	Close(ctx context.Context) error
}

func validateProvider(p Provider, providerID string) error {
	if p != ProviderGoogle && p != ProviderFacebook {
		return fmt.Errorf("unknown provider %q", p)
	}
	if providerID == "" {
		return fmt.Errorf("provider id is required")
	}
	return nil
}

// providerKey は IdP の ID を保存するカラム名（フィールド名）です。
func providerKey(p Provider) string {
	if p == ProviderFacebook {
		return "facebook_id"
	}
	return "google_id"
}
