// Package federation は外部IdP（Google, Facebook）による OAuth 2.0 ログインを提供します。
package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/google"

	"github.com/yourusername/secrets-app/internal/users"
)

const (
	googleProfileURL   = "https://www.googleapis.com/oauth2/v3/userinfo"
	facebookProfileURL = "https://graph.facebook.com/me?fields=id,name,email"
)

// ErrProfile はプロフィールの取得や解釈に失敗した場合に返されます。
var ErrProfile = errors.New("failed to fetch provider profile")

// Profile は IdP から受け取った利用者情報です。
type Profile struct {
	ID    string
	Name  string
	Email string
}

// Provider は1つの IdP の設定です。
type Provider struct {
	Name       users.Provider
	Label      string
	OAuth      *oauth2.Config
	ProfileURL string
	decode     func([]byte) (*Profile, error)
}

// CallbackPath は IdP から戻ってくるパスを返します。
func CallbackPath(name users.Provider) string {
	return "/auth/" + string(name) + "/secrets"
}

// Google は Google ログイン用の Provider を作成します。
func Google(clientID, clientSecret, baseURL string) *Provider {
	return &Provider{
		Name:  users.ProviderGoogle,
		Label: "Google",
		OAuth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  baseURL + CallbackPath(users.ProviderGoogle),
			Scopes:       []string{"profile", "email"},
		},
		ProfileURL: googleProfileURL,
		decode:     decodeGoogleProfile,
	}
}

// Facebook は Facebook ログイン用の Provider を作成します。
func Facebook(appID, appSecret, baseURL string) *Provider {
	return &Provider{
		Name:  users.ProviderFacebook,
		Label: "Facebook",
		OAuth: &oauth2.Config{
			ClientID:     appID,
			ClientSecret: appSecret,
			Endpoint:     facebook.Endpoint,
			RedirectURL:  baseURL + CallbackPath(users.ProviderFacebook),
			Scopes:       []string{"email"},
		},
		ProfileURL: facebookProfileURL,
		decode:     decodeFacebookProfile,
	}
}

// FetchProfile はアクセストークンでプロフィールを取得します。
func (p *Provider) FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ProfileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.OAuth.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfile, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfile, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrProfile, resp.StatusCode)
	}

	profile, err := p.decode(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfile, err)
	}
	if profile.ID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrProfile)
	}
	return profile, nil
}

func decodeGoogleProfile(body []byte) (*Profile, error) {
	var v struct {
		Sub   string `json:"sub"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return &Profile{ID: v.Sub, Name: v.Name, Email: v.Email}, nil
}

func decodeFacebookProfile(body []byte) (*Profile, error) {
	var v struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return &Profile{ID: v.ID, Name: v.Name, Email: v.Email}, nil
}
