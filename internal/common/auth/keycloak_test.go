package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		creds   ClientCredentials
		want    string
		wantErr bool
	}{
		{
			name:  "keycloak realm",
			creds: ClientCredentials{KeycloakURL: "https://sso.example.com/", Realm: "helpdesk"},
			want:  "https://sso.example.com/realms/helpdesk/protocol/openid-connect/token",
		},
		{
			name:  "explicit token url wins",
			creds: ClientCredentials{KeycloakURL: "https://sso.example.com", Realm: "helpdesk", TokenURL: "https://idp.example.com/token"},
			want:  "https://idp.example.com/token",
		},
		{name: "missing realm", creds: ClientCredentials{KeycloakURL: "https://sso.example.com"}, wantErr: true},
		{name: "nothing", creds: ClientCredentials{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.creds.Endpoint()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnabled(t *testing.T) {
	assert.False(t, ClientCredentials{}.Enabled())
	assert.False(t, ClientCredentials{KeycloakURL: "https://sso"}.Enabled())
	assert.True(t, ClientCredentials{KeycloakURL: "https://sso", ClientID: "helpdesk"}.Enabled())
}

func TestNewTokenSource_CachesToken(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/realms/helpdesk/protocol/openid-connect/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "helpdesk-workers", r.PostForm.Get("client_id"))
		assert.Equal(t, "s3cret", r.PostForm.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "token-1",
			"token_type":   "Bearer",
			"expires_in":   300,
		})
	}))
	defer server.Close()

	ts, err := NewTokenSource(context.Background(), ClientCredentials{
		KeycloakURL:  server.URL,
		Realm:        "helpdesk",
		ClientID:     "helpdesk-workers",
		ClientSecret: "s3cret",
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		tok, err := ts.Token()
		require.NoError(t, err)
		assert.Equal(t, "token-1", tok.AccessToken)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNewTokenSource_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unauthorized_client"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	ts, err := NewTokenSource(context.Background(), ClientCredentials{TokenURL: server.URL, ClientID: "x"})
	require.NoError(t, err)
	_, err = ts.Token()
	assert.Error(t, err)

	_, err = NewTokenSource(context.Background(), ClientCredentials{TokenURL: server.URL})
	assert.Error(t, err)
}
