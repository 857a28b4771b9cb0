package zoho

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCase(t *testing.T) {
	var got struct {
		Data []Case `json:"data"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crm/v3/Cases", r.URL.Path)
		assert.Equal(t, "Zoho-oauthtoken static-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":[{"code":"SUCCESS","details":{"id":"5725767000000524157"},"message":"record added","status":"success"}]}`))
	}))
	defer server.Close()

	client := NewCRMClient(server.URL+"/crm/v3/", StaticToken("static-token"), time.Second)
	id, err := client.CreateCase(context.Background(), &Case{Subject: "VPN down", Priority: "High"})

	require.NoError(t, err)
	assert.Equal(t, "5725767000000524157", id)
	require.Len(t, got.Data, 1)
	assert.Equal(t, "VPN down", got.Data[0].Subject)
}

func TestCreateCase_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"http error", http.StatusUnauthorized, `{"code":"INVALID_TOKEN"}`, "status 401"},
		{"record rejected", http.StatusOK, `{"data":[{"code":"MANDATORY_NOT_FOUND","message":"required field not found","status":"error"}]}`, "required field not found"},
		{"empty data", http.StatusOK, `{"data":[]}`, "no data"},
		{"bad json", http.StatusOK, `nope`, "unmarshal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewCRMClient(server.URL, StaticToken("t"), time.Second)
			_, err := client.CreateCase(context.Background(), &Case{Subject: "x"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRefreshTokenSource(t *testing.T) {
	tokenCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v2/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "1000.refresh", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"1000.access","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/crm/v3/Cases", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Zoho-oauthtoken 1000.access", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[{"details":{"id":"42"},"status":"success"}]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ts := RefreshTokenSource(context.Background(), server.URL, "client-id", "client-secret", "1000.refresh")
	client := NewCRMClient(server.URL+"/crm/v3", ts, time.Second)

	for i := 0; i < 2; i++ {
		id, err := client.CreateCase(context.Background(), &Case{Subject: "x"})
		require.NoError(t, err)
		assert.Equal(t, "42", id)
	}
	assert.Equal(t, 1, tokenCalls)
}
