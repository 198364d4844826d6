package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tunlink/internal/core/types"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient(ClientConfig{
		BaseURL:   server.URL,
		UserAgent: "Tunlink/test",
		Timeout:   5 * time.Second,
	})
	return client, server
}

func TestStartSession(t *testing.T) {
	var gotBody StartRequest
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/sessions/start" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(types.Session{
			ID:             101,
			ServerID:       gotBody.ServerID,
			Protocol:       gotBody.Protocol,
			Encryption:     gotBody.Encryption,
			StartTime:      time.Now(),
			VirtualAddress: "10.0.0.5",
		})
	}))
	defer server.Close()

	session, err := client.StartSession(context.Background(), StartRequest{
		ServerID: 7, Protocol: "wireguard", Encryption: "aes_256_gcm",
	})
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if session.ID != 101 || session.VirtualAddress != "10.0.0.5" {
		t.Errorf("session = %+v, want ID 101 / 10.0.0.5", session)
	}
	if gotBody.ServerID != 7 || gotBody.Protocol != "wireguard" {
		t.Errorf("request body = %+v", gotBody)
	}
}

func TestEndSession_IdempotentStatuses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"ok", http.StatusOK, false},
		{"already gone", http.StatusNotFound, false},
		{"conflict", http.StatusConflict, false},
		{"gone", http.StatusGone, false},
		{"server error", http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := client.EndSession(context.Background(), EndRequest{})
			if (err != nil) != tt.wantErr {
				t.Errorf("EndSession() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCurrentSession_NoneActive(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"404", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}},
		{"empty object", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("{}"))
		}},
		{"empty body", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := newTestClient(tt.handler)
			defer server.Close()

			session, err := client.CurrentSession(context.Background())
			if err != nil {
				t.Fatalf("CurrentSession() error = %v", err)
			}
			if session != nil {
				t.Errorf("session = %+v, want nil", session)
			}
		})
	}
}

func TestCurrentSession_Active(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(types.Session{ID: 55, VirtualAddress: "10.0.0.8"})
	}))
	defer server.Close()

	session, err := client.CurrentSession(context.Background())
	if err != nil {
		t.Fatalf("CurrentSession() error = %v", err)
	}
	if session == nil || session.ID != 55 {
		t.Errorf("session = %+v, want ID 55", session)
	}
}

func TestListServers(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/servers" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]types.ServerDescriptor{
			{ID: 1, Name: "fra-1", Country: "DE"},
			{ID: 2, Name: "nyc-1", Country: "US"},
		})
	}))
	defer server.Close()

	servers, err := client.ListServers(context.Background())
	if err != nil {
		t.Fatalf("ListServers() error = %v", err)
	}
	if len(servers) != 2 || servers[0].Name != "fra-1" {
		t.Errorf("servers = %+v", servers)
	}
}

func TestHTTPErrorSurfaced(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := client.StartSession(context.Background(), StartRequest{ServerID: 7})
	httpErr, ok := err.(*HTTPError)
	if !ok {
		t.Fatalf("error = %T (%v), want *HTTPError", err, err)
	}
	if httpErr.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", httpErr.StatusCode)
	}
}

func TestRequestTimeout(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := client.CurrentSession(ctx); err == nil {
		t.Fatal("CurrentSession() error = nil, want timeout")
	}
}
