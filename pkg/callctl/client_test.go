// ABOUTME: Tests for the call-control client
// ABOUTME: Uses httptest servers standing in for the bridge API
package callctl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Evatrad/evatrad-go/pkg/audio"
	"github.com/Evatrad/evatrad-go/pkg/prompt"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(Config{BaseURL: server.URL, PartialTTSInterval: 3})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return c
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, base := range []string{"ftp://x", "://bad", ""} {
		if _, err := New(Config{BaseURL: base}); err == nil {
			t.Errorf("expected error for %q", base)
		}
	}
}

func TestStartCall(t *testing.T) {
	var got CallRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/call" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %s", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(CallResponse{Success: true, CallSid: "CA1"})
	})

	sid, err := c.StartCall(context.Background(), "+33100000000", "en-US", "fr-FR")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sid != "CA1" {
		t.Errorf("expected CA1, got %s", sid)
	}
	want := CallRequest{To: "+33100000000", CallerLanguage: "en-US", ReceiverLanguage: "fr-FR", PartialTTSInterval: 3}
	if got != want {
		t.Errorf("expected request %+v, got %+v", want, got)
	}
}

func TestStartCallRejected(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"success false", http.StatusOK, `{"success":false,"error":"invalid number"}`},
		{"error status with body", http.StatusBadRequest, `{"success":false,"error":"invalid number"}`},
		{"missing sid", http.StatusOK, `{"success":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := c.StartCall(context.Background(), "1", "en-US", "fr-FR")
			if !errors.Is(err, ErrCallRejected) {
				t.Errorf("expected ErrCallRejected, got %v", err)
			}
		})
	}
}

func TestStartCallServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	_, err := c.StartCall(context.Background(), "1", "en-US", "fr-FR")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrCallRejected) {
		t.Error("transport failure should not be reported as a rejection")
	}
}

func TestEndCall(t *testing.T) {
	var body map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/end-call" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	})

	if err := c.EndCall(context.Background(), "CA9"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body["callSid"] != "CA9" {
		t.Errorf("expected callSid CA9, got %v", body)
	}
}

func TestEndCallFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	if err := c.EndCall(context.Background(), "CA9"); err == nil {
		t.Error("expected error on 404")
	}
}

func TestCallStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("callSid") != "CA2" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"status":"In-Progress"}`))
	})

	status, err := c.CallStatus(context.Background(), "CA2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != "in-progress" {
		t.Errorf("expected in-progress, got %s", status)
	}
}

func TestFetchPrompt(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio-messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("language") != "fr-FR" || q.Get("type") != "waiting" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte("ID3fake"))
	})

	p, err := c.FetchPrompt(context.Background(), "fr-FR", prompt.KindWaiting)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(p.Data) != "ID3fake" {
		t.Errorf("unexpected data %q", p.Data)
	}
	if p.Encoding != audio.EncodingContainer {
		t.Errorf("expected container encoding, got %v", p.Encoding)
	}
}

func TestFetchPromptTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ID3" + strings.Repeat("x", 61)))
	}))
	defer server.Close()

	tests := []struct {
		limit   int64
		wantErr bool
	}{
		{64, false},
		{63, true},
	}
	for _, tt := range tests {
		c, err := New(Config{BaseURL: server.URL, MaxPromptBytes: tt.limit})
		if err != nil {
			t.Fatalf("failed to create client: %v", err)
		}
		p, err := c.FetchPrompt(context.Background(), "en-US", prompt.KindWelcome)
		if tt.wantErr {
			if !errors.Is(err, ErrPromptTooLarge) {
				t.Errorf("limit %d: expected ErrPromptTooLarge, got %v", tt.limit, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("limit %d: unexpected error: %v", tt.limit, err)
		} else if len(p.Data) != 64 {
			t.Errorf("limit %d: expected 64 bytes, got %d", tt.limit, len(p.Data))
		}
	}
}

func TestFetchPromptCanceled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.FetchPrompt(ctx, "en-US", prompt.KindWelcome); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestUserAgent(t *testing.T) {
	var ua string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		w.Write([]byte(`{"status":"queued"}`))
	}))
	defer server.Close()

	c, err := New(Config{BaseURL: server.URL, UserAgent: "evatrad-go/test"})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if _, err := c.CallStatus(context.Background(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ua != "evatrad-go/test" {
		t.Errorf("expected user agent evatrad-go/test, got %q", ua)
	}
}

func TestBaseURLWithPath(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`{"status":"ringing"}`))
	}))
	defer server.Close()

	c, err := New(Config{BaseURL: server.URL + "/api/"})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if _, err := c.CallStatus(context.Background(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/api/call-status" {
		t.Errorf("expected /api/call-status, got %s", path)
	}
}

var _ prompt.Fetcher = (*Client)(nil)
