package bridge_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"murmur/internal/platform"
	"murmur/internal/services"
	"murmur/internal/services/bridge"
)

func TestValidate(t *testing.T) {
	expires := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/sessions/acct-a/validate" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"session_id": "s-1", "expires_at": expires})
	}))
	defer server.Close()

	client := bridge.New(server.URL+"/", "secret", server.Client())
	sess, err := client.Validate(context.Background(), "acct-a")
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if sess.ID != "s-1" || sess.AccountID != "acct-a" || !sess.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected session %#v", sess)
	}
}

func TestValidateUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cookie expired", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := bridge.New(server.URL, "", server.Client())
	_, err := client.Validate(context.Background(), "acct-a")
	if !errors.Is(err, services.ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestFetchSince(t *testing.T) {
	since := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/accounts/acct-a/content" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("since") != since.Format(time.RFC3339Nano) || q.Get("cursor") != "c-5" {
			t.Errorf("unexpected watermark query %v", q)
		}
		if kws := q["keyword"]; len(kws) != 2 || kws[0] != "法律咨询" {
			t.Errorf("unexpected keywords %v", kws)
		}
		if r.Header.Get("X-Session-ID") != "s-1" {
			t.Errorf("missing session header")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"cursor": "c-7",
			"items": []map[string]any{
				{"source_id": "c-7", "author": "bob", "body": "second", "timestamp": since.Add(2 * time.Minute), "kind": "mention"},
				{"source_id": "c-6", "author": "amy", "body": "first", "timestamp": since.Add(time.Minute), "kind": "bogus"},
				{"source_id": "", "body": "dropped"},
			},
		})
	}))
	defer server.Close()

	client := bridge.New(server.URL, "", server.Client())
	batch, err := client.FetchSince(context.Background(),
		platform.Session{AccountID: "acct-a", ID: "s-1"},
		platform.Watermark{At: since, Cursor: "c-5"},
		[]string{"法律咨询", "律师"},
	)
	if err != nil {
		t.Fatalf("FetchSince returned error: %v", err)
	}
	if batch.Cursor != "c-7" || len(batch.Items) != 2 {
		t.Fatalf("unexpected batch %#v", batch)
	}
	if batch.Items[0].SourceID != "c-6" || batch.Items[1].SourceID != "c-7" {
		t.Fatalf("expected items ordered oldest first, got %s, %s", batch.Items[0].SourceID, batch.Items[1].SourceID)
	}
	if batch.Items[0].Kind != platform.KindComment || batch.Items[1].Kind != platform.KindMention {
		t.Fatalf("unexpected kinds %s, %s", batch.Items[0].Kind, batch.Items[1].Kind)
	}
	if batch.Items[0].AccountID != "acct-a" {
		t.Fatalf("expected account to be stamped, got %q", batch.Items[0].AccountID)
	}
}

func TestFetchSinceServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := bridge.New(server.URL, "", server.Client())
	_, err := client.FetchSince(context.Background(), platform.Session{AccountID: "acct-a"}, platform.Watermark{}, nil)
	if !errors.Is(err, services.ErrFetchTransient) {
		t.Fatalf("expected ErrFetchTransient, got %v", err)
	}
}

func TestSend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["source_id"] != "c-1" || body["text"] != "您好" || body["kind"] != "direct_message" {
			t.Errorf("unexpected body %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"reply_id": "r-9"})
	}))
	defer server.Close()

	client := bridge.New(server.URL, "", server.Client())
	id, err := client.Send(context.Background(),
		platform.Session{AccountID: "acct-a", ID: "s-1"},
		platform.ReplyTarget{SourceID: "c-1", Kind: platform.KindDirectMessage},
		"您好",
	)
	if err != nil || id != "r-9" {
		t.Fatalf("unexpected send result %q err=%v", id, err)
	}
}

func TestSendFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "comment deleted", http.StatusGone)
	}))
	defer server.Close()

	client := bridge.New(server.URL, "", server.Client())
	_, err := client.Send(context.Background(), platform.Session{AccountID: "acct-a"}, platform.ReplyTarget{SourceID: "c-1"}, "hi")
	if !errors.Is(err, services.ErrSendFailed) {
		t.Fatalf("expected ErrSendFailed, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	if err := bridge.New(server.URL, "", server.Client()).Health(context.Background()); err != nil {
		t.Fatalf("Health returned error: %v", err)
	}
}
