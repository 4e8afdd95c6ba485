package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestGet_UTF8(t *testing.T) {
	var ua atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
		w.Write([]byte("<html>Цена 12 345 лв.</html>"))
	}))
	defer srv.Close()

	var seen []Observation
	c := New(Options{Observe: func(o Observation) { seen = append(seen, o) }})
	body, err := c.Get(context.Background(), srv.URL, "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(body, "Цена 12 345") {
		t.Fatalf("body = %q", body)
	}
	if ua.Load() != DefaultUserAgent {
		t.Fatalf("user agent = %v", ua.Load())
	}
	if len(seen) != 1 || seen[0].Status != 200 || seen[0].Err != nil {
		t.Fatalf("observations = %+v", seen)
	}
}

func TestGet_Windows1251(t *testing.T) {
	// "Цена" in windows-1251.
	raw := []byte{0xD6, 0xE5, 0xED, 0xE0}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=windows-1251")
		w.Write(raw)
	}))
	defer srv.Close()

	body, err := New(Options{}).Get(context.Background(), srv.URL, "windows-1251")
	if err != nil {
		t.Fatal(err)
	}
	if body != "Цена" {
		t.Fatalf("body = %q", body)
	}
}

func TestGet_UnknownCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	_, err := New(Options{}).Get(context.Background(), srv.URL, "no-such-charset")
	var fe *Error
	if !errors.As(err, &fe) || fe.Kind != KindDecode {
		t.Fatalf("expected decode error, got %v", err)
	}
	if !IsTransport(err) || Temporary(err) {
		t.Fatal("decode errors are transport drops but not retryable")
	}
}

func TestGet_Status(t *testing.T) {
	cases := []struct {
		status    int
		temporary bool
	}{
		{http.StatusNotFound, false},
		{http.StatusForbidden, false},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		_, err := New(Options{}).Get(context.Background(), srv.URL, "")
		srv.Close()
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		if Status(err) != tc.status {
			t.Errorf("Status() = %d, want %d", Status(err), tc.status)
		}
		if Temporary(err) != tc.temporary {
			t.Errorf("status %d: Temporary = %v", tc.status, Temporary(err))
		}
		if !strings.Contains(err.Error(), "http status") {
			t.Errorf("message = %q", err.Error())
		}
	}
}

func TestGet_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := New(Options{Timeout: 50 * time.Millisecond}).Get(context.Background(), srv.URL, "")
	if err == nil {
		t.Fatal("expected timeout")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("timeout not honoured")
	}
	if !Temporary(err) {
		t.Fatalf("timeouts should be temporary: %v", err)
	}
}

func TestGet_CancelledIsNotTemporary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Options{}).Get(ctx, srv.URL, "")
	if err == nil || Temporary(err) {
		t.Fatalf("cancelled request should fail permanently, got %v", err)
	}
}

func TestTemporary_ForeignError(t *testing.T) {
	if Temporary(errors.New("boom")) || IsTransport(errors.New("boom")) || Temporary(nil) {
		t.Fatal("non-fetch errors are neither temporary nor transport")
	}
}

func TestKindString(t *testing.T) {
	if KindStatus.String() != "status" || Kind(0).String() != "unknown" {
		t.Fatal("kind labels")
	}
}
