package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

func rangedServer(t *testing.T, data []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Accept-Ranges", "bytes")

		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.WriteHeader(http.StatusOK)
			return
		}

		body := data
		if rng := r.Header.Get("Range"); rng != "" {
			var offset int
			if _, err := fmt.Sscanf(rng, "bytes=%d-", &offset); err != nil || offset >= len(data) {
				w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
				return
			}
			body = data[offset:]
			w.Header().Set("Content-Range",
				fmt.Sprintf("bytes %d-%d/%d", offset, len(data)-1, len(data)))
			w.WriteHeader(http.StatusPartialContent)
		}
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInfo(t *testing.T) {
	data := []byte(strings.Repeat("a", 2048))
	srv := rangedServer(t, data)

	src, err := NewHTTPSource(srv.URL, HTTPOptions{})
	if err != nil {
		t.Fatalf("NewHTTPSource: %v", err)
	}

	length, ranges, err := src.Info(context.Background())
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if length != 2048 {
		t.Fatalf("length = %d, want 2048", length)
	}
	if !ranges {
		t.Fatal("server advertises ranges, Info should report true")
	}
}

func TestDialAtOffset(t *testing.T) {
	data := []byte("0123456789abcdef")
	srv := rangedServer(t, data)

	src, err := NewHTTPSource(srv.URL, HTTPOptions{})
	if err != nil {
		t.Fatalf("NewHTTPSource: %v", err)
	}

	conn, err := src.Dial(context.Background(), 10)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	got, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "abcdef" {
		t.Fatalf("body = %q, want %q", got, "abcdef")
	}
}

func TestDialZeroOffsetSendsNoRangeHeader(t *testing.T) {
	var sawRange bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "" {
			sawRange = true
		}
		w.Write([]byte("full body"))
	}))
	t.Cleanup(srv.Close)

	src, err := NewHTTPSource(srv.URL, HTTPOptions{})
	if err != nil {
		t.Fatalf("NewHTTPSource: %v", err)
	}

	conn, err := src.Dial(context.Background(), 0)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if sawRange {
		t.Fatal("offset 0 must not send a Range header")
	}
}

func TestDialRejectsIgnoredRange(t *testing.T) {
	// A server that answers every request with 200 and the full body.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("full body, range ignored"))
	}))
	t.Cleanup(srv.Close)

	src, err := NewHTTPSource(srv.URL, HTTPOptions{})
	if err != nil {
		t.Fatalf("NewHTTPSource: %v", err)
	}

	if _, err := src.Dial(context.Background(), 5); err == nil {
		t.Fatal("Dial must fail when the server ignores the range request")
	}
}

func TestDialErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	t.Cleanup(srv.Close)

	src, err := NewHTTPSource(srv.URL, HTTPOptions{})
	if err != nil {
		t.Fatalf("NewHTTPSource: %v", err)
	}

	if _, err := src.Dial(context.Background(), 0); err == nil {
		t.Fatal("Dial should surface HTTP error statuses")
	}
}
