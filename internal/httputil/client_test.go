package httputil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestClientPostSendsJSON(t *testing.T) {
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	resp, err := client.Post(context.Background(), "/hook", map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()

	if gotContentType != "application/json" {
		t.Fatalf("content type = %s", gotContentType)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, MaxRetries: 3, Backoff: time.Millisecond})
	resp, err := client.Get(context.Background(), "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, MaxRetries: 3, Backoff: time.Millisecond})
	resp, err := client.Get(context.Background(), "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestDecodeResponseErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, MaxRetries: 0, Backoff: time.Millisecond})
	resp, err := client.Get(context.Background(), "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	err = DecodeResponse(resp, nil)
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("err = %v, want status 502 error", err)
	}
}

func TestDecodeResponseTarget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	resp, err := client.Get(context.Background(), "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	var out struct {
		Status string `json:"status"`
	}
	if err := DecodeResponse(resp, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Status != "ok" {
		t.Fatalf("status = %s", out.Status)
	}
}
