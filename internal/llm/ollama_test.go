package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/abd2220/retail-copilot/internal/logging"
)

func TestOllamaStreamsCompletion(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprintln(w, `{"response":"SELECT ","done":false}`)
		fmt.Fprintln(w, `{"response":"1","done":false}`)
		fmt.Fprintln(w, `{"response":"","done":true}`)
	}))
	defer srv.Close()

	o := NewOllama(srv.URL+"/", "phi3.5", 5*time.Second)
	out, err := o.Complete(context.Background(), "write sql")
	if err != nil {
		t.Fatalf("Complete() err=%v", err)
	}
	if out != "SELECT 1" {
		t.Errorf("completion = %q", out)
	}
	if got.Model != "phi3.5" || got.Prompt != "write sql" {
		t.Errorf("request = %+v", got)
	}
	if got.Options["temperature"] != float64(0) {
		t.Errorf("temperature = %v", got.Options["temperature"])
	}
}

func TestOllamaErrors(t *testing.T) {
	t.Run("http status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}))
		defer srv.Close()
		_, err := NewOllama(srv.URL, "missing", time.Second).Complete(context.Background(), "x")
		if err == nil || !strings.Contains(err.Error(), "model not found") {
			t.Fatalf("err=%v", err)
		}
	})

	t.Run("stream error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `{"error":"out of memory"}`)
		}))
		defer srv.Close()
		_, err := NewOllama(srv.URL, "m", time.Second).Complete(context.Background(), "x")
		if err == nil || !strings.Contains(err.Error(), "out of memory") {
			t.Fatalf("err=%v", err)
		}
	})
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("phi3.5", "prompt")
	if a != CacheKey("phi3.5", "prompt") {
		t.Error("key must be stable")
	}
	if a == CacheKey("llama3", "prompt") || a == CacheKey("phi3.5", "other") {
		t.Error("key must depend on namespace and prompt")
	}
	if !strings.HasPrefix(a, "completion:phi3.5:") {
		t.Errorf("key = %s", a)
	}
}

func TestCachedCompleterFallsThroughWhenRedisDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	defer client.Close()

	calls := 0
	next := CompleterFunc(func(ctx context.Context, prompt string) (string, error) {
		calls++
		return "sql", nil
	})
	c := NewCachedCompleter(next, client, time.Minute, "m", logging.Discard())
	out, err := c.Complete(context.Background(), "p")
	if err != nil {
		t.Fatalf("Complete() err=%v", err)
	}
	if out != "sql" || calls != 1 {
		t.Errorf("out=%q calls=%d", out, calls)
	}
}
