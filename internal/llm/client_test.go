package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPClientGenerate(t *testing.T) {
	var got chatRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"こんにちは"}}]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", "secret", "llama3-8b-instant", nil)
	text, err := c.Generate(context.Background(), "hola", Options{MaxNewTokens: 64, Temperature: 0.4, JSON: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "こんにちは" {
		t.Fatalf("text = %q", text)
	}
	if auth != "Bearer secret" {
		t.Fatalf("auth header = %q", auth)
	}
	if got.Model != "llama3-8b-instant" || got.MaxTokens != 64 || got.Temperature != 0.4 {
		t.Fatalf("unexpected request: %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hola" {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Fatalf("expected json response format, got %+v", got.ResponseFormat)
	}
}

func TestHTTPClientDefaultsAndNoKey(t *testing.T) {
	var got chatRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", "local-model", nil)
	if _, err := c.Generate(context.Background(), "x", Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if auth != "" {
		t.Fatalf("expected no auth header, got %q", auth)
	}
	if got.MaxTokens != 200 || got.Temperature != 0.5 || got.ResponseFormat != nil {
		t.Fatalf("defaults not applied: %+v", got)
	}
}

func TestHTTPClientErrors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "status", status: http.StatusTooManyRequests, body: `{"error":{"message":"rate"}}`, wantErr: "status=429"},
		{name: "api error", status: http.StatusOK, body: `{"error":{"message":"bad model"}}`, wantErr: "bad model"},
		{name: "empty", status: http.StatusOK, body: `{"choices":[{"message":{"content":"  "}}]}`, wantErr: ErrEmptyResponse.Error()},
		{name: "garbage", status: http.StatusOK, body: `<html>`, wantErr: "unmarshal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewHTTPClient(srv.URL, "k", "m", nil).Generate(context.Background(), "p", Options{})
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestGeminiClientGenerate(t *testing.T) {
	var got geminiRequest
	var path, key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		key = r.URL.Query().Get("key")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"あなたは"},{"text":"INFP"}]}}]}`))
	}))
	defer srv.Close()

	c := NewGeminiClient(srv.URL, "g-key", "", nil)
	text, err := c.Generate(context.Background(), "prompt", Options{MaxNewTokens: 120, Temperature: 0.2, JSON: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "あなたはINFP" {
		t.Fatalf("text = %q", text)
	}
	if path != "/models/gemini-1.5-flash-latest:generateContent" {
		t.Fatalf("path = %q", path)
	}
	if key != "g-key" {
		t.Fatalf("key = %q", key)
	}
	if got.GenerationConfig.MaxOutputTokens != 120 || got.GenerationConfig.Temperature != 0.2 {
		t.Fatalf("generation config = %+v", got.GenerationConfig)
	}
	if got.GenerationConfig.ResponseMimeType != "application/json" {
		t.Fatalf("expected json mime type, got %q", got.GenerationConfig.ResponseMimeType)
	}
	if len(got.Contents) != 1 || got.Contents[0].Parts[0].Text != "prompt" {
		t.Fatalf("contents = %+v", got.Contents)
	}
}

func TestGeminiClientNoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	_, err := NewGeminiClient(srv.URL, "k", "m", nil).Generate(context.Background(), "p", Options{})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}
