package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/asecn/asecn/internal/llm"
)

func TestSendMessage_GroupChatRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected Bearer auth, got %q", r.Header.Get("Authorization"))
		}

		var req apiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Model != "local" {
			t.Errorf("model = %q, want local", req.Model)
		}
		if req.MaxTokens != llm.DefaultMaxTokens {
			t.Errorf("max_tokens = %d, want %d", req.MaxTokens, llm.DefaultMaxTokens)
		}
		if req.Temperature == nil || *req.Temperature != 0.7 {
			t.Errorf("temperature = %v, want 0.7", req.Temperature)
		}
		if len(req.Messages) != 3 {
			t.Fatalf("expected 3 messages, got %d", len(req.Messages))
		}
		if req.Messages[0].Role != "system" {
			t.Errorf("messages[0].role = %q", req.Messages[0].Role)
		}
		if req.Messages[2].Name != "Memory_Agent" {
			t.Errorf("messages[2].name = %q", req.Messages[2].Name)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(apiResponse{
			Choices: []apiChoice{{
				Message:      apiMessage{Role: "assistant", Content: "1. recall state"},
				FinishReason: "stop",
			}},
			Usage: apiUsage{PromptTokens: 10, CompletionTokens: 5},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", "", nil, WithBaseURL(srv.URL+"/"), WithTemperature(0.7))
	resp, err := client.SendMessage(context.Background(), &llm.Request{
		SystemPrompt: "You are a memory management specialist.",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "analyze memory"},
			{Role: llm.RoleAssistant, Name: "Memory Agent", Content: "ok"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "1. recall state" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.StopReason != "end_turn" {
		t.Errorf("stop reason = %q", resp.StopReason)
	}
	if resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 5 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestSendMessage_RequestTemperatureWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req apiRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Temperature == nil || *req.Temperature != 0.1 {
			t.Errorf("temperature = %v, want 0.1", req.Temperature)
		}
		json.NewEncoder(w).Encode(apiResponse{Choices: []apiChoice{{Message: apiMessage{Content: "x"}}}})
	}))
	defer srv.Close()

	client := NewClient("", "m", nil, WithBaseURL(srv.URL), WithTemperature(0.7))
	if _, err := client.SendMessage(context.Background(), &llm.Request{Temperature: llm.Float(0.1)}); err != nil {
		t.Fatal(err)
	}
}

func TestSendMessage_NoAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("expected no auth header, got %q", auth)
		}
		json.NewEncoder(w).Encode(apiResponse{Choices: []apiChoice{{Message: apiMessage{Content: "hi"}, FinishReason: "length"}}})
	}))
	defer srv.Close()

	client := NewClient("", "llama3", nil, WithBaseURL(srv.URL), WithName("ollama"))
	resp, err := client.SendMessage(context.Background(), &llm.Request{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.StopReason != "max_tokens" {
		t.Errorf("stop reason = %q", resp.StopReason)
	}
	if client.Name() != "ollama" {
		t.Errorf("Name() = %q", client.Name())
	}
}

func TestSendMessage_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient("", "", nil, WithBaseURL(srv.URL))
	_, err := client.SendMessage(context.Background(), &llm.Request{})
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("err = %v, want status 503", err)
	}
}

func TestSendMessage_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	if _, err := NewClient("", "", nil, WithBaseURL(srv.URL)).SendMessage(context.Background(), &llm.Request{}); err == nil {
		t.Fatal("expected error on empty choices")
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"MemoryAgent", "MemoryAgent"},
		{"Memory Agent", "Memory_Agent"},
		{"a.b/c", "abc"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeName(tt.in); got != tt.want {
			t.Errorf("sanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeFinishReason(t *testing.T) {
	tests := []struct{ in, want string }{
		{"stop", "end_turn"},
		{"length", "max_tokens"},
		{"content_filter", "content_filter"},
	}
	for _, tt := range tests {
		if got := normalizeFinishReason(tt.in); got != tt.want {
			t.Errorf("normalizeFinishReason(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
