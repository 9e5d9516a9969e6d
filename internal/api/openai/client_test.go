package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestComplete(t *testing.T) {
	tests := []struct {
		name    string
		content string
		status  int
		wantErr bool
	}{
		{"ok", "【Signal & Structure】\nfine", http.StatusOK, false},
		{"empty", "  ", http.StatusOK, true},
		{"server error", "", http.StatusBadRequest, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got struct {
				Model    string `json:"model"`
				Messages []struct {
					Role string `json:"role"`
				} `json:"messages"`
			}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/chat/completions" {
					t.Errorf("path = %s", r.URL.Path)
				}
				_ = json.NewDecoder(r.Body).Decode(&got)
				if tt.status != http.StatusOK {
					w.WriteHeader(tt.status)
					_, _ = w.Write([]byte(`{"error":{"message":"bad","type":"invalid_request_error"}}`))
					return
				}
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]any{
					"id":      "x",
					"object":  "chat.completion",
					"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": tt.content}}},
				})
			}))
			defer srv.Close()

			c := NewClient(ClientOptions{Name: "test", BaseURL: srv.URL + "/v1/", Model: "m-1", APIKey: "k"})
			out, err := c.Complete(context.Background(), "sys", "user")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.name == "empty" && !errors.Is(err, ErrEmptyCompletion) {
				t.Errorf("expected ErrEmptyCompletion, got %v", err)
			}
			if !tt.wantErr && out != tt.content {
				t.Errorf("content = %q", out)
			}
			if got.Model != "m-1" || len(got.Messages) != 2 || got.Messages[0].Role != "system" {
				t.Errorf("unexpected request %+v", got)
			}
		})
	}
}
