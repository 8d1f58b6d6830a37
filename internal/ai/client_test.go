package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func completionServer(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": content}},
			},
		})
	}))
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(Config{}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestClientExtract(t *testing.T) {
	tests := []struct {
		name    string
		content string
		status  int
		kind    Kind
		price   float64
		message string
		wantErr bool
	}{
		{"fenced offer", "```json\n{\"type\":\"OFFER\",\"price\":45}\n```", http.StatusOK, KindOffer, 45, "", false},
		{"chat reply", `{"type":"chat","message":"It ships in two days. What would you like to pay?"}`, http.StatusOK, KindChat, 0, "It ships in two days. What would you like to pay?", false},
		{"prose around json", `Sure! {"type":"OFFER","price":12.5} hope that helps`, http.StatusOK, KindOffer, 12.5, "", false},
		{"offer without price", `{"type":"OFFER"}`, http.StatusOK, "", 0, "", true},
		{"unknown type", `{"type":"MAYBE"}`, http.StatusOK, "", 0, "", true},
		{"not json", "forty five", http.StatusOK, "", 0, "", true},
		{"upstream error", `{}`, http.StatusTooManyRequests, "", 0, "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := completionServer(t, tc.content, tc.status)
			defer srv.Close()

			client, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
			if err != nil {
				t.Fatalf("new client: %v", err)
			}
			got, err := client.Extract(context.Background(), "anything", ExtractionContext{ProductTitle: "Lamp", OriginalPrice: 100, MinAcceptedPrice: 80})
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("extract: %v", err)
			}
			if got.Kind != tc.kind || got.Price != tc.price || got.Message != tc.message {
				t.Fatalf("unexpected extraction %+v", got)
			}
			if got.Source != SourceModel {
				t.Fatalf("expected model source got %s", got.Source)
			}
		})
	}
}

func TestClientExtractTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	start := time.Now()
	if _, err := client.Extract(context.Background(), "45", ExtractionContext{}); err == nil {
		t.Fatalf("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("extract ignored timeout, took %v", elapsed)
	}
}

func TestUserPromptCarriesContext(t *testing.T) {
	prompt := buildUserPrompt(" how about 40 ", ExtractionContext{ProductTitle: "Desk Lamp", OriginalPrice: 100, MinAcceptedPrice: 80, Locale: "de"})
	for _, want := range []string{"Desk Lamp", "100.00", "80.00", "de", `"how about 40"`} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
