package docgen_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"veriflow/internal/config"
	"veriflow/internal/services"
	"veriflow/internal/services/docgen"
)

func newClient(baseURL string) *docgen.Client {
	cfg := config.Default()
	cfg.DocGen.Enabled = true
	cfg.DocGen.BaseURL = baseURL
	cfg.DocGen.APIKey = "render-key"
	cfg.DocGen.RequestTimeout = 5
	return docgen.NewClient(&cfg)
}

func TestGenerateRendersDocument(t *testing.T) {
	var gotAuth, gotTemplate string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var body struct {
			Template string            `json:"template"`
			Fields   map[string]string `json:"fields"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotTemplate = body.Template
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	}))
	defer server.Close()

	doc, err := newClient(server.URL).Generate(context.Background(), "teacher_id_card", map[string]string{
		"firstName": "Jane",
		"lastName":  "Smith",
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if gotAuth != "Bearer render-key" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if gotTemplate != "teacher_id_card" {
		t.Fatalf("expected template key sent, got %q", gotTemplate)
	}
	if doc.FileName != "teacher_id_card.png" || doc.ContentType != "image/png" {
		t.Fatalf("unexpected document meta: %+v", doc)
	}
	if len(doc.Bytes) != 4 {
		t.Fatalf("expected rendered bytes, got %d", len(doc.Bytes))
	}
}

func TestGenerateFailureIsProtocolError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "template not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newClient(server.URL).Generate(context.Background(), "missing", nil)
	if !errors.Is(err, services.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestGenerateEmptyBodyIsProtocolError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := newClient(server.URL).Generate(context.Background(), "teacher_id_card", nil)
	if !errors.Is(err, services.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}
