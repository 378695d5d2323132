package gemini

import (
	"context"
	"testing"
	"time"

	"google.golang.org/genai"

	"reasongate/internal/reasonerr"
)

func TestGenaiRoleMapping(t *testing.T) {
	if got := genaiRole(RoleUser); got != genai.RoleUser {
		t.Errorf("genaiRole(RoleUser) = %q", got)
	}
	if got := genaiRole(RoleModel); got != genai.RoleModel {
		t.Errorf("genaiRole(RoleModel) = %q", got)
	}
	if got := genaiRole(Role("weird")); got != genai.RoleUser {
		t.Errorf("unknown role mapped to %q, want the user role", got)
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	if !reasonerr.Is(err, reasonerr.CodeAPIAuth) {
		t.Fatalf("expected API_AUTH_ERROR, got %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("key")
	if cfg.APIKey != "key" {
		t.Error("API key not set")
	}
	if cfg.Model == "" {
		t.Error("no default model")
	}
	if cfg.Timeout != 2*time.Minute {
		t.Errorf("default timeout = %s", cfg.Timeout)
	}
}
