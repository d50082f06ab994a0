package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestSecretStringRedactsInString(t *testing.T) {
	s := SecretString("sg_live_api_key_123")

	if s.String() != "***REDACTED***" {
		t.Errorf("String() = %q, want redacted placeholder", s.String())
	}
	if out := fmt.Sprintf("key is %s", s); strings.Contains(out, "sg_live") {
		t.Errorf("fmt leaked the secret: %q", out)
	}
	if out := fmt.Sprintf("%v", s); strings.Contains(out, "sg_live") {
		t.Errorf("%%v leaked the secret: %q", out)
	}
}

func TestSecretStringRedactsInJSON(t *testing.T) {
	payload := struct {
		APIKey SecretString `json:"api_key"`
	}{APIKey: "sg_live_api_key_123"}

	out, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(out), "sg_live") {
		t.Errorf("JSON leaked the secret: %s", out)
	}
	if !strings.Contains(string(out), "***REDACTED***") {
		t.Errorf("expected redacted placeholder in JSON: %s", out)
	}
}

func TestSecretStringUnmask(t *testing.T) {
	s := SecretString("sg_live_api_key_123")
	if s.Unmask() != "sg_live_api_key_123" {
		t.Errorf("Unmask() = %q", s.Unmask())
	}
}
