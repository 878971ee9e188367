package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `
server:
  addr: ":8080"
db:
  dsn: "postgres://localhost/opulence"
mpesa:
  base_url: "https://sandbox.safaricom.co.ke"
  consumer_key: "key"
  consumer_secret: "secret"
  short_code: "174379"
  passkey: "passkey"
  callback_url: "https://example.com/payments/callback"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Mpesa.TransactionType != "CustomerPayBillOnline" {
		t.Errorf("transaction type default = %q", cfg.Mpesa.TransactionType)
	}
	if cfg.Mpesa.TimeoutSeconds != 30 {
		t.Errorf("timeout default = %d", cfg.Mpesa.TimeoutSeconds)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MPESA_SHORT_CODE", "600999")
	t.Setenv("MPESA_TIMEOUT_SECONDS", "60")

	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mpesa.ShortCode != "600999" {
		t.Errorf("short code = %q, want env override 600999", cfg.Mpesa.ShortCode)
	}
	if cfg.Mpesa.TimeoutSeconds != 60 {
		t.Errorf("timeout = %d, want 60", cfg.Mpesa.TimeoutSeconds)
	}
}

func TestLoadIncomplete(t *testing.T) {
	incomplete := `
server:
  addr: ":8080"
db:
  dsn: "postgres://localhost/opulence"
mpesa:
  base_url: "https://sandbox.safaricom.co.ke"
`
	if _, err := Load(writeConfig(t, incomplete)); err == nil {
		t.Fatal("expected error for missing mpesa credentials")
	}
}
