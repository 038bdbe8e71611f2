package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigFile(t *testing.T) {
	conf, err := NewConfig("../../configs/config.yaml")
	if err != nil {
		t.Fatalf("couldn't load the config: %v", err)
	}
	if conf.Session.ClaimAttempts != 15 || conf.Session.ClaimDelay != 2*time.Second {
		t.Errorf("unexpected claim params %+v", conf.Session)
	}
	if conf.Signaling.Heartbeat != 5*time.Second {
		t.Errorf("unexpected heartbeat %v", conf.Signaling.Heartbeat)
	}
	if len(conf.Auth.Scopes) != 5 {
		t.Errorf("unexpected scopes %v", conf.Auth.Scopes)
	}
	if conf.Client.DeviceID == "" {
		t.Errorf("device id should be generated")
	}
}

func TestConfigEnv(t *testing.T) {
	t.Setenv("OPENCLOUD_SESSION_CLAIMATTEMPTS", "3")
	t.Setenv("OPENCLOUD_AUTH_DEFAULTPROVIDER_STREAMINGBASEURL", "https://example.com")

	conf, err := NewConfig("../../configs/config.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if conf.Session.ClaimAttempts != 3 {
		t.Errorf("expected 3 attempts from env, got %v", conf.Session.ClaimAttempts)
	}
	if conf.Auth.DefaultProvider.StreamingBaseURL != "https://example.com/" {
		t.Errorf("base URL should end with a slash, got %v", conf.Auth.DefaultProvider.StreamingBaseURL)
	}
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("auth:\n  tokenUrl: not a url\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewConfig(path); err == nil {
		t.Errorf("expected a validation error")
	}
}

func TestParseFlags(t *testing.T) {
	conf, rest, err := ParseFlags([]string{
		"-c", "../../configs/config.yaml", "--debug", "--store", "/tmp/x", "app-123",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !conf.Debug || conf.Storage.Dir != "/tmp/x" {
		t.Errorf("flags are not applied %+v", conf)
	}
	if len(rest) != 1 || rest[0] != "app-123" {
		t.Errorf("unexpected args %v", rest)
	}
}
