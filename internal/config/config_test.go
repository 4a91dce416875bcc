package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveLoadCredentials(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if Exists() {
		t.Fatal("fresh home must not have a config")
	}
	if _, err := Load(); !errors.Is(err, ErrNotExist) {
		t.Fatalf("Load on empty home: %v", err)
	}

	want := &Credentials{
		Host:       "pve.example.com",
		Port:       "8006",
		Username:   "root@pam",
		Token:      "root@pam!pvewatch-1=secret",
		WebhookURL: "https://discord.com/api/webhooks/1/abc",
	}
	if err := Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *got != *want {
		t.Errorf("Load = %+v, want %+v", got, want)
	}

	if err := Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if Exists() {
		t.Error("config still exists after Delete")
	}
}

func TestResolvePrecedence(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if err := Save(&Credentials{Host: "stored.example.com", Token: "stored@pam!t=s", WebhookURL: "https://hook"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	t.Setenv("PVEWATCH_HOST", "env.example.com")
	t.Setenv("PVEWATCH_INTERVAL", "30s")
	t.Setenv("PVEWATCH_LOG_LEVEL", "debug")

	conf, err := Resolve(context.Background(), NewViper())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if conf.Host != "env.example.com" {
		t.Errorf("host = %q, env must win over stored", conf.Host)
	}
	if conf.Token != "stored@pam!t=s" || conf.WebhookURL != "https://hook" {
		t.Errorf("stored credentials not applied: %+v", conf)
	}
	if conf.Interval != 30*time.Second {
		t.Errorf("interval = %s", conf.Interval)
	}
	if conf.ErrorBackoff != time.Minute || conf.Port != "8006" || conf.IgnoreFrom != 9000 || conf.IgnoreTo != 10000 {
		t.Errorf("defaults lost: %+v", conf)
	}
	if conf.Log.Level != "debug" {
		t.Errorf("log level = %q", conf.Log.Level)
	}
	if err := conf.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	c := Default()
	c.IgnoreFrom = 10
	c.IgnoreTo = 5
	c.Interval = 0

	err := c.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"host is required", "token is required", "webhook_url", "interval", "ignore_vmid_from"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}

	c = Default()
	c.Host, c.Token, c.DryRun = "pve", "a@pam!b=c", true
	if err := c.Validate(); err != nil {
		t.Errorf("dry run without webhook: %v", err)
	}

	// 0/0 would otherwise read as "use the default range" further down.
	c.IgnoreFrom, c.IgnoreTo = 0, 0
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "ignore_vmid_from") {
		t.Errorf("empty ignore range accepted: %v", err)
	}
}

func TestResolveSkipsUnreadableCredentials(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := mustPath(t)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(`{"iv":"AAAAAAAAAAAAAAAA","data":"bm9wZQ=="}`), 0o600); err != nil {
		t.Fatal(err)
	}

	conf, err := Resolve(context.Background(), NewViper())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if conf.Host != "" || conf.Token != "" {
		t.Errorf("credentials from an unreadable file: %+v", conf)
	}
	if conf.Port != "8006" {
		t.Errorf("defaults lost: port = %q", conf.Port)
	}
}

func TestLoadFromAnotherMachine(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if err := Save(&Credentials{Host: "pve", Token: "a@pam!b=c"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	path, err := Path()
	if err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	// Same file under a different home derives a different key.
	t.Setenv("HOME", t.TempDir())
	if err := os.MkdirAll(filepath.Dir(mustPath(t)), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(mustPath(t), raw, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(); err == nil || errors.Is(err, ErrNotExist) {
		t.Errorf("Load of foreign file = %v, want decrypt error", err)
	}
}

func mustPath(t *testing.T) string {
	t.Helper()
	p, err := Path()
	if err != nil {
		t.Fatal(err)
	}
	return p
}
