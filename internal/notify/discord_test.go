package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDiscordSendPostsEmbed(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL, time.Second)
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	msg := Message{
		Title:       "VM Running: web01",
		Description: "Hostname: web01",
		Color:       0x00FF00,
		Timestamp:   time.Date(2026, 10, 18, 8, 30, 0, 0, time.UTC),
		Fields:      []Field{{Name: "VM ID", Value: "101", Inline: true}},
		Footer:      "Proxmox VE · pve1",
	}
	if err := d.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(got.Embeds) != 1 {
		t.Fatalf("embeds = %d, want 1", len(got.Embeds))
	}
	e := got.Embeds[0]
	if e.Title != msg.Title || e.Color != msg.Color {
		t.Errorf("embed = %+v", e)
	}
	if e.Timestamp != "2026-10-18T08:30:00Z" {
		t.Errorf("timestamp = %q", e.Timestamp)
	}
	if e.Footer == nil || e.Footer.Text != msg.Footer {
		t.Errorf("footer = %+v", e.Footer)
	}
	if len(e.Fields) != 1 || e.Fields[0].Value != "101" {
		t.Errorf("fields = %+v", e.Fields)
	}
}

func TestDiscordSendReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscord(srv.URL, time.Second).Send(context.Background(), Message{Title: "x"})
	if err == nil {
		t.Fatal("expected error for 429")
	}
}

func TestDiscordValidate(t *testing.T) {
	for _, u := range []string{"", "ftp://example.com/hook", "::bad"} {
		if err := NewDiscord(u, 0).Validate(); err == nil {
			t.Errorf("Validate(%q) succeeded", u)
		}
	}
}
