package setup

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/berocorpdotnet/pvewatch/internal/config"
)

func TestValidateHost(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"pve.example.com", "pve.example.com", false},
		{"https://pve.example.com:8006/", "pve.example.com", false},
		{"http://10.0.0.5", "10.0.0.5", false},
		{"", "", true},
		{"pve example", "", true},
		{"pve/api", "", true},
		{"https://", "", true},
	}
	for _, tt := range tests {
		got, err := ValidateHost(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ValidateHost(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestValidateToken(t *testing.T) {
	valid := []string{
		"root@pam!pvewatch=aaaa-bbbb",
		"PVEAPIToken=monitor@pve!ci=secret",
	}
	for _, tok := range valid {
		if err := ValidateToken(tok); err != nil {
			t.Errorf("ValidateToken(%q): %v", tok, err)
		}
	}

	invalid := []string{
		"",
		"root@pam!pvewatch",
		"root@pam!pvewatch=",
		"root@pampvewatch=secret",
		"root!pvewatch=secret",
		"@pam!x=secret",
		"root@pam!=secret",
		"root@pam!x=a=b",
	}
	for _, tok := range invalid {
		if err := ValidateToken(tok); err == nil {
			t.Errorf("ValidateToken(%q) accepted", tok)
		}
	}
}

func TestValidateWebhook(t *testing.T) {
	if got, err := ValidateWebhook("  https://discord.com/api/webhooks/1/x "); err != nil || got != "https://discord.com/api/webhooks/1/x" {
		t.Errorf("ValidateWebhook = %q, %v", got, err)
	}
	for _, raw := range []string{"", "discord.com/hook", "ftp://host/x", "https://"} {
		if _, err := ValidateWebhook(raw); err == nil {
			t.Errorf("ValidateWebhook(%q) accepted", raw)
		}
	}
}

func TestShowReconfigurePrompt(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	var out bytes.Buffer

	ok, err := ShowReconfigurePrompt(strings.NewReader("maybe\ny\n"), &out)
	if err != nil || !ok {
		t.Fatalf("prompt = %v, %v", ok, err)
	}
	if !strings.Contains(out.String(), "Please enter 'y'") {
		t.Errorf("output = %q", out.String())
	}
}

func fakeProxmox(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api2/json/access/ticket":
			_, _ = w.Write([]byte(`{"data":{"ticket":"T","CSRFPreventionToken":"C"}}`))
		case "/api2/json/nodes":
			_, _ = w.Write([]byte(`{"data":[{"node":"pve1"}]}`))
		default:
			if strings.HasPrefix(r.URL.Path, "/api2/json/access/users/root@pam/token/pvewatch-") {
				_, _ = w.Write([]byte(`{"data":{"value":"generated"}}`))
				return
			}
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunPlainSetup(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	srv := fakeProxmox(t)
	u, _ := url.Parse(srv.URL)

	input := strings.Join([]string{
		"https://" + u.Hostname(),
		u.Port(),
		"root@pam!manual=secret",
		"https://hooks.example.com/abc",
	}, "\n") + "\n"

	var out bytes.Buffer
	creds, err := RunPlainSetup(context.Background(), strings.NewReader(input), &out)
	if err != nil {
		t.Fatalf("RunPlainSetup: %v (output %q)", err, out.String())
	}
	if creds.Username != "root@pam" || creds.Host != u.Hostname() || creds.WebhookURL != "https://hooks.example.com/abc" {
		t.Errorf("creds = %+v", creds)
	}

	stored, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *stored != *creds {
		t.Errorf("stored = %+v, want %+v", stored, creds)
	}
}

// drive feeds msg to m and runs the returned command chain until it settles.
func drive(t *testing.T, m installerModel, msg tea.Msg) installerModel {
	t.Helper()
	for i := 0; i < 10 && msg != nil; i++ {
		next, cmd := m.Update(msg)
		m = next.(installerModel)
		if cmd == nil {
			return m
		}
		msg = cmd()
	}
	return m
}

func TestInstallerFlow(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	srv := fakeProxmox(t)
	u, _ := url.Parse(srv.URL)

	m := NewInstallerModel(nil)
	m.inputs[focusHost].SetValue(u.Hostname())
	m.inputs[focusPort].SetValue(u.Port())
	m.inputs[focusPass].SetValue("secret")
	m.inputs[focusWebhook].SetValue("https://hooks.example.com/abc")

	if m.inputs[focusRealm].Value() != "pam" {
		t.Fatalf("default realm = %q", m.inputs[focusRealm].Value())
	}
	m.focused = focusSubmit

	m = drive(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if m.state != stateComplete {
		t.Fatalf("state = %v, status %q", m.state, m.statusMsg)
	}
	if !strings.HasPrefix(m.creds.Token, "root@pam!pvewatch-") || !strings.HasSuffix(m.creds.Token, "=generated") {
		t.Errorf("token = %q", m.creds.Token)
	}
	if !config.Exists() {
		t.Error("credentials were not saved")
	}
}

func TestInstallerFocusAndRealmToggle(t *testing.T) {
	m := NewInstallerModel(&config.Credentials{Username: "monitor@pve", Port: "8443"})
	if m.inputs[focusUser].Value() != "monitor" || m.inputs[focusRealm].Value() != "pve" || m.inputs[focusPort].Value() != "8443" {
		t.Fatalf("prefill failed: user=%q realm=%q", m.inputs[focusUser].Value(), m.inputs[focusRealm].Value())
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	m = next.(installerModel)
	if m.focused != focusSubmit {
		t.Errorf("shift+tab from host: focus = %d, want submit", m.focused)
	}

	m.focused = focusRealm
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{' '}})
	m = next.(installerModel)
	if m.inputs[focusRealm].Value() != "pam" {
		t.Errorf("realm after toggle = %q", m.inputs[focusRealm].Value())
	}

	m.focused = focusSubmit
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(installerModel)
	if m.state != stateForm || m.statusMsg == "" {
		t.Errorf("submitting an incomplete form: state=%v status=%q", m.state, m.statusMsg)
	}
}
