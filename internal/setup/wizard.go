package setup

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/berocorpdotnet/pvewatch/internal/api"
	"github.com/berocorpdotnet/pvewatch/internal/config"
)

// IsInteractive reports whether stdin is a terminal the wizard can drive.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// RunSetupWizard runs the full-screen wizard, pre-filled from prev.
func RunSetupWizard(prev *config.Credentials) (*config.Credentials, error) {
	p := tea.NewProgram(NewInstallerModel(prev), tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("setup failed: %w", err)
	}

	m := finalModel.(installerModel)
	if m.state == stateComplete {
		return m.creds, nil
	}
	return nil, fmt.Errorf("setup was cancelled or failed")
}

// RunPlainSetup asks for an existing API token line by line. It is used when
// there is no terminal for the wizard, e.g. under a service manager's console.
func RunPlainSetup(ctx context.Context, in io.Reader, out io.Writer) (*config.Credentials, error) {
	reader := bufio.NewReader(in)
	ask := func(prompt, fallback string) (string, error) {
		if fallback != "" {
			fmt.Fprintf(out, "%s [%s]: ", prompt, fallback)
		} else {
			fmt.Fprintf(out, "%s: ", prompt)
		}
		line, err := reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", err
		}
		if line = strings.TrimSpace(line); line == "" {
			return fallback, nil
		}
		return line, nil
	}

	rawHost, err := ask("Proxmox host", "")
	if err != nil {
		return nil, err
	}
	host, err := ValidateHost(rawHost)
	if err != nil {
		return nil, err
	}
	port, err := ask("Port", "8006")
	if err != nil {
		return nil, err
	}

	fmt.Fprint(out, "API token (USER@REALM!TOKENID=SECRET): ")
	token, err := readPassword(in, reader)
	if err != nil {
		return nil, err
	}
	if err := ValidateToken(token); err != nil {
		return nil, err
	}

	rawWebhook, err := ask("Discord webhook URL", "")
	if err != nil {
		return nil, err
	}
	webhook, err := ValidateWebhook(rawWebhook)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	nodes, err := api.NewClientWithToken(host, port, token).GetNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("test connection: %w", err)
	}
	fmt.Fprintf(out, "Connected, found %d node(s).\n", len(nodes))

	user, _, _ := strings.Cut(token, "!")
	creds := &config.Credentials{Host: host, Port: port, Username: user, Token: token, WebhookURL: webhook}
	if err := config.Save(creds); err != nil {
		return nil, err
	}
	return creds, nil
}

// readPassword hides input when in is a terminal and reads a plain line otherwise.
func readPassword(in io.Reader, reader *bufio.Reader) (string, error) {
	f, isFile := in.(*os.File)
	if !isFile || !term.IsTerminal(int(f.Fd())) {
		password, err := reader.ReadString('\n')
		if err != nil && (err != io.EOF || password == "") {
			return "", err
		}
		return strings.TrimSpace(password), nil
	}

	bytePassword, err := term.ReadPassword(int(f.Fd()))
	if err != nil {
		return "", err
	}

	fmt.Fprintln(os.Stderr)
	return string(bytePassword), nil
}

func ValidateHost(host string) (string, error) {
	if host == "" {
		return "", fmt.Errorf("host cannot be empty")
	}

	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")

	if colonIndex := strings.Index(host, ":"); colonIndex != -1 {
		host = host[:colonIndex]
	}

	host = strings.TrimSuffix(host, "/")

	if host == "" || strings.Contains(host, "/") || strings.Contains(host, " ") {
		return "", fmt.Errorf("invalid host format")
	}

	return host, nil
}

func ValidateToken(token string) error {
	token = strings.TrimPrefix(token, "PVEAPIToken=")
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}

	userTokenPart, secret, ok := strings.Cut(token, "=")
	if !ok {
		return fmt.Errorf("token must contain '=' (missing secret part)")
	}
	if secret == "" || strings.Contains(secret, "=") {
		return fmt.Errorf("token format should be USER@REALM!TOKENID=SECRET")
	}

	user, tokenID, ok := strings.Cut(userTokenPart, "!")
	if !ok {
		return fmt.Errorf("token must contain '!' (missing token ID)")
	}
	if user == "" {
		return fmt.Errorf("user part cannot be empty")
	}
	if tokenID == "" || strings.Contains(tokenID, "!") {
		return fmt.Errorf("token ID cannot be empty")
	}
	if !strings.Contains(user, "@") {
		return fmt.Errorf("user must include realm (e.g., user@pam)")
	}

	return nil
}

// ValidateWebhook accepts an absolute http(s) URL and returns it trimmed.
func ValidateWebhook(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("webhook URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid webhook URL: %w", err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return "", fmt.Errorf("webhook URL must be an absolute http(s) URL")
	}
	return raw, nil
}

func ShowReconfigurePrompt(in io.Reader, out io.Writer) (bool, error) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, " Configuration already exists.")

	configPath, _ := config.Path()
	fmt.Fprintf(out, "Current config location: %s\n", configPath)
	fmt.Fprintln(out)

	reader := bufio.NewReader(in)

	for {
		fmt.Fprint(out, "Do you want to reconfigure? (y/n): ")
		response, err := reader.ReadString('\n')
		if err != nil {
			return false, fmt.Errorf("failed to read response: %w", err)
		}

		switch strings.ToLower(strings.TrimSpace(response)) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		default:
			fmt.Fprintln(out, "Please enter 'y' for yes or 'n' for no.")
		}
	}
}
