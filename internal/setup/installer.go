package setup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/berocorpdotnet/pvewatch/internal/api"
	"github.com/berocorpdotnet/pvewatch/internal/config"
	"github.com/berocorpdotnet/pvewatch/internal/theme"
)

type installState int

const (
	stateForm installState = iota
	stateConnecting
	stateCreatingToken
	stateSaving
	stateComplete
	stateError
)

const (
	focusHost = iota
	focusPort
	focusUser
	focusPass
	focusRealm
	focusWebhook
	focusSubmit
)

var fieldLabels = [...]string{
	focusHost:    "Host:",
	focusPort:    "Port:",
	focusUser:    "Username:",
	focusPass:    "Password:",
	focusRealm:   "Realm:",
	focusWebhook: "Webhook:",
}

const stepTimeout = 15 * time.Second

type installerModel struct {
	state     installState
	inputs    []textinput.Model
	focused   int
	width     int
	height    int
	statusMsg string
	creds     *config.Credentials
	client    *api.Client
}

type progressMsg struct {
	state   installState
	message string
	err     error
	token   string
}

func newInput(value, placeholder string, limit int) textinput.Model {
	in := textinput.New()
	in.SetValue(value)
	in.Placeholder = placeholder
	in.CharLimit = limit
	in.Width = 40
	return in
}

// NewInstallerModel pre-fills the form from prev when reconfiguring.
func NewInstallerModel(prev *config.Credentials) installerModel {
	if prev == nil {
		prev = &config.Credentials{}
	}
	port := prev.Port
	if port == "" {
		port = "8006"
	}
	user, realm := "", "pam"
	if prev.Username != "" {
		user, realm, _ = strings.Cut(prev.Username, "@")
		if realm == "" {
			realm = "pam"
		}
	}

	inputs := make([]textinput.Model, focusSubmit)
	inputs[focusHost] = newInput(prev.Host, "pve.example.com", 100)
	inputs[focusPort] = newInput(port, "", 5)
	inputs[focusUser] = newInput(user, "root", 50)
	inputs[focusPass] = newInput("", "", 100)
	inputs[focusPass].EchoMode = textinput.EchoPassword
	inputs[focusRealm] = newInput(realm, "", 20)
	inputs[focusWebhook] = newInput(prev.WebhookURL, "https://discord.com/api/webhooks/...", 300)
	inputs[focusHost].Focus()

	return installerModel{
		state:  stateForm,
		inputs: inputs,
	}
}

func (m installerModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m installerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		if m.state != stateForm {
			switch msg.String() {
			case "ctrl+c", "q", "enter":
				if m.state == stateComplete || m.state == stateError {
					return m, tea.Quit
				}
			}
			return m, nil
		}

		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "tab", "down", "shift+tab", "up":
			if msg.String() == "up" || msg.String() == "shift+tab" {
				m.focused--
			} else {
				m.focused++
			}
			m.focused = (m.focused + focusSubmit + 1) % (focusSubmit + 1)
			m.updateFocus()
			return m, nil

		case "enter", " ", "space":
			if m.focused == focusRealm {
				m.toggleRealm()
				return m, nil
			}
			if msg.String() != "enter" {
				break
			}
			if m.focused == focusSubmit {
				if !m.isFormValid() {
					m.statusMsg = "Please fill in all fields"
					return m, nil
				}
				return m.startInstallation()
			}
			m.focused++
			m.updateFocus()
			return m, nil
		}

	case progressMsg:
		m.state = msg.state
		m.statusMsg = msg.message
		if msg.err != nil {
			m.state = stateError
			m.statusMsg = msg.message + ": " + msg.err.Error()
			return m, nil
		}
		if msg.token != "" {
			m.creds.Token = msg.token
		}

		switch msg.state {
		case stateConnecting:
			return m, m.testConnection()
		case stateCreatingToken:
			return m, m.createToken()
		case stateSaving:
			return m, m.saveConfig()
		case stateComplete:
			m.statusMsg = "Setup completed! Run pvewatch to start monitoring."
		}
		return m, nil
	}

	if m.focused < focusRealm || m.focused == focusWebhook {
		var cmd tea.Cmd
		m.inputs[m.focused], cmd = m.inputs[m.focused].Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *installerModel) toggleRealm() {
	if m.inputs[focusRealm].Value() == "pam" {
		m.inputs[focusRealm].SetValue("pve")
	} else {
		m.inputs[focusRealm].SetValue("pam")
	}
}

func (m *installerModel) updateFocus() {
	for i := range m.inputs {
		if i == m.focused {
			m.inputs[i].Focus()
		} else {
			m.inputs[i].Blur()
		}
	}
}

func (m installerModel) value(field int) string {
	return strings.TrimSpace(m.inputs[field].Value())
}

func (m installerModel) valueOr(field int, fallback string) string {
	if v := m.value(field); v != "" {
		return v
	}
	return fallback
}

func (m installerModel) isFormValid() bool {
	return m.value(focusHost) != "" && m.inputs[focusPass].Value() != "" && m.value(focusWebhook) != ""
}

func (m installerModel) startInstallation() (installerModel, tea.Cmd) {
	host, err := ValidateHost(m.value(focusHost))
	if err != nil {
		m.statusMsg = "Invalid host: " + err.Error()
		return m, nil
	}
	webhook, err := ValidateWebhook(m.value(focusWebhook))
	if err != nil {
		m.statusMsg = "Invalid webhook: " + err.Error()
		return m, nil
	}

	m.creds = &config.Credentials{
		Host:       host,
		Port:       m.valueOr(focusPort, "8006"),
		Username:   fmt.Sprintf("%s@%s", m.valueOr(focusUser, "root"), m.valueOr(focusRealm, "pam")),
		WebhookURL: webhook,
	}
	m.client = api.NewClient(m.creds.Host, m.creds.Port)
	m.state = stateConnecting
	m.statusMsg = "Starting Proxmox VE setup..."

	return m, func() tea.Msg {
		return progressMsg{
			state:   stateConnecting,
			message: "Testing connection to " + host,
		}
	}
}

func (m installerModel) testConnection() tea.Cmd {
	client, username, password := m.client, m.creds.Username, m.inputs[focusPass].Value()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), stepTimeout)
		defer cancel()

		if err := client.Login(ctx, username, password); err != nil {
			return progressMsg{state: stateError, message: "Connection failed", err: err}
		}
		nodes, err := client.GetNodes(ctx)
		if err != nil {
			return progressMsg{state: stateError, message: "Failed to get nodes", err: err}
		}
		return progressMsg{
			state:   stateCreatingToken,
			message: fmt.Sprintf("Connected! Found %d node(s). Creating API token...", len(nodes)),
		}
	}
}

func (m installerModel) createToken() tea.Cmd {
	client, username := m.client, m.creds.Username
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), stepTimeout)
		defer cancel()

		tokenID := fmt.Sprintf("pvewatch-%d", time.Now().Unix())
		token, err := client.CreateAPIToken(ctx, username, tokenID)
		if err != nil {
			return progressMsg{state: stateError, message: "Failed to create API token", err: err}
		}
		return progressMsg{
			state:   stateSaving,
			message: "API token created successfully. Saving configuration...",
			token:   token,
		}
	}
}

func (m installerModel) saveConfig() tea.Cmd {
	creds := *m.creds
	return func() tea.Msg {
		if err := config.Save(&creds); err != nil {
			return progressMsg{state: stateError, message: "Failed to save configuration", err: err}
		}
		return progressMsg{state: stateComplete, message: "Configuration saved securely"}
	}
}

func (m installerModel) View() string {
	if m.width < 80 || m.height < 26 {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.Catppuccin.Text).
			Render(fmt.Sprintf("Terminal too small\nMinimum: 80x26\nCurrent: %dx%d", m.width, m.height))
	}

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.Catppuccin.Blue).
		Align(lipgloss.Center).
		Width(64).
		MarginBottom(1).
		Render("pvewatch Setup")

	subtitle := lipgloss.NewStyle().
		Foreground(theme.Catppuccin.Subtext1).
		Align(lipgloss.Center).
		Width(64).
		MarginBottom(1).
		Render("Connect to Proxmox VE and choose where state changes are posted")

	labelStyle := lipgloss.NewStyle().
		Foreground(theme.Catppuccin.Subtext1).
		Bold(true).
		Width(10).
		Align(lipgloss.Right)
	focusedLabelStyle := labelStyle.Foreground(theme.Catppuccin.Blue)
	inputStyle := lipgloss.NewStyle().
		Width(44).
		Background(theme.Catppuccin.Surface0).
		Padding(0, 1)

	rows := make([]string, 0, 2*len(m.inputs)+1)
	for i, in := range m.inputs {
		label := labelStyle
		if i == m.focused {
			label = focusedLabelStyle
		}
		value := in.View()
		if i == focusRealm {
			value = fmt.Sprintf("[%s] (space to toggle pam/pve)", in.Value())
		}
		rows = append(rows, label.Render(fieldLabels[i])+" "+inputStyle.Render(value), "")
	}

	button := lipgloss.NewStyle().
		Foreground(theme.Catppuccin.Text).
		Background(theme.Catppuccin.Surface1).
		Padding(0, 2).
		MarginLeft(12)
	if m.focused == focusSubmit {
		button = button.Foreground(theme.Catppuccin.Base).Background(theme.Catppuccin.Blue).Bold(true)
	}
	rows = append(rows, button.Render("Continue"))

	form := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.Catppuccin.Surface1).
		Padding(1, 2).
		Width(64).
		MarginBottom(1).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))

	status, statusColor := m.statusLine()
	statusLine := lipgloss.NewStyle().
		Foreground(statusColor).
		Align(lipgloss.Center).
		Width(64).
		MarginBottom(1).
		Render(status)

	help := "Please wait..."
	switch {
	case m.state == stateForm:
		help = "Tab/Enter: Navigate • ↑↓: Navigate • Ctrl+C: Quit"
	case m.state == stateComplete || m.state == stateError:
		help = "Enter: Exit • Ctrl+C: Quit"
	}
	helpText := lipgloss.NewStyle().
		Foreground(theme.Catppuccin.Overlay0).
		Align(lipgloss.Center).
		Width(64).
		Render(help)

	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(lipgloss.JoinVertical(lipgloss.Center, title, subtitle, form, statusLine, helpText))
}

func (m installerModel) statusLine() (string, lipgloss.Color) {
	if m.statusMsg != "" {
		if m.state == stateError {
			return m.statusMsg, theme.Catppuccin.Red
		}
		return m.statusMsg, theme.Catppuccin.Blue
	}
	switch m.state {
	case stateConnecting:
		return "Connecting to Proxmox...", theme.Catppuccin.Yellow
	case stateCreatingToken:
		return "Creating API token...", theme.Catppuccin.Blue
	case stateSaving:
		return "Saving configuration...", theme.Catppuccin.Mauve
	}
	if m.isFormValid() {
		return "Ready! Press Enter on Continue", theme.Catppuccin.Green
	}
	return "Fill in all fields to continue", theme.Catppuccin.Yellow
}
