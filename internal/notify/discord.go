package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Discord posts messages as embeds to a Discord webhook.
type Discord struct {
	webhookURL string
	username   string
	client     *http.Client
}

func NewDiscord(webhookURL string, timeout time.Duration) *Discord {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Discord{
		webhookURL: webhookURL,
		username:   "pvewatch",
		client:     &http.Client{Timeout: timeout},
	}
}

func (d *Discord) Validate() error {
	if d.webhookURL == "" {
		return errors.New("webhook_url is required")
	}
	u, err := url.Parse(d.webhookURL)
	if err != nil {
		return fmt.Errorf("invalid webhook_url: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("webhook_url must be http(s), got %q", u.Scheme)
	}
	return nil
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type embedText struct {
	Text string `json:"text"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Footer      *embedText   `json:"footer,omitempty"`
}

type webhookPayload struct {
	Username string  `json:"username,omitempty"`
	Embeds   []embed `json:"embeds"`
}

func toEmbed(msg Message) embed {
	e := embed{
		Title:       msg.Title,
		Description: msg.Description,
		Color:       msg.Color,
	}
	if !msg.Timestamp.IsZero() {
		e.Timestamp = msg.Timestamp.Format(time.RFC3339)
	}
	for _, f := range msg.Fields {
		e.Fields = append(e.Fields, embedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if msg.Footer != "" {
		e.Footer = &embedText{Text: msg.Footer}
	}
	return e
}

func (d *Discord) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(webhookPayload{Username: d.username, Embeds: []embed{toEmbed(msg)}})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord returned %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}
	return nil
}
