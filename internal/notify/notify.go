// Package notify posts job completion messages to an ntfy topic.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var ErrNoEndpoint = errors.New("notify: endpoint is empty")

// Job summarises a finished download for a notification.
type Job struct {
	Title  string
	Status string
	Pages  int
	Failed int
	Err    error
}

// JobMessage returns the notification title and body for a finished job.
func JobMessage(j Job) (string, string) {
	done := j.Pages - j.Failed
	switch j.Status {
	case "success":
		return "Download complete", fmt.Sprintf("%s: all %d pages downloaded.", j.Title, j.Pages)
	case "partial":
		return "Download partially complete", fmt.Sprintf("%s: downloaded %d of %d. Errors: %d.", j.Title, done, j.Pages, j.Failed)
	default:
		msg := fmt.Sprintf("%s: download failed.", j.Title)
		if j.Err != nil {
			msg = fmt.Sprintf("%s: download failed: %v", j.Title, j.Err)
		}
		return "Download failed", msg
	}
}

// Notifier sends messages to a fixed endpoint. A Notifier with no endpoint
// is disabled and Notify is a no-op.
type Notifier struct {
	Endpoint string
	Client   *http.Client
}

func (n *Notifier) Enabled() bool { return n != nil && n.Endpoint != "" }

// Notify sends the message for j when the notifier is enabled.
func (n *Notifier) Notify(ctx context.Context, j Job) error {
	if !n.Enabled() {
		return nil
	}
	title, body := JobMessage(j)
	return SendTitled(ctx, n.Client, n.Endpoint, title, body)
}

// Send posts message to endpoint.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	return SendTitled(ctx, client, endpoint, "", message)
}

// SendTitled posts message with an ntfy Title header.
func SendTitled(ctx context.Context, client *http.Client, endpoint, title, message string) error {
	if endpoint == "" {
		return ErrNoEndpoint
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	if title != "" {
		req.Header.Set("Title", title)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
