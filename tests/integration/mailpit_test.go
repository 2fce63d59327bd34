//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// mailbox reads SLA alert mail captured by Mailpit.
type mailbox struct {
	baseURL string
	http    *http.Client
}

func newMailbox(baseURL string) *mailbox {
	return &mailbox{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
}

type mailAddress struct {
	Address string `json:"Address"`
}

type mailMessage struct {
	ID      string        `json:"ID"`
	Subject string        `json:"Subject"`
	To      []mailAddress `json:"To"`
	Bcc     []mailAddress `json:"Bcc"`
}

// recipients merges To and Bcc; the alert sender addresses the NOC list
// through Bcc.
func (m mailMessage) recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.Bcc))
	for _, a := range append(append([]mailAddress(nil), m.To...), m.Bcc...) {
		out = append(out, a.Address)
	}
	return out
}

func (b *mailbox) do(method, path string, out any) error {
	req, err := http.NewRequest(method, b.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// purge empties the inbox.
func (b *mailbox) purge(t *testing.T) {
	t.Helper()
	require.NoError(t, b.do(http.MethodDelete, "/api/v1/messages", nil))
}

func (b *mailbox) list() ([]mailMessage, error) {
	var page struct {
		Messages []mailMessage `json:"messages"`
	}
	if err := b.do(http.MethodGet, "/api/v1/messages", &page); err != nil {
		return nil, err
	}
	return page.Messages, nil
}

// message fetches one message with its full headers.
func (b *mailbox) message(t *testing.T, id string) mailMessage {
	t.Helper()
	var msg mailMessage
	require.NoError(t, b.do(http.MethodGet, "/api/v1/message/"+id, &msg))
	return msg
}

// requireAlerts waits until a breach and a warning for the fault reference
// have arrived and returns the breach message.
func (b *mailbox) requireAlerts(t *testing.T, reference string, timeout time.Duration) mailMessage {
	t.Helper()

	breach := "[SLA Breach] Critical fault " + reference + ":"
	warning := "[SLA Warning] Critical fault " + reference + ":"

	var found map[string]mailMessage
	require.Eventually(t, func() bool {
		messages, err := b.list()
		if err != nil {
			return false
		}
		found = make(map[string]mailMessage, 2)
		for _, m := range messages {
			for _, prefix := range []string{breach, warning} {
				if strings.HasPrefix(m.Subject, prefix) {
					found[prefix] = m
				}
			}
		}
		return len(found) == 2
	}, timeout, 100*time.Millisecond, "SLA alerts for %s not delivered", reference)

	return found[breach]
}
