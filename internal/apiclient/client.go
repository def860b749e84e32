// Package apiclient talks to the remote ledger service over HTTP/JSON.
// Authorized calls carry the active session's bearer credential; any 401 or
// 403 on such a call invalidates that session.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bank-client/internal/apierr"
	"github.com/Dan9191/bank-client/internal/config"
)

const maxBodySize = 1 << 20

// Credentials supplies the bearer token and receives authorization failures
type Credentials interface {
	Token() (string, bool)
	Invalidate(reason string)
}

// Client handles integration with the ledger API
type Client struct {
	baseURL string
	client  *http.Client
	log     *logrus.Logger
	creds   Credentials
}

// NewClient initializes a new ledger client
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		client: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		log: log,
	}
}

// UseCredentials binds the session whose token authorizes requests
func (c *Client) UseCredentials(creds Credentials) {
	c.creds = creds
}

type messageBody struct {
	Message string `json:"message"`
}

// do sends one request. in, when non-nil, is encoded as the JSON body; out,
// when non-nil, receives the decoded 2xx response.
func (c *Client) do(ctx context.Context, op, method, path string, authorized bool, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return apierr.Transport(op, fmt.Errorf("failed to encode request: %w", err))
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apierr.Transport(op, fmt.Errorf("failed to create request: %w", err))
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorized {
		token, ok := c.token()
		if !ok {
			return &apierr.Error{Kind: apierr.KindUnauthorized, Op: op, Message: "Not logged in."}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	log := c.log.WithFields(logrus.Fields{"op": op, "request_id": requestID})
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		log.WithError(err).Warn("Request failed")
		return apierr.Transport(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return apierr.Transport(op, fmt.Errorf("failed to read response: %w", err))
	}
	log.WithFields(logrus.Fields{
		"status":  resp.StatusCode,
		"elapsed": time.Since(start),
	}).Debugf("%s %s", method, path)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var msg messageBody
		_ = json.Unmarshal(raw, &msg)
		e := apierr.FromStatus(op, resp.StatusCode, msg.Message)
		if authorized && e.Kind == apierr.KindUnauthorized && c.creds != nil {
			log.Info("Credential rejected, invalidating session")
			c.creds.Invalidate("unauthorized")
		}
		return e
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return apierr.Transport(op, fmt.Errorf("failed to decode response: %w", err))
		}
	}
	return nil
}

func (c *Client) token() (string, bool) {
	if c.creds == nil {
		return "", false
	}
	return c.creds.Token()
}
