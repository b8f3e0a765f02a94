// Package gateway implements the HTTP client for the external encryption
// service. The service is stateless: it transforms plaintext to an opaque
// ciphertext blob keyed by sender/receiver identity, and back. Its algorithm
// is out of scope here; only the call/response contract is.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrBadStatus indicates the gateway answered with a non-success status.
	ErrBadStatus = errors.New("encryption gateway returned non-success status")
	// ErrInvalidPayload indicates the gateway response body was not valid JSON.
	ErrInvalidPayload = errors.New("encryption gateway returned invalid payload")
	// ErrMissingField indicates the response parsed but lacked the expected
	// result field.
	ErrMissingField = errors.New("encryption gateway response missing result field")
	// ErrBatchMismatch indicates a decrypt response batch whose length differs
	// from the request batch.
	ErrBatchMismatch = errors.New("encryption gateway batch length mismatch")
	// ErrUnavailable indicates a transport-level failure, including timeouts.
	ErrUnavailable = errors.New("encryption gateway unavailable")
)

// IsFailure reports whether the error belongs to the gateway failure family,
// which callers surface as a 502-class upstream error.
func IsFailure(err error) bool {
	return errors.Is(err, ErrBadStatus) ||
		errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrBatchMismatch) ||
		errors.Is(err, ErrUnavailable)
}

// CipherMessage is one entry of a decrypt request batch.
type CipherMessage struct {
	Ciphertext string    `json:"encryptedContent"`
	ReceiverID string    `json:"receiverId"`
	SentAt     time.Time `json:"sentAt"`
	Status     int       `json:"status"`
}

// Client calls the encryption gateway over HTTP with a bounded timeout. A hang
// surfaces as ErrUnavailable, never blocks the request indefinitely.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a gateway client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type encryptRequest struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

type encryptResponse struct {
	EncryptedContent *string `json:"encryptedContent"`
}

// Encrypt transforms plaintext into an opaque ciphertext blob.
func (c *Client) Encrypt(ctx context.Context, senderID, receiverID, plaintext string) (string, error) {
	var resp encryptResponse
	if err := c.post(ctx, "/encrypt", encryptRequest{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    plaintext,
	}, &resp); err != nil {
		return "", err
	}

	if resp.EncryptedContent == nil {
		return "", fmt.Errorf("encrypt: %w", ErrMissingField)
	}

	return *resp.EncryptedContent, nil
}

type decryptRequest struct {
	Messages []CipherMessage `json:"messages"`
}

type decryptResponse struct {
	Messages []struct {
		Content *string `json:"content"`
	} `json:"messages"`
}

// DecryptBatch transforms a batch of ciphertexts back to plaintext in one
// round trip. The response is aligned with the request strictly by position;
// the gateway is not guaranteed to echo any identifying field, so callers must
// never try to match entries by content.
func (c *Client) DecryptBatch(ctx context.Context, batch []CipherMessage) ([]string, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	var resp decryptResponse
	if err := c.post(ctx, "/decrypt", decryptRequest{Messages: batch}, &resp); err != nil {
		return nil, err
	}

	if resp.Messages == nil {
		return nil, fmt.Errorf("decrypt: %w", ErrMissingField)
	}
	if len(resp.Messages) != len(batch) {
		return nil, fmt.Errorf("decrypt: sent %d received %d: %w", len(batch), len(resp.Messages), ErrBatchMismatch)
	}

	plaintexts := make([]string, len(resp.Messages))
	for i, msg := range resp.Messages {
		if msg.Content == nil {
			return nil, fmt.Errorf("decrypt entry %d: %w", i, ErrMissingField)
		}
		plaintexts[i] = *msg.Content
	}

	return plaintexts, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %v: %w", path, err, ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("call %s: status %d: %w", path, resp.StatusCode, ErrBadStatus)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse %s response: %v: %w", path, err, ErrInvalidPayload)
	}

	return nil
}
