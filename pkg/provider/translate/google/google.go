// Package google provides a translator backed by the public Google Translate
// web endpoint (translate_a/single, client=gtx). It requires no API key.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/jurubahasa/pkg/provider/translate"
)

const (
	defaultEndpoint = "https://translate.googleapis.com/translate_a/single"
	providerName    = "google"
	maxBodyBytes    = 1 << 20
)

// Option is a functional option for the Translator.
type Option func(*Translator)

// WithEndpoint overrides the translate endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(t *Translator) {
		t.endpoint = endpoint
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Translator) {
		t.client = c
	}
}

// Translator implements translate.Translator against the gtx endpoint.
type Translator struct {
	endpoint string
	client   *http.Client
}

// New returns a Translator with a 10s request timeout.
func New(opts ...Option) *Translator {
	t := &Translator{
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// buildURL returns the request URL for req.
func (t *Translator) buildURL(req translate.Request) (string, error) {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("client", "gtx")
	q.Set("sl", req.Source)
	q.Set("tl", req.Target)
	q.Set("dt", "t")
	q.Set("q", req.Text)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Translate implements translate.Translator.
func (t *Translator) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return translate.Result{}, errors.New("google: empty text")
	}
	rawURL, err := t.buildURL(req)
	if err != nil {
		return translate.Result{}, fmt.Errorf("google: build URL: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return translate.Result{}, fmt.Errorf("google: create request: %w", err)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return translate.Result{}, fmt.Errorf("google: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return translate.Result{}, fmt.Errorf("google: server returned HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return translate.Result{}, fmt.Errorf("google: read body: %w", err)
	}

	text, err := parseResponse(body)
	if err != nil {
		return translate.Result{}, err
	}
	if text == "" {
		return translate.Result{}, translate.ErrNoResult
	}
	return translate.Result{Text: text, Provider: providerName}, nil
}

// parseResponse concatenates the translated segments found at data[0][i][0].
// Segments that are missing or not strings are skipped.
func parseResponse(body []byte) (string, error) {
	var data []json.RawMessage
	if err := json.Unmarshal(body, &data); err != nil {
		return "", fmt.Errorf("google: parse response: %w", err)
	}
	if len(data) == 0 {
		return "", nil
	}
	var segments []json.RawMessage
	if err := json.Unmarshal(data[0], &segments); err != nil {
		// data[0] is null when nothing was translated.
		return "", nil
	}

	var sb strings.Builder
	for _, seg := range segments {
		var parts []json.RawMessage
		if err := json.Unmarshal(seg, &parts); err != nil || len(parts) == 0 {
			continue
		}
		var s string
		if err := json.Unmarshal(parts[0], &s); err != nil {
			continue
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}

var _ translate.Translator = (*Translator)(nil)
