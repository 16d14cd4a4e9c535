// Package webhook carries saga commands and replies as HTTP POST requests.
//
// The Producer posts the payload to <baseURL>/<destination> with each message
// header sent as X-Tram-<name>. Handler is the receiving side: it turns such
// requests back into messages for a tram.MessageHandler.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AshkanYarmoradi/go-tram"
)

// Scheme is the destination scheme used with transport.Router.
const Scheme = "webhook"

// HeaderPrefix prefixes message headers on the HTTP request.
const HeaderPrefix = "X-Tram-"

// DefaultMaxBodyBytes limits the size of an inbound request body.
const DefaultMaxBodyBytes = 1 << 20

// Ensure interface compliance at compile time
var (
	_ tram.MessageProducer = (*Producer)(nil)
	_ http.Handler         = (*Handler)(nil)
)

// HTTP canonicalization loses header case. These names are restored upper case
// on receipt; everything else is lower case.
var upperCaseHeaders = map[string]bool{
	tram.HeaderID:          true,
	tram.HeaderDestination: true,
	tram.HeaderDate:        true,
	tram.HeaderPartitionID: true,
}

// Producer posts messages to an HTTP endpoint.
type Producer struct {
	baseURL        string
	client         *http.Client
	defaultHeaders map[string]string
}

// Option configures a Producer.
type Option func(*Producer)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Producer) {
		p.client = client
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Producer) {
		p.client.Timeout = d
	}
}

// WithDefaultHeaders sets HTTP headers added to all requests.
func WithDefaultHeaders(headers map[string]string) Option {
	return func(p *Producer) {
		for k, v := range headers {
			p.defaultHeaders[k] = v
		}
	}
}

// NewProducer creates a Producer posting below baseURL.
func NewProducer(baseURL string, opts ...Option) *Producer {
	p := &Producer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		defaultHeaders: map[string]string{
			"Content-Type": "application/json",
		},
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// URL returns the endpoint for destination.
func (p *Producer) URL(destination string) string {
	return p.baseURL + "/" + url.PathEscape(destination)
}

// Send posts msg to the endpoint for destination. Any non-2xx response is an error.
func (p *Producer) Send(ctx context.Context, destination string, msg *tram.Message) error {
	if destination == "" {
		return fmt.Errorf("webhook: missing destination")
	}
	endpoint := p.URL(destination)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(msg.Payload))
	if err != nil {
		return fmt.Errorf("webhook: failed to create request: %w", err)
	}

	for k, v := range p.defaultHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range msg.Headers {
		req.Header.Set(HeaderPrefix+k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: request failed for %s: %w", endpoint, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("webhook: server error %d from %s", resp.StatusCode, endpoint)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: client error %d from %s", resp.StatusCode, endpoint)
	}
	return nil
}

// Handler receives webhook posts and hands them to a MessageHandler. A handler
// error is answered with 500 so the sender can retry.
type Handler struct {
	handler  tram.MessageHandler
	maxBytes int64
	logger   tram.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithMaxBodyBytes limits the accepted request body size.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) {
		h.maxBytes = n
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger tram.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates a Handler delivering to handler.
func NewHandler(handler tram.MessageHandler, opts ...HandlerOption) *Handler {
	h := &Handler{
		handler:  handler,
		maxBytes: DefaultMaxBodyBytes,
		logger:   tram.NopLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	msg := FromRequest(r, body)
	if err := h.handler.HandleMessage(r.Context(), msg); err != nil {
		h.logger.Error("Failed to handle message", "path", r.URL.Path, "messageID", msg.ID(), "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// FromRequest builds a message from the X-Tram-* headers of r and body. When
// no DESTINATION header was sent, the last path segment is used.
func FromRequest(r *http.Request, body []byte) *tram.Message {
	headers := make(map[string]string)
	for key, values := range r.Header {
		if len(values) == 0 || len(key) <= len(HeaderPrefix) ||
			!strings.EqualFold(key[:len(HeaderPrefix)], HeaderPrefix) {
			continue
		}
		headers[messageHeader(key[len(HeaderPrefix):])] = values[0]
	}

	if _, ok := headers[tram.HeaderDestination]; !ok {
		path := strings.TrimRight(r.URL.Path, "/")
		if segment := path[strings.LastIndex(path, "/")+1:]; segment != "" {
			headers[tram.HeaderDestination] = segment
		}
	}

	return tram.NewMessage(body, headers)
}

func messageHeader(name string) string {
	if upper := strings.ToUpper(name); upperCaseHeaders[upper] {
		return upper
	}
	return strings.ToLower(name)
}
