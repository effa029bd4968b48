// Package postprocess unseals the identification result carried in a
// successful backend response and hands it to the registered plugins.
//
// Processing runs after the client already has its response. Every failure
// is terminal for that one response and is reported to the caller, which
// only logs it.
package postprocess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tjfontaine/fingerprint-edge-proxy/internal/core/ports"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/plugin"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/response"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/sealed"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/settings"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/telemetry"
)

var (
	// ErrMissingDecryptionKey is returned when no decryption key is configured.
	ErrMissingDecryptionKey = errors.New("decryption key not found")

	// ErrMissingSealedResult is returned when the body has no sealedResult field.
	ErrMissingSealedResult = errors.New("response has no sealed result")
)

// Body is the part of the backend response that carries the sealed result.
type Body struct {
	SealedResult string `json:"sealedResult"`
}

// Processor unseals response bodies and dispatches the events.
type Processor struct {
	secrets    ports.SecretStore
	unsealer   *sealed.Unsealer
	dispatcher *plugin.Dispatcher
	logger     *slog.Logger
	metrics    *telemetry.Metrics
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger for the processor.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithMetrics records stage outcomes on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// WithUnsealer replaces the default unsealer.
func WithUnsealer(u *sealed.Unsealer) Option {
	return func(p *Processor) {
		p.unsealer = u
	}
}

// New creates a processor reading the decryption key from secrets.
func New(secrets ports.SecretStore, dispatcher *plugin.Dispatcher, opts ...Option) *Processor {
	p := &Processor{
		secrets:    secrets,
		unsealer:   &sealed.Unsealer{},
		dispatcher: dispatcher,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process unseals the sealed result in body and dispatches it with snap as
// the original response.
func (p *Processor) Process(ctx context.Context, body string, snap *response.Snapshot) error {
	key, err := p.decryptionKey()
	if err != nil {
		p.metrics.ObservePostProcess(telemetry.StageConfig, "error")
		return err
	}

	var parsed Body
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		p.metrics.ObservePostProcess(telemetry.StageParse, "error")
		return fmt.Errorf("parse response body: %w", err)
	}
	if parsed.SealedResult == "" {
		p.metrics.ObservePostProcess(telemetry.StageParse, "error")
		return ErrMissingSealedResult
	}

	event, err := p.unsealer.Unseal(parsed.SealedResult, key)
	if err != nil {
		p.metrics.ObservePostProcess(telemetry.StageUnseal, "error")
		return fmt.Errorf("unseal result: %w", err)
	}
	p.metrics.ObservePostProcess(telemetry.StageUnseal, "ok")

	p.logger.DebugContext(ctx, "dispatching unsealed result",
		slog.String("fp_request_id", event.RequestID()))

	p.dispatcher.Dispatch(ctx, event, snap)
	p.metrics.ObservePostProcess(telemetry.StageDispatch, "ok")
	return nil
}

func (p *Processor) decryptionKey() (string, error) {
	if p.secrets == nil {
		return "", ErrMissingDecryptionKey
	}
	raw, ok := p.secrets.Get(settings.KeyDecryptionKey)
	if !ok {
		return "", ErrMissingDecryptionKey
	}
	key := strings.TrimSpace(string(raw))
	if key == "" {
		return "", ErrMissingDecryptionKey
	}
	return key, nil
}
