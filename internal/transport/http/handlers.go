// Package http is the thin transport layer over the transaction engine and
// the audit query API. Handlers delegate to services; no business logic
// lives here.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"veritas/internal/engine"
	"veritas/internal/platform/middleware"
	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
	audit "veritas/pkg/platform/audit"
	"veritas/pkg/platform/audit/retention"
)

// Processor is the engine surface the transport needs.
type Processor interface {
	Process(ctx context.Context, event engine.InboundEvent) (engine.Result, error)
}

// AuditReader is the read-only audit surface. There is deliberately no
// mutating counterpart: update and delete never exist at this boundary.
type AuditReader interface {
	Verify(ctx context.Context, correlationID domain.CorrelationID) (audit.VerifyResult, error)
}

// Handler handles event ingestion and audit query endpoints.
type Handler struct {
	logger    *slog.Logger
	processor Processor
	reader    AuditReader
	store     audit.Store
	policy    *retention.Policy
}

// New creates the transport handler.
func New(processor Processor, reader AuditReader, store audit.Store, policy *retention.Policy, logger *slog.Logger) *Handler {
	return &Handler{
		logger:    logger,
		processor: processor,
		reader:    reader,
		store:     store,
		policy:    policy,
	}
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type processRequest struct {
	ExternalEventID string            `json:"external_event_id"`
	CorrelationID   string            `json:"correlation_id"`
	Payload         map[string]string `json:"payload"`
}

// handleProcess ingests one inbound event delivery.
func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	externalEventID, err := domain.ParseExternalEventID(req.ExternalEventID)
	if err != nil {
		WriteError(w, err)
		return
	}
	correlationID, err := domain.ParseCorrelationID(req.CorrelationID)
	if err != nil {
		WriteError(w, err)
		return
	}

	result, err := h.processor.Process(ctx, engine.InboundEvent{
		ExternalEventID: externalEventID,
		CorrelationID:   correlationID,
		Payload:         req.Payload,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "process failed",
			"external_event_id", externalEventID.String(),
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

type listResponse struct {
	Events []eventResponse `json:"events"`
}

type eventResponse struct {
	EventID       int64             `json:"event_id"`
	Timestamp     time.Time         `json:"timestamp"`
	EventType     string            `json:"event_type"`
	Severity      string            `json:"severity"`
	Category      string            `json:"category"`
	CorrelationID string            `json:"correlation_id"`
	Payload       map[string]string `json:"payload"`
	PrevHash      string            `json:"prev_hash"`
	Hash          string            `json:"hash"`
}

// handleListAudit serves the read-only audit query API. Every event leaving
// this endpoint passes through the retention policy's export redaction.
func (h *Handler) handleListAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	var (
		events []audit.Event
		err    error
	)
	switch {
	case query.Get("correlation_id") != "":
		correlationID, parseErr := domain.ParseCorrelationID(query.Get("correlation_id"))
		if parseErr != nil {
			WriteError(w, parseErr)
			return
		}
		events, err = h.store.ListByCorrelation(ctx, correlationID)
	case query.Get("from") != "" || query.Get("to") != "":
		from, to, parseErr := parseTimeRange(query.Get("from"), query.Get("to"))
		if parseErr != nil {
			WriteError(w, parseErr)
			return
		}
		events, err = h.store.ListByTimeRange(ctx, from, to)
	case len(query["type"]) > 0:
		types := make([]audit.EventType, 0, len(query["type"]))
		for _, raw := range query["type"] {
			types = append(types, audit.EventType(raw))
		}
		limit := defaultListLimit
		if raw := query.Get("limit"); raw != "" {
			parsed, parseErr := strconv.Atoi(raw)
			if parseErr != nil || parsed < 1 || parsed > maxListLimit {
				WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid limit"))
				return
			}
			limit = parsed
		}
		events, err = h.store.ListByTypes(ctx, types, limit)
	default:
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "correlation_id or time range is required"))
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "audit query failed", "error", err)
		WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "audit query failed"))
		return
	}

	response := listResponse{Events: make([]eventResponse, 0, len(events))}
	for _, event := range events {
		redacted := h.policy.Redact(event)
		response.Events = append(response.Events, eventResponse{
			EventID:       redacted.EventID,
			Timestamp:     redacted.Timestamp,
			EventType:     string(redacted.Type),
			Severity:      string(redacted.Severity),
			Category:      string(redacted.Category),
			CorrelationID: redacted.CorrelationID.String(),
			Payload:       redacted.Payload,
			PrevHash:      redacted.PrevHash,
			Hash:          redacted.Hash,
		})
	}
	WriteJSON(w, http.StatusOK, response)
}

type verifyResponse struct {
	Valid    bool   `json:"valid"`
	BrokenAt *int64 `json:"broken_at,omitempty"`
	Events   int    `json:"events"`
}

// handleVerifyAudit recomputes one chain's hashes and reports validity.
func (h *Handler) handleVerifyAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	correlationID, err := domain.ParseCorrelationID(r.URL.Query().Get("correlation_id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	result, err := h.reader.Verify(ctx, correlationID)
	if err != nil {
		h.logger.ErrorContext(ctx, "chain verification failed", "error", err)
		WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "verification failed"))
		return
	}
	response := verifyResponse{Valid: result.Valid, Events: result.Events}
	if !result.Valid {
		brokenAt := result.BrokenAt
		response.BrokenAt = &brokenAt
	}
	WriteJSON(w, http.StatusOK, response)
}

// handleAuditMutation rejects any attempt to update or delete audit
// history, independent of caller role.
func (h *Handler) handleAuditMutation(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, dErrors.New(dErrors.CodeMethodNotAllowed, "audit events are append-only"))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseTimeRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	from := time.Time{}
	to := time.Now()
	if fromRaw != "" {
		parsed, err := parseTimeParam(fromRaw)
		if err != nil {
			return time.Time{}, time.Time{}, dErrors.New(dErrors.CodeBadRequest, "invalid from timestamp")
		}
		from = parsed
	}
	if toRaw != "" {
		parsed, err := parseTimeParam(toRaw)
		if err != nil {
			return time.Time{}, time.Time{}, dErrors.New(dErrors.CodeBadRequest, "invalid to timestamp")
		}
		to = parsed
	}
	return from, to, nil
}

// parseTimeParam accepts RFC 3339 or Unix seconds.
func parseTimeParam(raw string) (time.Time, error) {
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339, raw)
}
