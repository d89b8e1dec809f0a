// Package httptransport is the thin HTTP layer over the core services. It
// decodes requests, delegates, and maps typed errors to status codes; no
// business logic lives here. Authentication is the gateway's job upstream.
package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"recordstore/internal/domain"
	"recordstore/internal/platform/middleware"
	pkgerrors "recordstore/pkg/errors"
)

// Ingestor is the write-path seam.
type Ingestor interface {
	Ingest(ctx context.Context, req domain.WriteRequest) (domain.WriteAck, error)
}

// Retriever is the read-path seam.
type Retriever interface {
	Retrieve(ctx context.Context, id string) (domain.Record, error)
}

// ReadyChecker gates the readiness endpoint.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

// Handler holds the wired dependencies for all routes.
type Handler struct {
	ingest   Ingestor
	retrieve Retriever
	ready    ReadyChecker
	logger   *slog.Logger
	// maxBody bounds the request body read off the wire, slightly above the
	// schema payload cap to leave room for the envelope.
	maxBody int64
}

// New creates a Handler.
func New(ingest Ingestor, retrieve Retriever, ready ReadyChecker, logger *slog.Logger, maxBody int64) *Handler {
	return &Handler{
		ingest:   ingest,
		retrieve: retrieve,
		ready:    ready,
		logger:   logger,
		maxBody:  maxBody,
	}
}

func (h *Handler) handleWrite(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	var req domain.WriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, pkgerrors.Validation("request body too large", "payload"))
			return
		}
		writeError(w, pkgerrors.Validation("malformed request body"))
		return
	}

	ack, err := h.ingest.Ingest(r.Context(), req)
	if err != nil {
		h.logFailure(r, "write failed", err)
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if ack.Status == domain.WriteStatusDuplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, ack)
}

func (h *Handler) handleRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.retrieve.Retrieve(r.Context(), id)
	if err != nil {
		if !pkgerrors.IsKind(err, pkgerrors.KindNotFound) {
			h.logFailure(r, "read failed", err)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if err := h.ready.Ready(r.Context()); err != nil {
		h.logFailure(r, "readiness probe failed", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"detail": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) logFailure(r *http.Request, msg string, err error) {
	h.logger.ErrorContext(r.Context(), msg,
		"error", err,
		"request_id", middleware.GetRequestID(r.Context()),
	)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError centralizes the typed-error to HTTP translation so every route
// emits the same envelope.
func writeError(w http.ResponseWriter, err error) {
	kind := pkgerrors.KindOf(err)
	envelope := map[string]any{"error": string(kind)}

	var typed *pkgerrors.Error
	if errors.As(err, &typed) {
		envelope["detail"] = typed.Detail
		if len(typed.Fields) > 0 {
			envelope["fields"] = typed.Fields
		}
	}
	writeJSON(w, pkgerrors.ToHTTPStatus(kind), envelope)
}
