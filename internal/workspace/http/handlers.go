// Package workspacehttp exposes voucher drafts over a JSON API.
package workspacehttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/ledgerdesk/internal/interpreter"
	"github.com/odyssey-erp/ledgerdesk/internal/platform/httpx"
	"github.com/odyssey-erp/ledgerdesk/internal/posting"
	"github.com/odyssey-erp/ledgerdesk/internal/tax"
	"github.com/odyssey-erp/ledgerdesk/internal/voucher"
	"github.com/odyssey-erp/ledgerdesk/internal/workspace"
)

// Service is the workspace contract used by the handler.
type Service interface {
	CreateDraft(ctx context.Context, in voucher.NewDraftInput) (workspace.Session, error)
	GetDraft(ctx context.Context, id uuid.UUID) (workspace.Session, error)
	ApplyActions(ctx context.Context, id uuid.UUID, expectedVersion *int64, actions ...voucher.Action) (workspace.Session, error)
	ResolveLedgers(ctx context.Context, id uuid.UUID) (workspace.Session, error)
	SubmitCommand(ctx context.Context, id uuid.UUID, text string) (workspace.Session, error)
	AnswerClarification(ctx context.Context, id uuid.UUID, text string) (workspace.Session, error)
	CancelCommand(ctx context.Context, id uuid.UUID) (workspace.Session, error)
	Post(ctx context.Context, id uuid.UUID, key, postedBy string) (workspace.Session, error)
	Engine() *voucher.Engine
}

// Handler serves the voucher API.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

func (h *Handler) draftID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: draft id", httpx.ErrValidation)
	}
	return id, nil
}

func (h *Handler) respondSession(w http.ResponseWriter, status int, sess workspace.Session) {
	if fp, err := voucher.Fingerprint(sess.Draft); err == nil {
		w.Header().Set("ETag", `"`+fp+`"`)
	}
	httpx.JSON(w, status, sess)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	in, err := req.input()
	if err != nil {
		h.respondError(w, err)
		return
	}
	sess, err := h.service.CreateDraft(r.Context(), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.Header().Set("Location", "/api/vouchers/"+sess.Draft.ID.String())
	h.respondSession(w, http.StatusCreated, sess)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := h.draftID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	sess, err := h.service.GetDraft(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondSession(w, http.StatusOK, sess)
}

func (h *Handler) handleTotals(w http.ResponseWriter, r *http.Request) {
	id, err := h.draftID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	sess, err := h.service.GetDraft(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"version":       sess.Draft.Version,
		"totals":        sess.Draft.Totals,
		"tax_entries":   sess.Draft.TaxEntries,
		"ready_to_post": sess.Draft.Totals.ReadyToPost(),
	})
}

func (h *Handler) handleJournal(w http.ResponseWriter, r *http.Request) {
	id, err := h.draftID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	sess, err := h.service.GetDraft(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	lines, err := h.service.Engine().JournalLines(sess.Draft)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func (h *Handler) handleActions(w http.ResponseWriter, r *http.Request) {
	id, err := h.draftID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	var req actionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	actions := make([]voucher.Action, 0, len(req.Actions))
	for i, dto := range req.Actions {
		a, err := dto.action()
		if err != nil {
			h.respondError(w, fmt.Errorf("%w: actions[%d]: %v", httpx.ErrValidation, i, err))
			return
		}
		actions = append(actions, a)
	}
	sess, err := h.service.ApplyActions(r.Context(), id, req.ExpectedVersion, actions...)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondSession(w, http.StatusOK, sess)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	id, err := h.draftID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	sess, err := h.service.ResolveLedgers(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondSession(w, http.StatusOK, sess)
}

func (h *Handler) handleCommand(w http.ResponseWriter, r *http.Request) {
	h.converse(w, r, h.service.SubmitCommand)
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	h.converse(w, r, h.service.AnswerClarification)
}

func (h *Handler) converse(w http.ResponseWriter, r *http.Request, send func(context.Context, uuid.UUID, string) (workspace.Session, error)) {
	id, err := h.draftID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	var req commandRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	sess, err := send(r.Context(), id, req.Text)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondSession(w, http.StatusOK, sess)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := h.draftID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	sess, err := h.service.CancelCommand(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondSession(w, http.StatusOK, sess)
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	id, err := h.draftID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	var req postRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			h.respondError(w, err)
			return
		}
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		key = req.IdempotencyKey
	}
	if key == "" {
		key, err = h.defaultKey(r.Context(), id)
		if err != nil {
			h.respondError(w, err)
			return
		}
	}
	sess, err := h.service.Post(r.Context(), id, key, req.PostedBy)
	if err != nil {
		h.respondError(w, err)
		return
	}
	status := http.StatusCreated
	if sess.Receipt != nil && sess.Receipt.Replayed {
		status = http.StatusOK
	}
	h.respondSession(w, status, sess)
}

// defaultKey derives a key from the draft content so that resubmitting the
// same unchanged draft deduplicates.
func (h *Handler) defaultKey(ctx context.Context, id uuid.UUID) (string, error) {
	sess, err := h.service.GetDraft(ctx, id)
	if err != nil {
		return "", err
	}
	if sess.PostingKey != "" {
		return sess.PostingKey, nil
	}
	fp, err := voucher.Fingerprint(sess.Draft)
	if err != nil {
		return "", err
	}
	return id.String() + ":" + fp, nil
}

func (h *Handler) handleTypes(w http.ResponseWriter, r *http.Request) {
	types := voucher.AllTypes()
	out := make([]voucherTypeView, 0, len(types))
	for _, vt := range types {
		rules, err := voucher.RulesFor(vt)
		if err != nil {
			continue
		}
		out = append(out, voucherTypeView{Type: vt, PartyRole: rules.PartyRole, Stock: rules.Stock, Tax: rules.Tax, Modes: rules.Modes})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleSplit(w http.ResponseWriter, r *http.Request) {
	var req splitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	engine := h.service.Engine()
	code := req.Jurisdiction
	if code == "" {
		code = engine.DefaultJurisdiction()
	}
	lines := make([]tax.RatedAmount, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, tax.RatedAmount{Amount: l.Amount, Rate: l.Rate})
	}
	place := tax.Place{
		CompanyRegion: strings.ToUpper(strings.TrimSpace(req.CompanyRegion)),
		SupplyRegion:  strings.ToUpper(strings.TrimSpace(req.PlaceOfSupply)),
	}
	entries, err := engine.Table().Split(code, lines, place)
	if err != nil {
		h.respondError(w, &httpx.StatusError{Status: http.StatusUnprocessableEntity, Title: "Invalid Tax Input", Err: err})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries, "total": tax.Sum(entries)})
}

// respondError maps the voucher error taxonomy onto problem responses.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var (
		verr       *voucher.ValidationError
		unbalanced *voucher.UnbalancedVoucherError
		unresolved *voucher.UnresolvedLedgerError
		conflict   *voucher.ConcurrentModificationError
		aiErr      *interpreter.AIInterpretationError
		perr       *posting.PersistenceError
	)
	switch {
	case errors.As(err, &unbalanced):
		err = &httpx.StatusError{Status: http.StatusUnprocessableEntity, Title: "Unbalanced Voucher", Err: err, Extra: map[string]string{
			"total_debit":  unbalanced.TotalDebit.String(),
			"total_credit": unbalanced.TotalCredit.String(),
			"difference":   unbalanced.Difference.String(),
		}}
	case errors.As(err, &unresolved):
		err = &httpx.StatusError{Status: http.StatusUnprocessableEntity, Title: "Unresolved Ledgers", Err: err, Extra: unresolved.Lines}
	case errors.As(err, &verr):
		err = &httpx.StatusError{Status: http.StatusUnprocessableEntity, Title: "Invalid Voucher", Err: err, Extra: map[string]string{"field": verr.Field}}
	case errors.As(err, &conflict):
		err = &httpx.StatusError{Status: http.StatusConflict, Title: "Concurrent Modification", Err: err}
	case errors.Is(err, interpreter.ErrStaleResponse):
		err = &httpx.StatusError{Status: http.StatusConflict, Title: "Stale Response", Err: err}
	case errors.Is(err, interpreter.ErrBusy), errors.Is(err, workspace.ErrPostingInProgress):
		err = fmt.Errorf("%w: %v", httpx.ErrBusy, err)
	case errors.As(err, &aiErr):
		err = &httpx.StatusError{Status: http.StatusBadGateway, Title: "Interpretation Failed", Err: err, Extra: map[string]any{"retryable": aiErr.Retryable}}
	case errors.Is(err, workspace.ErrNotFound):
		err = fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	case errors.Is(err, voucher.ErrDraftPosted), errors.Is(err, posting.ErrIdempotencyConflict):
		err = fmt.Errorf("%w: %v", httpx.ErrConflict, err)
	case errors.Is(err, voucher.ErrNothingToPost), errors.Is(err, voucher.ErrUnknownType),
		errors.Is(err, interpreter.ErrNoClarification), errors.Is(err, interpreter.ErrEmptyCommand),
		errors.Is(err, posting.ErrIdempotencyKeyRequired):
		err = fmt.Errorf("%w: %v", httpx.ErrUnprocessable, err)
	case errors.As(err, &perr):
		h.logger.Error("posting persistence failure", slog.Any("error", err))
		err = &httpx.StatusError{Status: http.StatusBadGateway, Title: "Posting Failed", Err: err, Extra: map[string]string{"op": perr.Op}}
	case errors.Is(err, httpx.ErrValidation):
	default:
		h.logger.Error("voucher api", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
