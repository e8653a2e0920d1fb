package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Neuropilotai/inventory-backend/internal/domain"
	"github.com/Neuropilotai/inventory-backend/internal/excel"
	"github.com/Neuropilotai/inventory-backend/internal/service"
	"github.com/Neuropilotai/inventory-backend/internal/store"
)

type Handler struct {
	svc      *service.Service
	validate *validator.Validate
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type ingestRequest struct {
	Invoice    domain.ParsedInvoice `json:"invoice"`
	FilePath   string               `json:"file_path"`
	FileBase64 string               `json:"file_base64"`
	Actor      string               `json:"actor"`
}

func (h *Handler) IngestDocument(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req.Invoice); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid invoice payload: %v", err))
		return
	}
	fileBytes, err := decodeFileBase64(req.FileBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.svc.Ingest.Ingest(r.Context(), req.Invoice, req.FilePath, fileBytes, req.Actor)
	if err != nil {
		var dup *domain.DuplicateDocumentError
		if errors.As(err, &dup) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":              dup.Error(),
				"method":             dup.Method,
				"matched_identifier": dup.MatchedIdentifier,
				"reasons":            dup.Reasons,
			})
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type duplicateCheckRequest struct {
	Identifier string                `json:"identifier"`
	Invoice    *domain.ParsedInvoice `json:"invoice"`
	FileBase64 string                `json:"file_base64"`
}

func (h *Handler) CheckDuplicate(w http.ResponseWriter, r *http.Request) {
	var req duplicateCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" && req.Invoice != nil {
		identifier = strings.TrimSpace(req.Invoice.Identifier)
	}
	if identifier == "" && req.FileBase64 == "" {
		writeError(w, http.StatusBadRequest, "identifier, invoice or file_base64 is required")
		return
	}
	fileBytes, err := decodeFileBase64(req.FileBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	check, err := h.svc.Registry.CheckForDuplicate(r.Context(), identifier, fileBytes, req.Invoice)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (h *Handler) RegistryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Registry.GetStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := parseOptionalInt(query.Get("limit"), 200)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := parseOptionalInt(query.Get("offset"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := store.ItemFilter{
		InvoiceNumber: strings.TrimSpace(query.Get("invoice")),
		ItemCode:      strings.TrimSpace(query.Get("item_code")),
		Location:      strings.TrimSpace(query.Get("location")),
		Limit:         limit,
		Offset:        offset,
	}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status := domain.ItemStatus(strings.ToUpper(raw))
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status: %s", raw))
			return
		}
		filter.Status = status
	}

	items, err := h.svc.Inventory.ListItems(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (h *Handler) StatusBreakdown(w http.ResponseWriter, r *http.Request) {
	breakdown, err := h.svc.Inventory.StatusBreakdown(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

type assignLocationRequest struct {
	InvoiceNumber string `json:"invoice_number"`
	ItemCode      string `json:"item_code"`
	Location      string `json:"location"`
	Actor         string `json:"actor"`
}

func (h *Handler) AssignLocation(w http.ResponseWriter, r *http.Request) {
	var req assignLocationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	item, err := h.svc.Inventory.AssignLocation(r.Context(), req.InvoiceNumber, req.ItemCode, req.Location, req.Actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type bulkAssignRequest struct {
	InvoiceNumber string `json:"invoice_number"`
	Location      string `json:"location"`
	Actor         string `json:"actor"`
}

func (h *Handler) BulkAssignLocation(w http.ResponseWriter, r *http.Request) {
	var req bulkAssignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	affected, err := h.svc.Inventory.BulkAssignLocation(r.Context(), req.InvoiceNumber, req.Location, req.Actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"affected": affected})
}

func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	invoice := strings.TrimSpace(r.URL.Query().Get("invoice"))
	if invoice == "" {
		writeError(w, http.StatusBadRequest, "invoice query parameter is required")
		return
	}
	assignments, err := h.svc.Inventory.ListLocationAssignments(r.Context(), invoice)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignments": assignments, "count": len(assignments)})
}

type cutoffRequest struct {
	CutoffDate string `json:"cutoff_date"`
	Actor      string `json:"actor"`
}

func (h *Handler) PrepareCutoff(w http.ResponseWriter, r *http.Request) {
	var req cutoffRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cutoffDate, err := parseDate(req.CutoffDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := h.svc.Cutoff.PrepareCutoff(r.Context(), cutoffDate, req.Actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) LockAfterCutoff(w http.ResponseWriter, r *http.Request) {
	var req cutoffRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cutoffDate, err := parseDate(req.CutoffDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := h.svc.Cutoff.LockAfterCutoff(r.Context(), cutoffDate, req.Actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type unlockRequest struct {
	InvoiceNumber string `json:"invoice_number"`
	ItemCode      string `json:"item_code"`
	AfterDate     string `json:"after_date"`
	Actor         string `json:"actor"`
	Credentials   string `json:"credentials"`
}

func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sel := store.UnlockSelector{
		InvoiceNumber: strings.TrimSpace(req.InvoiceNumber),
		ItemCode:      strings.TrimSpace(req.ItemCode),
	}
	if req.AfterDate != "" {
		after, err := parseDate(req.AfterDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		sel.AfterDate = &after
	}

	affected, err := h.svc.Cutoff.Unlock(r.Context(), sel, req.Actor, req.Credentials)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unlocked": affected})
}

func (h *Handler) CutoffConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.Cutoff.CurrentConfig(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no cutoff has been prepared")
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) CountSheet(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	cutoffDate, err := parseDate(query.Get("cutoff"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := h.svc.Counting.GetItemsToCount(r.Context(), cutoffDate, strings.TrimSpace(query.Get("location")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

type openCountRequest struct {
	CountDate string `json:"count_date"`
	Actor     string `json:"actor"`
}

func (h *Handler) OpenCount(w http.ResponseWriter, r *http.Request) {
	var req openCountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	countDate, err := parseDate(req.CountDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	count, err := h.svc.Counting.OpenCount(r.Context(), countDate, req.Actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, count)
}

func (h *Handler) GetCount(w http.ResponseWriter, r *http.Request) {
	countID, err := parseUUID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	count, err := h.svc.Counting.GetCount(r.Context(), countID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "count not found")
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, count)
}

func (h *Handler) ListCountRecords(w http.ResponseWriter, r *http.Request) {
	countID, err := parseUUID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := h.svc.Counting.ListCountRecords(r.Context(), countID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

type recordCountRequest struct {
	ItemCode   string          `json:"item_code"`
	Location   string          `json:"location"`
	CountedQty decimal.Decimal `json:"counted_qty"`
	Actor      string          `json:"actor"`
}

func (h *Handler) RecordCount(w http.ResponseWriter, r *http.Request) {
	countID, err := parseUUID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req recordCountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.svc.Counting.RecordCount(r.Context(), countID, req.ItemCode, req.Location, req.CountedQty, req.Actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) ImportCountsExcel(w http.ResponseWriter, r *http.Request) {
	countID, err := parseUUID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	strict := false
	if raw := strings.TrimSpace(r.FormValue("strict")); raw != "" {
		strict, err = strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "strict must be true or false")
			return
		}
	}

	rows, err := excel.ParseCountRows(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.svc.Counting.ImportCounts(r.Context(), countID, rows, r.FormValue("actor"), strict)
	if err != nil {
		// Strict-mode aborts still carry the per-row report collected so
		// far, so the caller can see which row failed.
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error(), "report": report})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) CompleteCount(w http.ResponseWriter, r *http.Request) {
	countID, err := parseUUID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	completed, err := h.svc.Counting.CompletePhysicalCount(r.Context(), countID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completed)
}

type createSnapshotRequest struct {
	Name       string `json:"name"`
	CutoffDate string `json:"cutoff_date"`
	Notes      string `json:"notes"`
	Actor      string `json:"actor"`
}

func (h *Handler) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	var req createSnapshotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cutoffDate, err := parseDate(req.CutoffDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := h.svc.Counting.CreateSnapshot(r.Context(), req.Name, cutoffDate, req.Notes, req.Actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := h.svc.Counting.GetSnapshot(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "snapshot not found")
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) ListSnapshotItems(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := h.svc.Counting.ListSnapshotItems(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

type snapshotReportRequest struct {
	DocumentIDs []string `json:"document_ids"`
}

func (h *Handler) SnapshotReport(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req snapshotReportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := h.svc.Counting.ReportFromSnapshot(r.Context(), id, req.DocumentIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// writeServiceError maps the domain error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		precondition *domain.PreconditionFailedError
		authErr      *domain.AuthorizationError
		validation   *domain.ValidationError
	)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &precondition):
		writeError(w, http.StatusConflict, precondition.Error())
	case errors.As(err, &authErr):
		writeError(w, http.StatusForbidden, authErr.Error())
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func decodeFileBase64(raw string) ([]byte, error) {
	if raw == "" {
		return nil, nil
	}
	fileBytes, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("file_base64 is not valid base64")
	}
	return fileBytes, nil
}

func parseOptionalInt(raw string, defaultValue int) (int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %s", raw)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("value cannot be negative")
	}
	return parsed, nil
}

func parseDate(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date: %s", raw)
}

func parseUUID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("invalid id")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
