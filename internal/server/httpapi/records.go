package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/plateful/plateful/internal/common"
	"github.com/plateful/plateful/internal/model"
	"github.com/plateful/plateful/internal/server/services"
)

// RecordHandler serves the versioned record endpoints for both
// collections; the collection is a path variable.
type RecordHandler struct {
	service  *services.RecordService
	validate *validator.Validate
}

func NewRecordHandler(service *services.RecordService) *RecordHandler {
	return &RecordHandler{
		service:  service,
		validate: validator.New(),
	}
}

type recordRequest struct {
	ID          string         `json:"id" validate:"required"`
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	ExternalRef string         `json:"external_ref"`
	EntityID    string         `json:"entity_id"`
	CuratorID   string         `json:"curator_id"`
	Payload     map[string]any `json:"payload"`
	Status      string         `json:"status" validate:"omitempty,oneof=active inactive draft"`
	Deleted     bool           `json:"deleted"`
	Version     int64          `json:"version"`
}

func (req *recordRequest) toRecord(col model.Collection) *model.Record {
	return &model.Record{
		ID:          req.ID,
		Collection:  col,
		Type:        req.Type,
		Name:        req.Name,
		ExternalRef: req.ExternalRef,
		EntityID:    req.EntityID,
		CuratorID:   req.CuratorID,
		Payload:     req.Payload,
		Status:      model.RecordStatus(req.Status),
		Deleted:     req.Deleted,
		Version:     req.Version,
	}
}

// decodeRecord parses and validates the request body. Validation failures
// are permanent rejections (422): retrying the same payload cannot succeed.
func (h *RecordHandler) decodeRecord(w http.ResponseWriter, r *http.Request, col model.Collection) (*model.Record, bool) {
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return nil, false
	}

	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return nil, false
	}
	switch col {
	case model.CollectionEntities:
		if req.Name == "" {
			writeError(w, http.StatusUnprocessableEntity, "name is required for entities")
			return nil, false
		}
	case model.CollectionCurations:
		if req.EntityID == "" {
			writeError(w, http.StatusUnprocessableEntity, "entity_id is required for curations")
			return nil, false
		}
	}

	return req.toRecord(col), true
}

func collection(w http.ResponseWriter, r *http.Request) (model.Collection, bool) {
	col := model.Collection(mux.Vars(r)["collection"])
	if !col.Valid() {
		writeError(w, http.StatusNotFound, "unknown collection")
		return "", false
	}
	return col, true
}

// ifMatch extracts the asserted version from If-Match. A missing header on
// a conditional route is 428 Precondition Required, never a silent
// unconditional write.
func ifMatch(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get("If-Match")
	if raw == "" {
		writeError(w, http.StatusPreconditionRequired, "If-Match header is required")
		return 0, false
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version < 1 {
		writeError(w, http.StatusBadRequest, "invalid If-Match version")
		return 0, false
	}
	return version, true
}

func (h *RecordHandler) Create(w http.ResponseWriter, r *http.Request) {
	col, ok := collection(w, r)
	if !ok {
		return
	}
	rec, ok := h.decodeRecord(w, r, col)
	if !ok {
		return
	}

	stored, created, err := h.service.Create(r.Context(), col, rec)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if created {
		writeJSON(w, http.StatusCreated, stored)
		return
	}
	// Retried create whose first acknowledgement was lost.
	writeJSON(w, http.StatusOK, stored)
}

func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	col, ok := collection(w, r)
	if !ok {
		return
	}

	rec, err := h.service.Get(r.Context(), col, mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RecordHandler) Update(w http.ResponseWriter, r *http.Request) {
	col, ok := collection(w, r)
	if !ok {
		return
	}
	expectedVersion, ok := ifMatch(w, r)
	if !ok {
		return
	}
	rec, ok := h.decodeRecord(w, r, col)
	if !ok {
		return
	}
	rec.ID = mux.Vars(r)["id"]

	stored, err := h.service.Update(r.Context(), col, rec, expectedVersion)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	col, ok := collection(w, r)
	if !ok {
		return
	}
	expectedVersion, ok := ifMatch(w, r)
	if !ok {
		return
	}

	stored, err := h.service.Delete(r.Context(), col, mux.Vars(r)["id"], expectedVersion)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

type listResponse struct {
	Records    []*model.Record `json:"records"`
	NextCursor string          `json:"next_cursor"`
}

func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	col, ok := collection(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	page, err := h.service.List(r.Context(), col, q.Get("entity_id"), q.Get("cursor"), limit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := listResponse{Records: page.Records, NextCursor: page.NextCursor}
	if resp.Records == nil {
		resp.Records = []*model.Record{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeServiceError maps service errors onto the wire contract. 409 carries
// the current server record as its body so clients can resolve without an
// extra fetch.
func (h *RecordHandler) writeServiceError(w http.ResponseWriter, err error) {
	var conflict *services.ConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, conflict.Current)
	case errors.Is(err, common.ErrNotFound):
		writeError(w, http.StatusNotFound, "record not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
