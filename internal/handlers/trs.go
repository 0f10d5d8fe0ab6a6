package handlers

import (
	"net/http"

	"procurement/internal/workflow"
)

type trRequest struct {
	workflow.TRFields
	Items         []workflow.ServiceItemInput `json:"items"`
	ProcurementID *int64                      `json:"procurementId"`
}

// CreateTRHandler обрабатывает POST /api/trs
func (h *Handler) CreateTRHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var input trRequest
	if !h.decode(w, r, &input, false) {
		return
	}
	tr, err := h.Svc.CreateDraft(r.Context(), actor, input.TRFields, input.Items, input.ProcurementID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tr)
}

// ListTRsHandler возвращает ТЗ, видимые пользователю
func (h *Handler) ListTRsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	params := parsePaginationParams(r)
	trs, err := h.Svc.ListTRs(r.Context(), actor, params.Limit, params.Offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trs)
}

func (h *Handler) GetTRHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "trId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	tr, err := h.Svc.GetTR(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

// UpdateTRHandler заменяет поля и позиции черновика целиком
func (h *Handler) UpdateTRHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "trId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input trRequest
	if !h.decode(w, r, &input, false) {
		return
	}
	if input.ProcurementID != nil {
		writeReason(w, http.StatusBadRequest, "procurementId cannot be changed here, use PUT /procurements/{id}/tr")
		return
	}
	tr, err := h.Svc.UpdateTR(r.Context(), actor, id, input.TRFields, input.Items)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

func (h *Handler) SubmitTRHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "trId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	tr, err := h.Svc.SubmitTR(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

// DecideTRHandler принимает {"approved": bool, "comments": "..."}
func (h *Handler) DecideTRHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "trId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input struct {
		Approved *bool  `json:"approved"`
		Comments string `json:"comments"`
	}
	if !h.decode(w, r, &input, false) {
		return
	}
	if input.Approved == nil {
		writeReason(w, http.StatusBadRequest, "approved is required")
		return
	}
	tr, err := h.Svc.DecideTR(r.Context(), actor, id, *input.Approved, input.Comments)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}
