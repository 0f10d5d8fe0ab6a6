package handlers

import (
	"net/http"

	"procurement/internal/workflow"
)

type proposalRequest struct {
	workflow.ProposalFields
	Lines  []workflow.LineInput  `json:"lines"`
	Prices []workflow.PriceInput `json:"prices"`
}

// UpsertProposalHandler обрабатывает PUT /api/procurements/{procurementId}/proposal.
// У поставщика одно предложение на закупку: повторный запрос обновляет его.
func (h *Handler) UpsertProposalHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "procurementId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input proposalRequest
	if !h.decode(w, r, &input, false) {
		return
	}
	v, err := h.Svc.UpsertProposal(r.Context(), actor, id, input.ProposalFields, input.Lines, input.Prices)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) ListProposalsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "procurementId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	list, err := h.Svc.ListProposals(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) GetProposalHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "proposalId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := h.Svc.GetProposal(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) SubmitProposalHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "proposalId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := h.Svc.SubmitProposal(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// ReviewProposalHandler: техническая оценка заказчиком.
func (h *Handler) ReviewProposalHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "proposalId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input struct {
		Review   string   `json:"review"`
		Score    *float64 `json:"score"`
		Approved *bool    `json:"approved"`
	}
	if !h.decode(w, r, &input, false) {
		return
	}
	if input.Approved == nil {
		writeReason(w, http.StatusBadRequest, "approved is required")
		return
	}
	v, err := h.Svc.TechnicalReview(r.Context(), actor, id, input.Review, input.Score, *input.Approved)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
