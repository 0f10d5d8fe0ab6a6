package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"procurement/internal/export"
	"procurement/internal/workflow"
	"procurement/models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// CreateProcurementHandler обрабатывает POST /api/procurements
func (h *Handler) CreateProcurementHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var input workflow.ProcurementInput
	if !h.decode(w, r, &input, false) {
		return
	}
	p, err := h.Svc.CreateProcurement(r.Context(), actor, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) ListProcurementsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	params := parsePaginationParams(r)
	list, err := h.Svc.ListProcurements(r.Context(), actor, params.Limit, params.Offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) GetProcurementHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "procurementId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.Svc.GetProcurement(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// EditProcurementHandler обрабатывает PATCH, меняются только переданные поля
func (h *Handler) EditProcurementHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "procurementId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input workflow.ProcurementUpdate
	if !h.decode(w, r, &input, false) {
		return
	}
	p, err := h.Svc.UpdateProcurement(r.Context(), actor, id, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) LinkTRHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "procurementId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input struct {
		TRID int64 `json:"trId"`
	}
	if !h.decode(w, r, &input, false) {
		return
	}
	if input.TRID <= 0 {
		writeReason(w, http.StatusBadRequest, "trId must be positive")
		return
	}
	p, err := h.Svc.LinkTR(r.Context(), actor, id, input.TRID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// OpenProcurementHandler открывает приём предложений. force можно передать
// и в теле, и параметром ?force=true. Предупреждение о пустом списке
// приглашённых возвращается с кодом 200 и opened=false.
func (h *Handler) OpenProcurementHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "procurementId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input struct {
		Deadline *time.Time `json:"deadline"`
		Force    bool       `json:"force"`
	}
	if !h.decode(w, r, &input, true) {
		return
	}
	if f := r.URL.Query().Get("force"); f != "" {
		force, err := strconv.ParseBool(f)
		if err != nil {
			writeReason(w, http.StatusBadRequest, "invalid force")
			return
		}
		input.Force = input.Force || force
	}
	res, err := h.Svc.OpenProcurement(r.Context(), actor, id, input.Deadline, input.Force)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) CloseProcurementHandler(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Svc.CloseProcurement)
}

func (h *Handler) FinalizeProcurementHandler(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Svc.FinalizeProcurement)
}

type procurementTransition = func(ctx context.Context, actor workflow.Actor, id int64) (*models.Procurement, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn procurementTransition) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "procurementId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := fn(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// inviteResponse: токен приглашения отдаётся только в ответе на создание.
type inviteResponse struct {
	*models.Invite
	Token string `json:"token"`
}

// InviteHandler обрабатывает POST /api/procurements/{procurementId}/invites
func (h *Handler) InviteHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "procurementId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input struct {
		Email string `json:"email"`
	}
	if !h.decode(w, r, &input, false) {
		return
	}
	inv, err := h.Svc.Invite(r.Context(), actor, id, input.Email)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inviteResponse{Invite: inv, Token: inv.Token})
}

func (h *Handler) ListInvitesHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "procurementId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	list, err := h.Svc.ListInvites(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// AcceptInviteHandler обрабатывает POST /api/invites/accept {"token": "..."}
func (h *Handler) AcceptInviteHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var input struct {
		Token string `json:"token"`
	}
	if !h.decode(w, r, &input, false) {
		return
	}
	inv, err := h.Svc.AcceptInvite(r.Context(), actor, input.Token)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) ComparisonHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "procurementId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.Svc.Compare(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ComparisonXLSXHandler отдаёт то же сравнение файлом Excel.
func (h *Handler) ComparisonXLSXHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "procurementId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.Svc.Compare(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.Svc.GetProcurement(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteComparison(&buf, c, p.Title, h.now()); err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="procurement-%d-comparison.xlsx"`, id))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		h.Log.Warn("failed to write comparison workbook", zap.Int64("procurement_id", id), zap.Error(err))
	}
}
