package handlers

import (
	"context"
	"time"

	"procurement/internal/auth"
	"procurement/internal/workflow"
	"procurement/models"
)

// Service: операции процесса закупки, которые вызывают обработчики.
// Реализуется *workflow.Service.
type Service interface {
	CreateDraft(ctx context.Context, actor workflow.Actor, fields workflow.TRFields, items []workflow.ServiceItemInput, procurementID *int64) (*models.TermsOfReference, error)
	UpdateTR(ctx context.Context, actor workflow.Actor, id int64, fields workflow.TRFields, items []workflow.ServiceItemInput) (*models.TermsOfReference, error)
	SubmitTR(ctx context.Context, actor workflow.Actor, id int64) (*models.TermsOfReference, error)
	DecideTR(ctx context.Context, actor workflow.Actor, id int64, approved bool, comments string) (*models.TermsOfReference, error)
	GetTR(ctx context.Context, actor workflow.Actor, id int64) (*models.TermsOfReference, error)
	ListTRs(ctx context.Context, actor workflow.Actor, limit, offset int) ([]models.TermsOfReference, error)

	CreateProcurement(ctx context.Context, actor workflow.Actor, in workflow.ProcurementInput) (*models.Procurement, error)
	UpdateProcurement(ctx context.Context, actor workflow.Actor, id int64, upd workflow.ProcurementUpdate) (*models.Procurement, error)
	LinkTR(ctx context.Context, actor workflow.Actor, id, trID int64) (*models.Procurement, error)
	OpenProcurement(ctx context.Context, actor workflow.Actor, id int64, deadline *time.Time, force bool) (*workflow.OpenResult, error)
	CloseProcurement(ctx context.Context, actor workflow.Actor, id int64) (*models.Procurement, error)
	FinalizeProcurement(ctx context.Context, actor workflow.Actor, id int64) (*models.Procurement, error)
	GetProcurement(ctx context.Context, actor workflow.Actor, id int64) (*models.Procurement, error)
	ListProcurements(ctx context.Context, actor workflow.Actor, limit, offset int) ([]models.Procurement, error)

	Invite(ctx context.Context, actor workflow.Actor, procurementID int64, email string) (*models.Invite, error)
	AcceptInvite(ctx context.Context, actor workflow.Actor, token string) (*models.Invite, error)
	ListInvites(ctx context.Context, actor workflow.Actor, procurementID int64) ([]models.Invite, error)

	UpsertProposal(ctx context.Context, actor workflow.Actor, procurementID int64, fields workflow.ProposalFields, lines []workflow.LineInput, prices []workflow.PriceInput) (*workflow.ProposalView, error)
	SubmitProposal(ctx context.Context, actor workflow.Actor, id int64) (*workflow.ProposalView, error)
	TechnicalReview(ctx context.Context, actor workflow.Actor, id int64, text string, score *float64, approved bool) (*workflow.ProposalView, error)
	GetProposal(ctx context.Context, actor workflow.Actor, id int64) (*workflow.ProposalView, error)
	ListProposals(ctx context.Context, actor workflow.Actor, procurementID int64) ([]workflow.ProposalView, error)

	Compare(ctx context.Context, actor workflow.Actor, procurementID int64) (*workflow.Comparison, error)
}

type Authenticator interface {
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
}

// Pinger проверяет доступность БД для /api/ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

var (
	_ Service       = (*workflow.Service)(nil)
	_ Authenticator = (*auth.Gate)(nil)
)
