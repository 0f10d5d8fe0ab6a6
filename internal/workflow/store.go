package workflow

import (
	"context"

	"procurement/models"
)

// ProcurementFilter ограничивает выборку закупок по правилам видимости.
type ProcurementFilter struct {
	RequesterID   *int64
	Statuses      []models.ProcurementStatus
	InvitedEmail  string // закупки с приглашением на этот адрес, независимо от статуса
	Limit, Offset int
}

// TRFilter ограничивает выборку ТЗ.
type TRFilter struct {
	CreatorID       *int64
	ExcludeStatuses []models.TRStatus
	Limit, Offset   int
}

// ProposalDetail: полностью материализованное предложение со строками и ценами.
type ProposalDetail struct {
	Proposal models.Proposal
	Lines    []models.ProposalServiceLine
	Prices   []models.ProposalPrice
}

// Repository: операции над агрегатами. Ошибка "не найдено" должна
// оборачивать ErrNotFound, нарушение уникальности оборачивает ErrConflict.
type Repository interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindRequester(ctx context.Context, preferOrgID int64) (*models.User, error)

	CreateTR(ctx context.Context, tr *models.TermsOfReference) error
	GetTR(ctx context.Context, id int64) (*models.TermsOfReference, error)
	UpdateTR(ctx context.Context, tr *models.TermsOfReference) error
	ReplaceServiceItems(ctx context.Context, trID int64, items []models.ServiceLineItem) ([]models.ServiceLineItem, error)
	ListTRs(ctx context.Context, f TRFilter) ([]models.TermsOfReference, error)
	// ServiceItemIDs: явная проверка принадлежности позиций ТЗ.
	ServiceItemIDs(ctx context.Context, trID int64) (map[int64]bool, error)

	CreateProcurement(ctx context.Context, p *models.Procurement) error
	GetProcurement(ctx context.Context, id int64) (*models.Procurement, error)
	GetProcurementByTR(ctx context.Context, trID int64) (*models.Procurement, error)
	UpdateProcurement(ctx context.Context, p *models.Procurement) error
	ListProcurements(ctx context.Context, f ProcurementFilter) ([]models.Procurement, error)

	CreateInvite(ctx context.Context, inv *models.Invite) error
	GetInviteByToken(ctx context.Context, token string) (*models.Invite, error)
	InviteExists(ctx context.Context, procurementID int64, email string) (bool, error)
	ListInvites(ctx context.Context, procurementID int64) ([]models.Invite, error)
	// MarkInviteAccepted делает compare-and-set и возвращает false, если приглашение уже принято.
	MarkInviteAccepted(ctx context.Context, inv *models.Invite) (bool, error)

	// EnsureProposal находит или атомарно создаёт черновик для пары (закупка, поставщик).
	EnsureProposal(ctx context.Context, procurementID, supplierID int64) (*models.Proposal, error)
	GetProposal(ctx context.Context, id int64) (*models.Proposal, error)
	UpdateProposal(ctx context.Context, p *models.Proposal) error
	UpsertProposalLine(ctx context.Context, l models.ProposalServiceLine) error
	UpsertProposalPrice(ctx context.Context, pr models.ProposalPrice) error
	GetProposalDetail(ctx context.Context, id int64) (*ProposalDetail, error)
	ListProposalDetails(ctx context.Context, procurementID int64, statuses ...models.ProposalStatus) ([]ProposalDetail, error)
	CountProposals(ctx context.Context, procurementID int64, status models.ProposalStatus) (int, error)
}

// Store выполняет fn как одну единицу работы: либо все изменения
// фиксируются, либо ни одно.
type Store interface {
	Repository
	Tx(ctx context.Context, fn func(r Repository) error) error
}
