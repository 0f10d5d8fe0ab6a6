package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type (
	Role              string // Роль пользователя
	TRStatus          string // Статус технического задания
	ProcurementStatus string // Статус закупки
	ProposalStatus    string // Статус предложения поставщика
)

const (
	RoleRequester Role = "REQUESTER" // Заказчик, автор ТЗ
	RoleBuyer     Role = "BUYER"     // Закупщик
	RoleSupplier  Role = "SUPPLIER"  // Поставщик
	RoleAdmin     Role = "ADMIN"     // Администратор

	TRDraft     TRStatus = "DRAFT"
	TRSubmitted TRStatus = "SUBMITTED"
	TRApproved  TRStatus = "APPROVED"
	TRRejected  TRStatus = "REJECTED"

	ProcurementTRPending       ProcurementStatus = "TR_PENDING"
	ProcurementTRSubmitted     ProcurementStatus = "TR_SUBMITTED"
	ProcurementTRApproved      ProcurementStatus = "TR_APPROVED"
	ProcurementOpen            ProcurementStatus = "OPEN"
	ProcurementTechnicalReview ProcurementStatus = "TECHNICAL_REVIEW"
	ProcurementClosed          ProcurementStatus = "CLOSED"

	ProposalDraft               ProposalStatus = "DRAFT"
	ProposalSubmitted           ProposalStatus = "SUBMITTED"
	ProposalTechnicallyApproved ProposalStatus = "TECHNICALLY_APPROVED"
	ProposalTechnicallyRejected ProposalStatus = "TECHNICALLY_REJECTED"
)

func ValidRole(r Role) bool {
	switch r {
	case RoleRequester, RoleBuyer, RoleSupplier, RoleAdmin:
		return true
	default:
		return false
	}
}

// Сущность Пользователя
type User struct {
	ID             int64     `db:"id" json:"id"`
	Email          string    `db:"email" json:"email"`
	Name           string    `db:"name" json:"name"`
	Role           Role      `db:"role" json:"role"`
	OrganizationID int64     `db:"organization_id" json:"organizationId"`
	PasswordHash   string    `db:"password_hash" json:"-"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// Сущность Технического задания (ТЗ)
type TermsOfReference struct {
	ID               int64               `db:"id" json:"id"`
	CreatorID        int64               `db:"creator_id" json:"creatorId"`
	Title            string              `db:"title" json:"title"`
	Objective        string              `db:"objective" json:"objective"`
	Description      string              `db:"description" json:"description"`
	Situation        string              `db:"situation" json:"situation"`
	Scope            string              `db:"scope" json:"scope"`
	SafetyRules      string              `db:"safety_rules" json:"safetyRules"`
	EstimatedBudget  decimal.NullDecimal `db:"estimated_budget" json:"estimatedBudget"`
	MaxExecutionDays int                 `db:"max_execution_days" json:"maxExecutionDays"`
	Status           TRStatus            `db:"status" json:"status"`
	ApproverID       *int64              `db:"approver_id" json:"approverId,omitempty"`
	ApprovalComments string              `db:"approval_comments" json:"approvalComments,omitempty"`
	RejectionReason  string              `db:"rejection_reason" json:"rejectionReason,omitempty"`
	CreatedAt        time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time           `db:"updated_at" json:"updatedAt"`
	SubmittedAt      *time.Time          `db:"submitted_at" json:"submittedAt,omitempty"`
	ApprovedAt       *time.Time          `db:"approved_at" json:"approvedAt,omitempty"`
	RejectedAt       *time.Time          `db:"rejected_at" json:"rejectedAt,omitempty"`

	Items []ServiceLineItem `db:"-" json:"items"`
}

// Позиция услуги в ТЗ
type ServiceLineItem struct {
	ID          int64           `db:"id" json:"id"`
	TRID        int64           `db:"tr_id" json:"trId"`
	Order       int             `db:"item_order" json:"order"`
	Code        string          `db:"code" json:"code"`
	Description string          `db:"description" json:"description"`
	Unit        string          `db:"unit" json:"unit"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
}

// Сущность Закупки
type Procurement struct {
	ID               int64             `db:"id" json:"id"`
	Title            string            `db:"title" json:"title"`
	Description      string            `db:"description" json:"description"`
	Status           ProcurementStatus `db:"status" json:"status"`
	CreatorID        int64             `db:"creator_id" json:"creatorId"`
	RequesterID      *int64            `db:"requester_id" json:"requesterId,omitempty"`
	OrganizationID   int64             `db:"organization_id" json:"organizationId"`
	TRID             *int64            `db:"tr_id" json:"trId,omitempty"`
	ProposalDeadline *time.Time        `db:"proposal_deadline" json:"proposalDeadline,omitempty"`
	CreatedAt        time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updatedAt"`
}

// Приглашение поставщика к участию в закупке
type Invite struct {
	ID            int64      `db:"id" json:"id"`
	ProcurementID int64      `db:"procurement_id" json:"procurementId"`
	Email         string     `db:"email" json:"email"`
	Token         string     `db:"token" json:"-"`
	Accepted      bool       `db:"accepted" json:"accepted"`
	AcceptedAt    *time.Time `db:"accepted_at" json:"acceptedAt,omitempty"`
	CreatedBy     int64      `db:"created_by" json:"createdBy"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
}

// Сущность Предложения поставщика
type Proposal struct {
	ID                   int64          `db:"id" json:"id"`
	ProcurementID        int64          `db:"procurement_id" json:"procurementId"`
	SupplierID           int64          `db:"supplier_id" json:"supplierId"`
	Status               ProposalStatus `db:"status" json:"status"`
	TechnicalDescription string         `db:"technical_description" json:"technicalDescription"`
	PaymentConditions    string         `db:"payment_conditions" json:"paymentConditions"`
	DeliveryTime         string         `db:"delivery_time" json:"deliveryTime"`
	WarrantyTerms        string         `db:"warranty_terms" json:"warrantyTerms"`
	TechnicalScore       *float64       `db:"technical_score" json:"technicalScore,omitempty"`
	TechnicalReview      string         `db:"technical_review_text" json:"technicalReview,omitempty"`
	ReviewerID           *int64         `db:"reviewer_id" json:"reviewerId,omitempty"`
	ReviewedAt           *time.Time     `db:"reviewed_at" json:"reviewedAt,omitempty"`
	SubmittedAt          *time.Time     `db:"submitted_at" json:"submittedAt,omitempty"`
	CreatedAt            time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time      `db:"updated_at" json:"updatedAt"`
}

// Количество по позиции ТЗ в предложении
type ProposalServiceLine struct {
	ProposalID     int64           `db:"proposal_id" json:"proposalId"`
	ServiceItemID  int64           `db:"service_item_id" json:"serviceItemId"`
	Quantity       decimal.Decimal `db:"quantity" json:"quantity"`
	TechnicalNotes string          `db:"technical_notes" json:"technicalNotes"`
}

// Цена за единицу по позиции ТЗ в предложении
type ProposalPrice struct {
	ProposalID    int64           `db:"proposal_id" json:"proposalId"`
	ServiceItemID int64           `db:"service_item_id" json:"serviceItemId"`
	UnitPrice     decimal.Decimal `db:"unit_price" json:"unitPrice"`
}
