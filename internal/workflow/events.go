package workflow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"procurement/models"
)

// Имена доменных событий.
const (
	EventTRSubmitted          = "tr.submitted"
	EventTRDecided            = "tr.decided"
	EventProcurementCreated   = "procurement.created"
	EventProcurementAssigned  = "procurement.assigned"
	EventProcurementUpdated   = "procurement.updated"
	EventProcurementTRLinked  = "procurement.tr_linked"
	EventProcurementOpened    = "procurement.opened"
	EventProcurementClosed    = "procurement.closed"
	EventProcurementFinalized = "procurement.finalized"
	EventInviteSent           = "invite.sent"
	EventInviteReceived       = "invite.received"
	EventInviteAccepted       = "invite.accepted"
	EventProposalSubmitted    = "proposal.submitted"
	EventProposalReviewed     = "proposal.reviewed"
)

type AudienceKind string

const (
	AudienceUser        AudienceKind = "USER"
	AudienceRole        AudienceKind = "ROLE"
	AudienceOrg         AudienceKind = "ORG"
	AudienceProcurement AudienceKind = "PROCUREMENT"
)

// Audience: адресат события, например USER:12 или ROLE:BUYER.
type Audience struct {
	Kind AudienceKind `json:"kind"`
	ID   string       `json:"id"`
}

func (a Audience) String() string {
	return fmt.Sprintf("%s:%s", a.Kind, a.ID)
}

func ToUser(id int64) Audience { return Audience{Kind: AudienceUser, ID: strconv.FormatInt(id, 10)} }

func ToRole(r models.Role) Audience { return Audience{Kind: AudienceRole, ID: string(r)} }

func ToOrg(id int64) Audience { return Audience{Kind: AudienceOrg, ID: strconv.FormatInt(id, 10)} }

func ToProcurement(id int64) Audience {
	return Audience{Kind: AudienceProcurement, ID: strconv.FormatInt(id, 10)}
}

type Event struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Audience   Audience       `json:"audience"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Notifier получает события только после успешного коммита.
// Ошибки доставки остаются внутри реализации и в ядро не возвращаются.
type Notifier interface {
	Publish(ctx context.Context, ev Event)
}

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, Event) {}

// events накапливает события операции до коммита.
type events []Event

func (e *events) add(name string, payload map[string]any, audiences ...Audience) {
	for _, a := range audiences {
		*e = append(*e, Event{
			ID:       uuid.NewString(),
			Name:     name,
			Audience: a,
			Payload:  payload,
		})
	}
}
