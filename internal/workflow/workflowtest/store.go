// Package workflowtest содержит хранилище в памяти и записывающий
// нотификатор для тестов пакетов workflow и handlers.
package workflowtest

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"procurement/internal/workflow"
	"procurement/models"
)

type lineKey struct{ proposalID, itemID int64 }

type state struct {
	nextID      int64
	users       map[int64]models.User
	trs         map[int64]models.TermsOfReference
	items       map[int64][]models.ServiceLineItem
	procurement map[int64]models.Procurement
	invites     map[int64]models.Invite
	proposals   map[int64]models.Proposal
	lines       map[lineKey]models.ProposalServiceLine
	prices      map[lineKey]models.ProposalPrice
}

func newState() *state {
	return &state{
		users:       map[int64]models.User{},
		trs:         map[int64]models.TermsOfReference{},
		items:       map[int64][]models.ServiceLineItem{},
		procurement: map[int64]models.Procurement{},
		invites:     map[int64]models.Invite{},
		proposals:   map[int64]models.Proposal{},
		lines:       map[lineKey]models.ProposalServiceLine{},
		prices:      map[lineKey]models.ProposalPrice{},
	}
}

func (s *state) clone() *state {
	c := &state{
		nextID:      s.nextID,
		users:       maps.Clone(s.users),
		trs:         maps.Clone(s.trs),
		items:       make(map[int64][]models.ServiceLineItem, len(s.items)),
		procurement: maps.Clone(s.procurement),
		invites:     maps.Clone(s.invites),
		proposals:   maps.Clone(s.proposals),
		lines:       maps.Clone(s.lines),
		prices:      maps.Clone(s.prices),
	}
	for k, v := range s.items {
		c.items[k] = slices.Clone(v)
	}
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// Store реализует workflow.Store в памяти. Транзакция работает над копией
// состояния и подменяет его только при успехе.
type Store struct {
	*repo
}

var _ workflow.Store = (*Store)(nil)

type repo struct {
	mu     *sync.Mutex
	st     *state
	inTx   bool
	faults map[string]error
}

func NewStore() *Store {
	return &Store{repo: &repo{mu: &sync.Mutex{}, st: newState(), faults: map[string]error{}}}
}

func (s *Store) Tx(_ context.Context, fn func(r workflow.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &repo{mu: s.mu, st: s.st.clone(), inTx: true, faults: s.faults}
	if err := fn(tx); err != nil {
		return err
	}
	s.repo.st = tx.st
	return nil
}

// FailOn заставляет метод репозитория вернуть err при следующем вызове.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method] = err
}

// AddUser регистрирует пользователя и возвращает его с присвоенным ID.
func (s *Store) AddUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.st.id()
	u.Email = strings.ToLower(u.Email)
	s.st.users[u.ID] = u
	return u
}

func (r *repo) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func (r *repo) fault(method string) error {
	if err, ok := r.faults[method]; ok {
		delete(r.faults, method)
		return err
	}
	return nil
}

func notFound(what string, id any) error {
	return fmt.Errorf("%w: %s %v", workflow.ErrNotFound, what, id)
}

func (r *repo) GetUser(_ context.Context, id int64) (*models.User, error) {
	defer r.lock()()
	u, ok := r.st.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	return &u, nil
}

func (r *repo) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	defer r.lock()()
	for _, u := range r.st.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, notFound("user", email)
}

func (r *repo) FindRequester(_ context.Context, preferOrgID int64) (*models.User, error) {
	defer r.lock()()
	var best *models.User
	for _, u := range r.st.users {
		if u.Role != models.RoleRequester || !u.Active {
			continue
		}
		if best == nil {
			best = &u
			continue
		}
		bestSame, same := best.OrganizationID == preferOrgID, u.OrganizationID == preferOrgID
		if (same && !bestSame) || (same == bestSame && u.ID < best.ID) {
			best = &u
		}
	}
	if best == nil {
		return nil, notFound("requester", preferOrgID)
	}
	return best, nil
}

func (r *repo) CreateTR(_ context.Context, tr *models.TermsOfReference) error {
	defer r.lock()()
	if err := r.fault("CreateTR"); err != nil {
		return err
	}
	tr.ID = r.st.id()
	c := *tr
	c.Items = nil
	r.st.trs[tr.ID] = c
	return nil
}

func (r *repo) GetTR(_ context.Context, id int64) (*models.TermsOfReference, error) {
	defer r.lock()()
	tr, ok := r.st.trs[id]
	if !ok {
		return nil, notFound("terms of reference", id)
	}
	tr.Items = slices.Clone(r.st.items[id])
	return &tr, nil
}

func (r *repo) UpdateTR(_ context.Context, tr *models.TermsOfReference) error {
	defer r.lock()()
	if err := r.fault("UpdateTR"); err != nil {
		return err
	}
	if _, ok := r.st.trs[tr.ID]; !ok {
		return notFound("terms of reference", tr.ID)
	}
	c := *tr
	c.Items = nil
	r.st.trs[tr.ID] = c
	return nil
}

func (r *repo) ReplaceServiceItems(_ context.Context, trID int64, items []models.ServiceLineItem) ([]models.ServiceLineItem, error) {
	defer r.lock()()
	if err := r.fault("ReplaceServiceItems"); err != nil {
		return nil, err
	}
	saved := make([]models.ServiceLineItem, 0, len(items))
	for _, it := range items {
		it.ID = r.st.id()
		it.TRID = trID
		saved = append(saved, it)
	}
	sort.Slice(saved, func(i, j int) bool { return saved[i].Order < saved[j].Order })
	r.st.items[trID] = saved
	return slices.Clone(saved), nil
}

func (r *repo) ListTRs(_ context.Context, f workflow.TRFilter) ([]models.TermsOfReference, error) {
	defer r.lock()()
	out := []models.TermsOfReference{}
	for _, tr := range r.st.trs {
		if f.CreatorID != nil && tr.CreatorID != *f.CreatorID {
			continue
		}
		if slices.Contains(f.ExcludeStatuses, tr.Status) {
			continue
		}
		tr.Items = slices.Clone(r.st.items[tr.ID])
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, f.Limit, f.Offset), nil
}

func (r *repo) ServiceItemIDs(_ context.Context, trID int64) (map[int64]bool, error) {
	defer r.lock()()
	ids := map[int64]bool{}
	for _, it := range r.st.items[trID] {
		ids[it.ID] = true
	}
	return ids, nil
}

func (r *repo) CreateProcurement(_ context.Context, p *models.Procurement) error {
	defer r.lock()()
	if err := r.fault("CreateProcurement"); err != nil {
		return err
	}
	p.ID = r.st.id()
	r.st.procurement[p.ID] = *p
	return nil
}

func (r *repo) GetProcurement(_ context.Context, id int64) (*models.Procurement, error) {
	defer r.lock()()
	p, ok := r.st.procurement[id]
	if !ok {
		return nil, notFound("procurement", id)
	}
	return &p, nil
}

func (r *repo) GetProcurementByTR(_ context.Context, trID int64) (*models.Procurement, error) {
	defer r.lock()()
	for _, p := range r.st.procurement {
		if p.TRID != nil && *p.TRID == trID {
			return &p, nil
		}
	}
	return nil, notFound("procurement for terms of reference", trID)
}

func (r *repo) UpdateProcurement(_ context.Context, p *models.Procurement) error {
	defer r.lock()()
	if err := r.fault("UpdateProcurement"); err != nil {
		return err
	}
	if _, ok := r.st.procurement[p.ID]; !ok {
		return notFound("procurement", p.ID)
	}
	if p.TRID != nil {
		for _, other := range r.st.procurement {
			if other.ID != p.ID && other.TRID != nil && *other.TRID == *p.TRID {
				return fmt.Errorf("%w: terms of reference %d already linked", workflow.ErrConflict, *p.TRID)
			}
		}
	}
	r.st.procurement[p.ID] = *p
	return nil
}

func (r *repo) ListProcurements(_ context.Context, f workflow.ProcurementFilter) ([]models.Procurement, error) {
	defer r.lock()()
	invited := map[int64]bool{}
	if f.InvitedEmail != "" {
		for _, inv := range r.st.invites {
			if strings.EqualFold(inv.Email, f.InvitedEmail) {
				invited[inv.ProcurementID] = true
			}
		}
	}
	out := []models.Procurement{}
	for _, p := range r.st.procurement {
		if f.RequesterID != nil && (p.RequesterID == nil || *p.RequesterID != *f.RequesterID) {
			continue
		}
		if len(f.Statuses) > 0 || f.InvitedEmail != "" {
			if !slices.Contains(f.Statuses, p.Status) && !invited[p.ID] {
				continue
			}
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, f.Limit, f.Offset), nil
}

func (r *repo) CreateInvite(_ context.Context, inv *models.Invite) error {
	defer r.lock()()
	if err := r.fault("CreateInvite"); err != nil {
		return err
	}
	for _, other := range r.st.invites {
		if other.ProcurementID == inv.ProcurementID && other.Email == inv.Email {
			return fmt.Errorf("%w: duplicate invite", workflow.ErrConflict)
		}
	}
	inv.ID = r.st.id()
	r.st.invites[inv.ID] = *inv
	return nil
}

func (r *repo) GetInviteByToken(_ context.Context, token string) (*models.Invite, error) {
	defer r.lock()()
	for _, inv := range r.st.invites {
		if inv.Token == token {
			return &inv, nil
		}
	}
	return nil, notFound("invite", "token")
}

func (r *repo) InviteExists(_ context.Context, procurementID int64, email string) (bool, error) {
	defer r.lock()()
	for _, inv := range r.st.invites {
		if inv.ProcurementID == procurementID && strings.EqualFold(inv.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (r *repo) ListInvites(_ context.Context, procurementID int64) ([]models.Invite, error) {
	defer r.lock()()
	out := []models.Invite{}
	for _, inv := range r.st.invites {
		if inv.ProcurementID == procurementID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *repo) MarkInviteAccepted(_ context.Context, inv *models.Invite) (bool, error) {
	defer r.lock()()
	if err := r.fault("MarkInviteAccepted"); err != nil {
		return false, err
	}
	cur, ok := r.st.invites[inv.ID]
	if !ok || cur.Accepted {
		return false, nil
	}
	cur.Accepted = true
	cur.AcceptedAt = inv.AcceptedAt
	r.st.invites[inv.ID] = cur
	return true, nil
}

func (r *repo) EnsureProposal(_ context.Context, procurementID, supplierID int64) (*models.Proposal, error) {
	defer r.lock()()
	for _, p := range r.st.proposals {
		if p.ProcurementID == procurementID && p.SupplierID == supplierID {
			return &p, nil
		}
	}
	// как NOW() в INSERT db.EnsureProposal
	now := time.Now().UTC()
	p := models.Proposal{
		ID:            r.st.id(),
		ProcurementID: procurementID,
		SupplierID:    supplierID,
		Status:        models.ProposalDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.st.proposals[p.ID] = p
	return &p, nil
}

func (r *repo) GetProposal(_ context.Context, id int64) (*models.Proposal, error) {
	defer r.lock()()
	p, ok := r.st.proposals[id]
	if !ok {
		return nil, notFound("proposal", id)
	}
	return &p, nil
}

func (r *repo) UpdateProposal(_ context.Context, p *models.Proposal) error {
	defer r.lock()()
	if err := r.fault("UpdateProposal"); err != nil {
		return err
	}
	if _, ok := r.st.proposals[p.ID]; !ok {
		return notFound("proposal", p.ID)
	}
	r.st.proposals[p.ID] = *p
	return nil
}

func (r *repo) UpsertProposalLine(_ context.Context, l models.ProposalServiceLine) error {
	defer r.lock()()
	if err := r.fault("UpsertProposalLine"); err != nil {
		return err
	}
	r.st.lines[lineKey{l.ProposalID, l.ServiceItemID}] = l
	return nil
}

func (r *repo) UpsertProposalPrice(_ context.Context, pr models.ProposalPrice) error {
	defer r.lock()()
	if err := r.fault("UpsertProposalPrice"); err != nil {
		return err
	}
	r.st.prices[lineKey{pr.ProposalID, pr.ServiceItemID}] = pr
	return nil
}

func (r *repo) detail(p models.Proposal) workflow.ProposalDetail {
	d := workflow.ProposalDetail{Proposal: p}
	for k, l := range r.st.lines {
		if k.proposalID == p.ID {
			d.Lines = append(d.Lines, l)
		}
	}
	for k, pr := range r.st.prices {
		if k.proposalID == p.ID {
			d.Prices = append(d.Prices, pr)
		}
	}
	sort.Slice(d.Lines, func(i, j int) bool { return d.Lines[i].ServiceItemID < d.Lines[j].ServiceItemID })
	sort.Slice(d.Prices, func(i, j int) bool { return d.Prices[i].ServiceItemID < d.Prices[j].ServiceItemID })
	return d
}

func (r *repo) GetProposalDetail(_ context.Context, id int64) (*workflow.ProposalDetail, error) {
	defer r.lock()()
	p, ok := r.st.proposals[id]
	if !ok {
		return nil, notFound("proposal", id)
	}
	d := r.detail(p)
	return &d, nil
}

func (r *repo) ListProposalDetails(_ context.Context, procurementID int64, statuses ...models.ProposalStatus) ([]workflow.ProposalDetail, error) {
	defer r.lock()()
	out := []workflow.ProposalDetail{}
	for _, p := range r.st.proposals {
		if p.ProcurementID != procurementID {
			continue
		}
		if len(statuses) > 0 && !slices.Contains(statuses, p.Status) {
			continue
		}
		out = append(out, r.detail(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Proposal.ID < out[j].Proposal.ID })
	return out, nil
}

func (r *repo) CountProposals(_ context.Context, procurementID int64, status models.ProposalStatus) (int, error) {
	defer r.lock()()
	n := 0
	for _, p := range r.st.proposals {
		if p.ProcurementID == procurementID && p.Status == status {
			n++
		}
	}
	return n, nil
}

// Proposals возвращает число предложений в закупке (для проверки уникальности).
func (s *Store) Proposals(procurementID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.st.proposals {
		if p.ProcurementID == procurementID {
			n++
		}
	}
	return n
}

func paginate[T any](in []T, limit, offset int) []T {
	if offset >= len(in) {
		return []T{}
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
