package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/psds-microservice/agri-support-service/internal/errs"
	"github.com/psds-microservice/agri-support-service/internal/model"
)

// MemoryStore keeps everything in process. Each request row has its own
// mutex; mutations clone the row, apply the caller's function and commit the
// clone only on success.
type MemoryStore struct {
	mu         sync.RWMutex
	nextReq    uint64
	nextMsg    uint64
	nextIdent  uint64
	rows       map[uint64]*memRow
	identities map[uint64]*model.Identity
	byUsername map[string]uint64
}

type memRow struct {
	mu       sync.Mutex
	req      *model.SupportRequest
	messages []*model.Message
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:       make(map[uint64]*memRow),
		identities: make(map[uint64]*model.Identity),
		byUsername: make(map[string]uint64),
	}
}

func (s *MemoryStore) CreateRequest(ctx context.Context, r *model.SupportRequest, seed *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextReq++
	r.ID = s.nextReq
	row := &memRow{req: r.Clone()}
	if seed != nil {
		s.nextMsg++
		seed.ID = s.nextMsg
		seed.RequestID = r.ID
		row.messages = append(row.messages, seed.Clone())
	}
	s.rows[r.ID] = row
	return nil
}

func (s *MemoryStore) row(id uint64) (*memRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, errs.NotFound("request not found")
	}
	return row, nil
}

func (s *MemoryStore) GetRequest(ctx context.Context, id uint64) (*model.SupportRequest, error) {
	row, err := s.row(id)
	if err != nil {
		return nil, err
	}
	row.mu.Lock()
	r := row.req.Clone()
	row.mu.Unlock()
	s.hydrate(r)
	return r, nil
}

func (s *MemoryStore) MutateRequest(ctx context.Context, id uint64, fn MutateFunc) (*model.SupportRequest, error) {
	row, err := s.row(id)
	if err != nil {
		return nil, err
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	working := row.req.Clone()
	s.hydrate(working)
	changed, err := fn(working)
	if err != nil {
		return nil, err
	}
	if changed {
		row.req = working.Clone()
	}
	return working, nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, requestID uint64, fn AppendFunc) (*model.Message, error) {
	row, err := s.row(requestID)
	if err != nil {
		return nil, err
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	current := row.req.Clone()
	s.hydrate(current)
	msg, err := fn(current)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.nextMsg++
	msg.ID = s.nextMsg
	s.mu.Unlock()
	msg.RequestID = requestID
	row.messages = append(row.messages, msg.Clone())
	return msg, nil
}

func (s *MemoryStore) ListRequests(ctx context.Context, f RequestFilter, page model.PageRequest) ([]model.SupportRequest, int64, error) {
	s.mu.RLock()
	rows := make([]*memRow, 0, len(s.rows))
	for _, row := range s.rows {
		rows = append(rows, row)
	}
	s.mu.RUnlock()

	var matched []model.SupportRequest
	for _, row := range rows {
		row.mu.Lock()
		r := row.req.Clone()
		row.mu.Unlock()
		if f.matches(r) {
			s.hydrate(r)
			matched = append(matched, *r)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := orderKey(&matched[i], f.OrderBy), orderKey(&matched[j], f.OrderBy)
		switch {
		case a == nil && b == nil:
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.After(*b)
		}
		return matched[i].ID > matched[j].ID
	})
	return paginate(matched, page), int64(len(matched)), nil
}

func orderKey(r *model.SupportRequest, o OrderBy) *time.Time {
	switch o {
	case OrderByTaken:
		return r.TakenAt
	case OrderByArchived:
		return r.ArchivedAt
	}
	return &r.CreatedAt
}

func (s *MemoryStore) ListMessages(ctx context.Context, requestID uint64, page model.PageRequest) ([]model.Message, int64, error) {
	row, err := s.row(requestID)
	if err != nil {
		return nil, 0, err
	}
	row.mu.Lock()
	msgs := make([]model.Message, 0, len(row.messages))
	for _, m := range row.messages {
		msgs = append(msgs, *m.Clone())
	}
	row.mu.Unlock()
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
	out := paginate(msgs, page)
	for i := range out {
		out[i].Sender = s.identity(out[i].SenderID)
	}
	return out, int64(len(msgs)), nil
}

func paginate[T any](items []T, page model.PageRequest) []T {
	if page.Size <= 0 {
		return items
	}
	start := page.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + page.Size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func (s *MemoryStore) hydrate(r *model.SupportRequest) {
	r.Creator = s.identity(r.CreatorID)
	r.AssignedAgent = nil
	if r.AssignedAgentID != nil {
		r.AssignedAgent = s.identity(*r.AssignedAgentID)
	}
}

func (s *MemoryStore) identity(id uint64) *model.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ident, ok := s.identities[id]; ok {
		c := *ident
		c.Roles = append(model.RoleSet(nil), ident.Roles...)
		return &c
	}
	return nil
}

func (s *MemoryStore) IdentityByID(ctx context.Context, id uint64) (*model.Identity, error) {
	if ident := s.identity(id); ident != nil {
		return ident, nil
	}
	return nil, errs.NotFound("identity not found")
}

func (s *MemoryStore) IdentityByUsername(ctx context.Context, username string) (*model.Identity, error) {
	s.mu.RLock()
	id, ok := s.byUsername[strings.TrimSpace(username)]
	s.mu.RUnlock()
	if !ok {
		return nil, errs.NotFound("identity not found")
	}
	return s.IdentityByID(ctx, id)
}

func (s *MemoryStore) IdentitiesWithRole(ctx context.Context, role model.Role) ([]model.Identity, error) {
	all, err := s.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}
	out := []model.Identity{}
	for _, ident := range all {
		if ident.Roles.Has(role) {
			out = append(out, ident)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListIdentities(ctx context.Context) ([]model.Identity, error) {
	s.mu.RLock()
	ids := make([]uint64, 0, len(s.identities))
	for id := range s.identities {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]model.Identity, 0, len(ids))
	for _, id := range ids {
		if ident := s.identity(id); ident != nil {
			out = append(out, *ident)
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveIdentity(ctx context.Context, ident *model.Identity) error {
	if strings.TrimSpace(ident.Username) == "" {
		return errs.Validation("username is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byUsername[ident.Username]; ok {
		ident.ID = id
	} else {
		s.nextIdent++
		ident.ID = s.nextIdent
		s.byUsername[ident.Username] = ident.ID
	}
	c := *ident
	c.Roles = append(model.RoleSet(nil), ident.Roles...)
	s.identities[ident.ID] = &c
	return nil
}
