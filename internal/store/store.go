// Package store persists support requests, their chat messages and the
// identity directory. Mutations go through transactional read-modify-write
// units so that callers racing on one request see linearizable outcomes.
package store

import (
	"context"

	"github.com/psds-microservice/agri-support-service/internal/model"
)

// MutateFunc inspects the locked row and edits it in place. Returning
// changed=false skips the write; a non-nil error aborts the unit.
type MutateFunc func(r *model.SupportRequest) (changed bool, err error)

// AppendFunc inspects the locked row and returns the message to insert.
type AppendFunc func(r *model.SupportRequest) (*model.Message, error)

type RequestStore interface {
	// CreateRequest inserts r and, when seed is not nil, seed as its first
	// message, in one transaction. IDs are filled in on success.
	CreateRequest(ctx context.Context, r *model.SupportRequest, seed *model.Message) error
	GetRequest(ctx context.Context, id uint64) (*model.SupportRequest, error)
	MutateRequest(ctx context.Context, id uint64, fn MutateFunc) (*model.SupportRequest, error)
	AppendMessage(ctx context.Context, requestID uint64, fn AppendFunc) (*model.Message, error)
	ListRequests(ctx context.Context, f RequestFilter, page model.PageRequest) ([]model.SupportRequest, int64, error)
	ListMessages(ctx context.Context, requestID uint64, page model.PageRequest) ([]model.Message, int64, error)
}

type IdentityDirectory interface {
	IdentityByID(ctx context.Context, id uint64) (*model.Identity, error)
	IdentityByUsername(ctx context.Context, username string) (*model.Identity, error)
	IdentitiesWithRole(ctx context.Context, role model.Role) ([]model.Identity, error)
	ListIdentities(ctx context.Context) ([]model.Identity, error)
	// SaveIdentity inserts id or updates roles and identification number of
	// the identity with the same username.
	SaveIdentity(ctx context.Context, id *model.Identity) error
}

// Store is everything the service layer needs from persistence.
type Store interface {
	RequestStore
	IdentityDirectory
}

type OrderBy int

const (
	OrderByCreated OrderBy = iota
	OrderByTaken
	OrderByArchived
)

// RequestFilter narrows ListRequests. Zero-valued fields do not filter.
// Results are always newest first on the OrderBy column, id descending as
// tie-break, rows with a null OrderBy column last.
type RequestFilter struct {
	CreatorID       *uint64
	AssignedAgentID *uint64
	Unassigned      bool
	Status          *model.RequestStatus
	StatusNot       *model.RequestStatus
	OrderBy         OrderBy
}

func (f RequestFilter) matches(r *model.SupportRequest) bool {
	if f.CreatorID != nil && r.CreatorID != *f.CreatorID {
		return false
	}
	if f.AssignedAgentID != nil && !r.IsAssignedTo(*f.AssignedAgentID) {
		return false
	}
	if f.Unassigned && !r.Unassigned() {
		return false
	}
	if f.Status != nil && r.Status != *f.Status {
		return false
	}
	if f.StatusNot != nil && r.Status == *f.StatusNot {
		return false
	}
	return true
}
