package service

import (
	"context"

	"github.com/psds-microservice/agri-support-service/internal/authz"
	"github.com/psds-microservice/agri-support-service/internal/errs"
	"github.com/psds-microservice/agri-support-service/internal/model"
	"github.com/psds-microservice/agri-support-service/internal/store"
)

// AssignmentService builds the inbox views over the request table.
type AssignmentService struct {
	store store.Store
}

func NewAssignmentService(st store.Store) *AssignmentService {
	return &AssignmentService{store: st}
}

func requireStaff(actor *model.Identity) error {
	if err := requireCaller(actor); err != nil {
		return err
	}
	if !authz.IsStaff(actor) {
		return errs.Forbidden("agent role required")
	}
	return nil
}

func requireRequester(actor *model.Identity) error {
	if err := requireCaller(actor); err != nil {
		return err
	}
	if !authz.CanCreate(actor) {
		return errs.Forbidden("requester role required")
	}
	return nil
}

func statusPtr(s model.RequestStatus) *model.RequestStatus { return &s }

func (s *AssignmentService) list(ctx context.Context, f store.RequestFilter, page model.PageRequest) (model.Page[model.SupportRequest], error) {
	page = page.Normalize(model.DefaultPageSize)
	items, total, err := s.store.ListRequests(ctx, f, page)
	if err != nil {
		return model.Page[model.SupportRequest]{}, err
	}
	return model.NewPage(items, total, page), nil
}

// Queue lists OPEN requests nobody holds, newest first.
func (s *AssignmentService) Queue(ctx context.Context, actor *model.Identity, page model.PageRequest) (model.Page[model.SupportRequest], error) {
	if err := requireStaff(actor); err != nil {
		return model.Page[model.SupportRequest]{}, err
	}
	return s.list(ctx, store.RequestFilter{
		Status:     statusPtr(model.StatusOpen),
		Unassigned: true,
		OrderBy:    store.OrderByCreated,
	}, page)
}

// Assigned lists the actor's non-archived requests, most recently taken
// first. Requests forwarded to the actor and not yet taken come last.
func (s *AssignmentService) Assigned(ctx context.Context, actor *model.Identity, page model.PageRequest) (model.Page[model.SupportRequest], error) {
	if err := requireStaff(actor); err != nil {
		return model.Page[model.SupportRequest]{}, err
	}
	return s.list(ctx, store.RequestFilter{
		AssignedAgentID: &actor.ID,
		StatusNot:       statusPtr(model.StatusArchived),
		OrderBy:         store.OrderByTaken,
	}, page)
}

func (s *AssignmentService) AgentArchived(ctx context.Context, actor *model.Identity, page model.PageRequest) (model.Page[model.SupportRequest], error) {
	if err := requireStaff(actor); err != nil {
		return model.Page[model.SupportRequest]{}, err
	}
	return s.list(ctx, store.RequestFilter{
		AssignedAgentID: &actor.ID,
		Status:          statusPtr(model.StatusArchived),
		OrderBy:         store.OrderByArchived,
	}, page)
}

// Mine lists every request the actor filed, newest first.
func (s *AssignmentService) Mine(ctx context.Context, actor *model.Identity, page model.PageRequest) (model.Page[model.SupportRequest], error) {
	if err := requireRequester(actor); err != nil {
		return model.Page[model.SupportRequest]{}, err
	}
	return s.list(ctx, store.RequestFilter{CreatorID: &actor.ID, OrderBy: store.OrderByCreated}, page)
}

func (s *AssignmentService) MineArchived(ctx context.Context, actor *model.Identity, page model.PageRequest) (model.Page[model.SupportRequest], error) {
	if err := requireRequester(actor); err != nil {
		return model.Page[model.SupportRequest]{}, err
	}
	return s.list(ctx, store.RequestFilter{
		CreatorID: &actor.ID,
		Status:    statusPtr(model.StatusArchived),
		OrderBy:   store.OrderByArchived,
	}, page)
}

// Agents lists the identities a request can be forwarded to.
func (s *AssignmentService) Agents(ctx context.Context, actor *model.Identity) ([]model.Identity, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return s.store.IdentitiesWithRole(ctx, model.RoleAgent)
}
