package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/psds-microservice/agri-support-service/internal/authz"
	"github.com/psds-microservice/agri-support-service/internal/errs"
	"github.com/psds-microservice/agri-support-service/internal/kafka"
	"github.com/psds-microservice/agri-support-service/internal/model"
	"github.com/psds-microservice/agri-support-service/internal/store"
)

// RequestService owns the request state machine:
//
//	OPEN --take--> IN_PROGRESS --forward--> OPEN (pre-routed to the target)
//	OPEN | IN_PROGRESS --archive--> ARCHIVED (terminal)
type RequestService struct {
	store  store.Store
	images ImageSaver
	pub    publisher
	now    Clock
}

func NewRequestService(st store.Store, images ImageSaver, events kafka.RequestEventProducer) *RequestService {
	return &RequestService{store: st, images: images, pub: publisher{events: events}, now: systemClock}
}

// WithClock replaces the time source.
func (s *RequestService) WithClock(now Clock) *RequestService {
	s.now = now
	return s
}

type CreateInput struct {
	Category    string
	Description string
	ImageURL    string
	State       string
	District    string
}

func validateLocation(state, district string) error {
	if utf8.RuneCountInString(strings.TrimSpace(state)) > model.MaxLocationLen {
		return errs.Validation(fmt.Sprintf("state must be at most %d characters", model.MaxLocationLen))
	}
	if utf8.RuneCountInString(strings.TrimSpace(district)) > model.MaxLocationLen {
		return errs.Validation(fmt.Sprintf("district must be at most %d characters", model.MaxLocationLen))
	}
	return nil
}

func (s *RequestService) validateCreate(actor *model.Identity, in CreateInput) error {
	if err := requireCaller(actor); err != nil {
		return err
	}
	if !authz.CanCreate(actor) {
		return errs.Forbidden("only requesters can file requests")
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		return errs.Validation("category is required")
	}
	if utf8.RuneCountInString(category) > model.MaxCategoryLen {
		return errs.Validation(fmt.Sprintf("category must be at most %d characters", model.MaxCategoryLen))
	}
	if strings.TrimSpace(in.Description) == "" {
		return errs.Validation("description is required")
	}
	if utf8.RuneCountInString(in.ImageURL) > model.MaxImageURLLen {
		return errs.Validation("image url is too long")
	}
	return validateLocation(in.State, in.District)
}

// Create files an OPEN, unassigned request. The description doubles as the
// first chat message, written in the same transaction.
func (s *RequestService) Create(ctx context.Context, actor *model.Identity, in CreateInput) (r *model.SupportRequest, err error) {
	defer observe("create", &err)
	if err := s.validateCreate(actor, in); err != nil {
		return nil, err
	}
	now := s.now()
	description := strings.TrimSpace(in.Description)
	r = &model.SupportRequest{
		CreatorID:        actor.ID,
		Creator:          actor,
		Category:         strings.TrimSpace(in.Category),
		Description:      description,
		ImageURL:         optional(in.ImageURL),
		LocationState:    optional(in.State),
		LocationDistrict: optional(in.District),
		Status:           model.StatusOpen,
		CreatedAt:        now,
	}
	seed := &model.Message{SenderID: actor.ID, Sender: actor, Body: description, CreatedAt: now}
	if err := s.store.CreateRequest(ctx, r, seed); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	r.Creator = actor
	s.pub.publish("request.created", r.ID, requestEventPayload(r))
	return r, nil
}

// CreateWithImage validates, stores the photo, then creates the request. The
// stored photo is kept even when the insert fails.
func (s *RequestService) CreateWithImage(ctx context.Context, actor *model.Identity, in CreateInput, image *model.Upload) (*model.SupportRequest, error) {
	if err := s.validateCreate(actor, in); err != nil {
		return nil, err
	}
	if !image.Empty() {
		if s.images == nil {
			return nil, errors.New("create request: image storage not configured")
		}
		url, err := s.images.Save(image)
		if err != nil {
			return nil, fmt.Errorf("store image: %w", err)
		}
		in.ImageURL = url
	}
	return s.Create(ctx, actor, in)
}

// Get returns the request to one of its participants.
func (s *RequestService) Get(ctx context.Context, viewer *model.Identity, id uint64) (*model.SupportRequest, error) {
	if err := requireCaller(viewer); err != nil {
		return nil, err
	}
	r, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.IsParticipant(viewer, r) {
		return nil, errs.Forbidden("not a participant of this request")
	}
	return r, nil
}

// Take moves an OPEN request to IN_PROGRESS under actor. Taking a request the
// actor already holds returns it unchanged.
func (s *RequestService) Take(ctx context.Context, actor *model.Identity, id uint64) (r *model.SupportRequest, err error) {
	defer observe("take", &err)
	if err := requireCaller(actor); err != nil {
		return nil, err
	}
	if !authz.IsStaff(actor) {
		return nil, errs.Forbidden("only agents can take requests")
	}
	transitioned := false
	r, err = s.store.MutateRequest(ctx, id, func(cur *model.SupportRequest) (bool, error) {
		if cur.Status == model.StatusInProgress && cur.IsAssignedTo(actor.ID) {
			return false, nil
		}
		if cur.Status != model.StatusOpen {
			return false, errs.InvalidState("request is not open")
		}
		if !cur.Unassigned() && !cur.IsAssignedTo(actor.ID) && !authz.IsOverseer(actor) {
			return false, errs.Forbidden("request is assigned to another agent")
		}
		now := s.now()
		cur.AssignTo(actor)
		cur.Status = model.StatusInProgress
		cur.TakenAt = &now
		transitioned = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if transitioned {
		s.pub.publish("request.taken", r.ID, requestEventPayload(r))
	}
	return r, nil
}

// Forward hands an IN_PROGRESS request to another agent and reopens it in
// that agent's queue.
func (s *RequestService) Forward(ctx context.Context, actor *model.Identity, id uint64, targetUsername string) (r *model.SupportRequest, err error) {
	defer observe("forward", &err)
	if err := requireCaller(actor); err != nil {
		return nil, err
	}
	if !authz.IsStaff(actor) {
		return nil, errs.Forbidden("only agents can forward requests")
	}
	targetUsername = strings.TrimSpace(targetUsername)
	var (
		target    *model.Identity
		targetErr error
	)
	if targetUsername != "" {
		target, targetErr = s.store.IdentityByUsername(ctx, targetUsername)
		if errors.Is(targetErr, errs.ErrNotFound) {
			targetErr = errs.NotFound("target agent not found")
		}
	}
	var previous *uint64
	r, err = s.store.MutateRequest(ctx, id, func(cur *model.SupportRequest) (bool, error) {
		switch cur.Status {
		case model.StatusArchived:
			return false, errs.InvalidState("cannot forward an archived request")
		case model.StatusOpen:
			return false, errs.InvalidState("only in-progress requests can be forwarded")
		}
		if !authz.IsOverseer(actor) && !cur.IsAssignedTo(actor.ID) {
			return false, errs.Forbidden("only the assigned agent can forward")
		}
		if targetUsername == "" {
			return false, errs.Validation("target username is required")
		}
		if cur.AssignedAgent != nil && cur.AssignedAgent.Username == targetUsername {
			return false, errs.Validation("request is already assigned to that agent")
		}
		if targetUsername == actor.Username {
			return false, errs.Validation("cannot forward to self")
		}
		if targetErr != nil {
			return false, targetErr
		}
		if !authz.IsStaff(target) {
			return false, errs.Validation("target is not an agent")
		}
		previous = cur.AssignedAgentID
		cur.AssignTo(target)
		cur.Status = model.StatusOpen
		cur.TakenAt = nil
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	payload := requestEventPayload(r)
	payload["forwarded_by"] = actor.ID
	if previous != nil {
		payload["previous_agent_id"] = *previous
	}
	s.pub.publish("request.forwarded", r.ID, payload)
	return r, nil
}

// Archive closes the request and locks its chat. Archiving twice is an
// InvalidState error.
func (s *RequestService) Archive(ctx context.Context, actor *model.Identity, id uint64) (r *model.SupportRequest, err error) {
	defer observe("archive", &err)
	if err := requireCaller(actor); err != nil {
		return nil, err
	}
	r, err = s.store.MutateRequest(ctx, id, func(cur *model.SupportRequest) (bool, error) {
		if !authz.CanArchive(actor, cur) {
			return false, errs.Forbidden("only the assigned agent or an overseer can archive")
		}
		if cur.Status == model.StatusArchived {
			return false, errs.InvalidState("request is already archived")
		}
		// an overseer closing an untouched request becomes its closing agent
		if cur.Unassigned() {
			cur.AssignTo(actor)
		}
		now := s.now()
		cur.Status = model.StatusArchived
		cur.ArchivedAt = &now
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	s.pub.publish("request.archived", r.ID, requestEventPayload(r))
	return r, nil
}

// Replay sends a request.snapshot event for every stored request, newest
// first, so consumers can rebuild their view. progress may be nil.
func (s *RequestService) Replay(ctx context.Context, events kafka.RequestEventProducer, progress func(sent int, total int64)) (int, error) {
	sent := 0
	page := model.PageRequest{Size: model.MaxPageSize}
	for {
		items, total, err := s.store.ListRequests(ctx, store.RequestFilter{OrderBy: store.OrderByCreated}, page)
		if err != nil {
			return sent, fmt.Errorf("replay: list page %d: %w", page.Page, err)
		}
		for i := range items {
			r := &items[i]
			events.ProduceRequestEvent(ctx, "request.snapshot", strconv.FormatUint(r.ID, 10), requestEventPayload(r))
			sent++
		}
		if progress != nil && len(items) > 0 {
			progress(sent, total)
		}
		if len(items) < page.Size || int64(sent) >= total {
			return sent, nil
		}
		page.Page++
	}
}
