package service

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/psds-microservice/agri-support-service/internal/errs"
	"github.com/psds-microservice/agri-support-service/internal/kafka"
	"github.com/psds-microservice/agri-support-service/internal/metrics"
	"github.com/psds-microservice/agri-support-service/internal/model"
)

// Clock returns the current time. Services take one so tests can pin time.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// ImageSaver stores an upload and returns its public URL.
type ImageSaver interface {
	Save(u *model.Upload) (string, error)
}

// publisher sends lifecycle events after commit. Sending never blocks the
// caller and a missing producer turns it off.
type publisher struct {
	events kafka.RequestEventProducer
}

func (p publisher) publish(event string, id uint64, payload map[string]interface{}) {
	if p.events == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		p.events.ProduceRequestEvent(ctx, event, strconv.FormatUint(id, 10), payload)
	}()
}

func requestEventPayload(r *model.SupportRequest) map[string]interface{} {
	payload := map[string]interface{}{
		"request_id": r.ID,
		"creator_id": r.CreatorID,
		"category":   r.Category,
		"status":     string(r.Status),
		"created_at": r.CreatedAt,
	}
	if r.AssignedAgentID != nil {
		payload["assigned_agent_id"] = *r.AssignedAgentID
	}
	if r.TakenAt != nil {
		payload["taken_at"] = *r.TakenAt
	}
	if r.ArchivedAt != nil {
		payload["archived_at"] = *r.ArchivedAt
	}
	return payload
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errs.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, errs.ErrForbidden):
		return "forbidden"
	case errors.Is(err, errs.ErrNotFound):
		return "not_found"
	case errors.Is(err, errs.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, errs.ErrValidation):
		return "validation"
	case errors.Is(err, errs.ErrUpstream):
		return "upstream"
	}
	return "error"
}

// observe is deferred by every mutating operation.
func observe(operation string, err *error) {
	metrics.ObserveOperation(operation, outcome(*err))
	if *err != nil && outcome(*err) == "error" {
		log.Printf("service: %s: %v", operation, *err)
	}
}

func requireCaller(actor *model.Identity) error {
	if actor == nil {
		return errs.Unauthenticated("caller identity required")
	}
	return nil
}

// optional trims s and maps the empty string to nil.
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
