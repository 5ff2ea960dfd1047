package service

import (
	"context"
	"strings"

	"github.com/psds-microservice/agri-support-service/internal/authz"
	"github.com/psds-microservice/agri-support-service/internal/errs"
	"github.com/psds-microservice/agri-support-service/internal/kafka"
	"github.com/psds-microservice/agri-support-service/internal/model"
	"github.com/psds-microservice/agri-support-service/internal/store"
)

// ChatService gates the message thread of a request by its status and by who
// is asking.
type ChatService struct {
	store store.RequestStore
	pub   publisher
	now   Clock
}

func NewChatService(st store.RequestStore, events kafka.RequestEventProducer) *ChatService {
	return &ChatService{store: st, pub: publisher{events: events}, now: systemClock}
}

func (s *ChatService) WithClock(now Clock) *ChatService {
	s.now = now
	return s
}

// ListMessages returns the thread oldest first to a participant.
func (s *ChatService) ListMessages(ctx context.Context, viewer *model.Identity, requestID uint64, page model.PageRequest) (model.Page[model.Message], error) {
	if err := requireCaller(viewer); err != nil {
		return model.Page[model.Message]{}, err
	}
	r, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return model.Page[model.Message]{}, err
	}
	if !authz.IsParticipant(viewer, r) {
		return model.Page[model.Message]{}, errs.Forbidden("not a participant of this request")
	}
	page = page.Normalize(model.DefaultMessagePage)
	items, total, err := s.store.ListMessages(ctx, requestID, page)
	if err != nil {
		return model.Page[model.Message]{}, err
	}
	return model.NewPage(items, total, page), nil
}

// SendMessage appends body to the thread. The status check and the insert
// run under the request's row lock, so nothing is written after an archive
// commits.
func (s *ChatService) SendMessage(ctx context.Context, sender *model.Identity, requestID uint64, body string) (msg *model.Message, err error) {
	defer observe("send_message", &err)
	if err := requireCaller(sender); err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errs.Validation("message is required")
	}
	msg, err = s.store.AppendMessage(ctx, requestID, func(r *model.SupportRequest) (*model.Message, error) {
		if err := authz.CheckSend(sender, r); err != nil {
			return nil, err
		}
		return &model.Message{SenderID: sender.ID, Sender: sender, Body: body, CreatedAt: s.now()}, nil
	})
	if err != nil {
		return nil, err
	}
	s.pub.publish("message.sent", requestID, map[string]interface{}{
		"request_id": requestID,
		"message_id": msg.ID,
		"sender_id":  sender.ID,
		"created_at": msg.CreatedAt,
	})
	return msg, nil
}
