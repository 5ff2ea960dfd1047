package handler

import (
	"time"

	"github.com/psds-microservice/agri-support-service/internal/authz"
	"github.com/psds-microservice/agri-support-service/internal/model"
)

type identityView struct {
	Username             string        `json:"username"`
	Roles                model.RoleSet `json:"roles"`
	IdentificationNumber *string       `json:"identification_number,omitempty"`
}

// requestView is what a viewer gets to see of a request. Agent
// identification numbers are shown to staff only; the creator's never is.
type requestView struct {
	ID                                  uint64              `json:"id"`
	CreatedByUsername                   string              `json:"created_by_username"`
	Category                            string              `json:"category"`
	Description                         string              `json:"description"`
	ImageURL                            *string             `json:"image_url"`
	State                               *string             `json:"state"`
	District                            *string             `json:"district"`
	Status                              model.RequestStatus `json:"status"`
	CreatedAt                           time.Time           `json:"created_at"`
	TakenAt                             *time.Time          `json:"taken_at"`
	ArchivedAt                          *time.Time          `json:"archived_at"`
	AssignedOfficerUsername             *string             `json:"assigned_officer_username"`
	AssignedOfficerIdentificationNumber *string             `json:"assigned_officer_identification_number,omitempty"`
	CreatedBy                           *identityView       `json:"created_by"`
	AssignedOfficer                     *identityView       `json:"assigned_officer"`
}

func newRequestView(r *model.SupportRequest, viewer *model.Identity) requestView {
	v := requestView{
		ID:          r.ID,
		Category:    r.Category,
		Description: r.Description,
		ImageURL:    r.ImageURL,
		State:       r.LocationState,
		District:    r.LocationDistrict,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		TakenAt:     r.TakenAt,
		ArchivedAt:  r.ArchivedAt,
	}
	if r.Creator != nil {
		v.CreatedByUsername = r.Creator.Username
		v.CreatedBy = &identityView{Username: r.Creator.Username, Roles: r.Creator.Roles}
	}
	if a := r.AssignedAgent; a != nil {
		name := a.Username
		v.AssignedOfficerUsername = &name
		v.AssignedOfficer = &identityView{Username: a.Username, Roles: a.Roles}
		if authz.CanSeeAgentIdentification(viewer) {
			v.AssignedOfficerIdentificationNumber = a.IdentificationNumber
			v.AssignedOfficer.IdentificationNumber = a.IdentificationNumber
		}
	}
	return v
}

func requestPage(p model.Page[model.SupportRequest], viewer *model.Identity) model.Page[requestView] {
	return model.MapPage(p, func(r model.SupportRequest) requestView {
		return newRequestView(&r, viewer)
	})
}

type messageView struct {
	ID             uint64    `json:"id"`
	RequestID      uint64    `json:"request_id"`
	SenderUsername string    `json:"sender_username"`
	SenderRole     string    `json:"sender_role,omitempty"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
}

func newMessageView(m *model.Message) messageView {
	v := messageView{ID: m.ID, RequestID: m.RequestID, Message: m.Body, CreatedAt: m.CreatedAt}
	if m.Sender != nil {
		v.SenderUsername = m.Sender.Username
		v.SenderRole = m.Sender.PrimaryRole()
	}
	return v
}

type agentView struct {
	Username             string  `json:"username"`
	IdentificationNumber *string `json:"identification_number"`
}
