package model

import (
	"errors"
	"time"
)

type RequestStatus string

const (
	StatusOpen       RequestStatus = "OPEN"
	StatusInProgress RequestStatus = "IN_PROGRESS"
	StatusArchived   RequestStatus = "ARCHIVED"
)

// Column limits shared by validation and the schema.
const (
	MaxCategoryLen = 120
	MaxLocationLen = 80
	MaxImageURLLen = 500
)

type SupportRequest struct {
	ID               uint64        `gorm:"primaryKey" json:"id"`
	CreatorID        uint64        `gorm:"index;not null" json:"creator_id"`
	Creator          *Identity     `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	AssignedAgentID  *uint64       `gorm:"index" json:"assigned_agent_id,omitempty"`
	AssignedAgent    *Identity     `gorm:"foreignKey:AssignedAgentID" json:"assigned_agent,omitempty"`
	Category         string        `gorm:"type:varchar(120);not null" json:"category"`
	Description      string        `gorm:"type:text;not null" json:"description"`
	ImageURL         *string       `gorm:"type:varchar(500)" json:"image_url,omitempty"`
	LocationState    *string       `gorm:"type:varchar(80)" json:"state,omitempty"`
	LocationDistrict *string       `gorm:"type:varchar(80)" json:"district,omitempty"`
	Status           RequestStatus `gorm:"type:varchar(20);index;not null" json:"status"`

	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
	TakenAt    *time.Time `json:"taken_at,omitempty"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

func (SupportRequest) TableName() string { return "support_requests" }

// AssignTo points the request at agent; nil clears the assignment.
func (r *SupportRequest) AssignTo(agent *Identity) {
	r.AssignedAgent = agent
	if agent == nil {
		r.AssignedAgentID = nil
		return
	}
	id := agent.ID
	r.AssignedAgentID = &id
}

func (r *SupportRequest) IsAssignedTo(id uint64) bool {
	return r.AssignedAgentID != nil && *r.AssignedAgentID == id
}

func (r *SupportRequest) Unassigned() bool { return r.AssignedAgentID == nil }

// Clone returns a copy that shares no pointers with r.
func (r *SupportRequest) Clone() *SupportRequest {
	c := *r
	c.Creator = cloneIdentity(r.Creator)
	c.AssignedAgent = cloneIdentity(r.AssignedAgent)
	c.AssignedAgentID = clonePtr(r.AssignedAgentID)
	c.ImageURL = clonePtr(r.ImageURL)
	c.LocationState = clonePtr(r.LocationState)
	c.LocationDistrict = clonePtr(r.LocationDistrict)
	c.TakenAt = clonePtr(r.TakenAt)
	c.ArchivedAt = clonePtr(r.ArchivedAt)
	return &c
}

var (
	errArchivedAtMismatch = errors.New("archived_at must be set exactly when status is ARCHIVED")
	errUnassignedNotOpen  = errors.New("an unassigned request must be OPEN")
	errTakenUnassigned    = errors.New("taken_at requires an assigned agent")
	errUnknownStatus      = errors.New("unknown status")
)

// CheckInvariants reports the first structural invariant r violates.
func (r *SupportRequest) CheckInvariants() error {
	switch r.Status {
	case StatusOpen, StatusInProgress, StatusArchived:
	default:
		return errUnknownStatus
	}
	if (r.ArchivedAt != nil) != (r.Status == StatusArchived) {
		return errArchivedAtMismatch
	}
	if r.AssignedAgentID == nil && r.Status != StatusOpen {
		return errUnassignedNotOpen
	}
	if r.TakenAt != nil && r.AssignedAgentID == nil {
		return errTakenUnassigned
	}
	return nil
}

// Message is one chat entry on a request. Rows are append-only.
type Message struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	RequestID uint64    `gorm:"index;not null" json:"request_id"`
	SenderID  uint64    `gorm:"not null" json:"sender_id"`
	Sender    *Identity `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Message) TableName() string { return "request_messages" }

func (m *Message) Clone() *Message {
	c := *m
	c.Sender = cloneIdentity(m.Sender)
	return &c
}

func cloneIdentity(i *Identity) *Identity {
	if i == nil {
		return nil
	}
	c := *i
	c.Roles = append(RoleSet(nil), i.Roles...)
	c.IdentificationNumber = clonePtr(i.IdentificationNumber)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
