// Package authz holds the role and participant predicates of the request
// lifecycle. Everything here is a pure function over identities and requests.
package authz

import (
	"github.com/psds-microservice/agri-support-service/internal/errs"
	"github.com/psds-microservice/agri-support-service/internal/model"
)

func HasRole(id *model.Identity, r model.Role) bool { return id.HasRole(r) }

func IsOverseer(id *model.Identity) bool { return id.HasRole(model.RoleOverseer) }

// IsStaff reports whether id may work requests (AGENT or OVERSEER).
func IsStaff(id *model.Identity) bool {
	return id.HasRole(model.RoleAgent) || id.HasRole(model.RoleOverseer)
}

// CanCreate reports whether id may file requests (REQUESTER or OVERSEER).
func CanCreate(id *model.Identity) bool {
	return id.HasRole(model.RoleRequester) || id.HasRole(model.RoleOverseer)
}

func IsCreator(id *model.Identity, r *model.SupportRequest) bool {
	return id != nil && r.CreatorID == id.ID
}

func IsAssigned(id *model.Identity, r *model.SupportRequest) bool {
	return id != nil && r.IsAssignedTo(id.ID)
}

// IsParticipant is true for the creator, the current agent and overseers.
func IsParticipant(id *model.Identity, r *model.SupportRequest) bool {
	return IsCreator(id, r) || IsAssigned(id, r) || IsOverseer(id)
}

func CanArchive(id *model.Identity, r *model.SupportRequest) bool {
	return IsOverseer(id) || IsAssigned(id, r)
}

// CanSeeAgentIdentification gates the agent's identification number in
// request projections.
func CanSeeAgentIdentification(viewer *model.Identity) bool {
	return IsStaff(viewer)
}

// CheckSend applies the chat gating table for the current status of r.
func CheckSend(id *model.Identity, r *model.SupportRequest) error {
	switch r.Status {
	case model.StatusArchived:
		return errs.InvalidState("chat is archived")
	case model.StatusOpen:
		if IsCreator(id, r) || IsOverseer(id) {
			return nil
		}
		if id.HasRole(model.RoleAgent) {
			return errs.Forbidden("must take the request first")
		}
		return errs.Forbidden("not a participant of this request")
	case model.StatusInProgress:
		if IsParticipant(id, r) {
			return nil
		}
		return errs.Forbidden("not a participant of this request")
	}
	return errs.InvalidState("unknown request status")
}
