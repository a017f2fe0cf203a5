package services

import (
	"context"
	"strings"

	"chat-core/internal/apperr"
	"chat-core/internal/models"
)

// Action names a capability checked before a mutation or read.
type Action string

const (
	ActionViewRoom       Action = "room:view"
	ActionManageRoom     Action = "room:manage"
	ActionRestoreRoom    Action = "room:restore"
	ActionSendMessage    Action = "message:send"
	ActionAuthorMessage  Action = "message:author"
	ActionRestoreMessage Action = "message:restore"
	ActionListDeleted    Action = "message:list_deleted"
)

// Resource is the object an action targets. Only the fields the action
// needs are set.
type Resource struct {
	Room    *models.Room
	Message *models.Message
}

// Authorizer returns nil to allow and a Forbidden error to deny.
type Authorizer interface {
	Authorize(ctx context.Context, actor models.CurrentUser, action Action, res Resource) error
}

// DefaultPrivilegedRoles may restore rooms and messages.
var DefaultPrivilegedRoles = []string{"CEO", "ADMIN"}

// RolePolicy checks membership, ownership and authorship against the
// resource, and privileged actions against the actor's role.
type RolePolicy struct {
	privileged map[string]struct{}
}

// NewRolePolicy builds a policy; an empty roles list selects DefaultPrivilegedRoles.
func NewRolePolicy(roles []string) *RolePolicy {
	if len(roles) == 0 {
		roles = DefaultPrivilegedRoles
	}
	p := &RolePolicy{privileged: make(map[string]struct{}, len(roles))}
	for _, role := range roles {
		if role = strings.ToUpper(strings.TrimSpace(role)); role != "" {
			p.privileged[role] = struct{}{}
		}
	}
	return p
}

// IsPrivilegedRole reports whether the actor's role is elevated.
func (p *RolePolicy) IsPrivilegedRole(actor models.CurrentUser) bool {
	_, ok := p.privileged[strings.ToUpper(actor.Role)]
	return ok
}

func (p *RolePolicy) Authorize(_ context.Context, actor models.CurrentUser, action Action, res Resource) error {
	switch action {
	case ActionViewRoom, ActionSendMessage:
		if res.Room == nil || !res.Room.HasParticipant(actor.ID) {
			return apperr.Forbidden("you are not a participant of this room")
		}
	case ActionManageRoom:
		if res.Room == nil || res.Room.OwnerID != actor.ID {
			return apperr.Forbidden("only the room owner can perform this action")
		}
	case ActionAuthorMessage:
		if res.Message == nil || res.Message.SenderID != actor.ID {
			return apperr.Forbidden("only the sender can modify this message")
		}
	case ActionRestoreRoom, ActionRestoreMessage, ActionListDeleted:
		if !p.IsPrivilegedRole(actor) {
			return apperr.Forbidden("insufficient role for this action")
		}
	default:
		return apperr.Forbidden("unknown action")
	}
	return nil
}
