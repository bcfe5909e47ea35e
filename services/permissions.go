package services

import (
	"chat-server/models"
	"chat-server/utils"
)

// Action is a mutating operation on a conversation.
type Action int

const (
	ActionAddMember Action = iota
	ActionRemoveMember
	ActionPromoteAdmin
	ActionDemoteAdmin
	ActionEditMetadata
	ActionPostMessage
)

func (a Action) String() string {
	switch a {
	case ActionAddMember:
		return "add member"
	case ActionRemoveMember:
		return "remove member"
	case ActionPromoteAdmin:
		return "promote admin"
	case ActionDemoteAdmin:
		return "demote admin"
	case ActionEditMetadata:
		return "edit conversation"
	case ActionPostMessage:
		return "post message"
	}
	return "unknown"
}

// Roles is the membership snapshot of one conversation.
type Roles struct {
	OwnerID   uint
	IsChat    bool
	IsPrivate bool
	Admins    map[uint]bool
	Members   map[uint]bool
}

// RolesOf builds a snapshot from a group loaded with Members and Admins.
func RolesOf(g *models.Group) Roles {
	r := Roles{
		OwnerID:   g.OwnerID,
		IsChat:    g.IsChat,
		IsPrivate: g.IsPrivate,
		Admins:    make(map[uint]bool, len(g.Admins)+1),
		Members:   make(map[uint]bool, len(g.Members)+1),
	}
	for _, m := range g.Members {
		r.Members[m.UserID] = true
	}
	for _, a := range g.Admins {
		r.Admins[a.UserID] = true
	}
	// owner ∈ admins ∈ members
	r.Admins[g.OwnerID] = true
	r.Members[g.OwnerID] = true
	return r
}

func (r Roles) IsOwner(id uint) bool  { return id == r.OwnerID }
func (r Roles) IsAdmin(id uint) bool  { return r.Admins[id] }
func (r Roles) IsMember(id uint) bool { return r.Members[id] }

// Authorize decides whether actor may perform action on target. It has no
// side effects and returns nil, a Forbidden or a Validation error.
func Authorize(r Roles, actor, target uint, action Action) error {
	switch action {
	case ActionPostMessage:
		if !r.IsMember(actor) {
			return utils.Forbidden("you are not a member of this conversation")
		}
		if !r.IsChat && !r.IsAdmin(actor) {
			return utils.Forbidden("only admins can post in a channel")
		}
		return nil

	case ActionAddMember:
		if !r.IsAdmin(actor) {
			return utils.Forbidden("only the owner or an admin can add members")
		}
		if r.IsPrivate {
			return utils.Validation("userId", "private chat membership cannot change")
		}
		return nil

	case ActionRemoveMember:
		if !r.IsAdmin(actor) {
			return utils.Forbidden("only the owner or an admin can remove members")
		}
		if r.IsOwner(target) {
			return utils.Forbidden("the owner cannot be removed")
		}
		if !r.IsOwner(actor) && r.IsAdmin(target) && target != actor {
			return utils.Forbidden("an admin cannot remove another admin")
		}
		if r.IsPrivate {
			return utils.Validation("userId", "private chat membership cannot change")
		}
		return nil

	case ActionPromoteAdmin:
		if !r.IsOwner(actor) {
			return utils.Forbidden("only the owner can promote admins")
		}
		if r.IsPrivate {
			return utils.Validation("userId", "private chats have no admins")
		}
		return nil

	case ActionDemoteAdmin:
		if !r.IsOwner(actor) {
			return utils.Forbidden("only the owner can demote admins")
		}
		if r.IsOwner(target) {
			return utils.Validation("userId", "the owner cannot be demoted")
		}
		return nil

	case ActionEditMetadata:
		if !r.IsAdmin(actor) {
			return utils.Forbidden("only the owner or an admin can edit this conversation")
		}
		return nil
	}
	return utils.Forbidden(action.String() + " is not allowed")
}
