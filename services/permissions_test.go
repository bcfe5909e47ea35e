package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"chat-server/models"
	"chat-server/utils"
)

const (
	owner   uint = 1
	adminA  uint = 2
	adminB  uint = 3
	member  uint = 4
	outside uint = 5
)

func groupRoles(isChat, isPrivate bool) Roles {
	return RolesOf(&models.Group{
		OwnerID:   owner,
		IsChat:    isChat,
		IsPrivate: isPrivate,
		Members: []models.GroupMember{
			{UserID: owner}, {UserID: adminA}, {UserID: adminB}, {UserID: member},
		},
		Admins: []models.GroupAdmin{{UserID: adminA}, {UserID: adminB}},
	})
}

func TestRolesOfIncludesOwner(t *testing.T) {
	r := RolesOf(&models.Group{OwnerID: 8})
	assert.True(t, r.IsOwner(8))
	assert.True(t, r.IsAdmin(8))
	assert.True(t, r.IsMember(8))
}

func TestAuthorize(t *testing.T) {
	group := groupRoles(true, false)
	channel := groupRoles(false, false)
	private := RolesOf(&models.Group{
		OwnerID: owner, IsChat: true, IsPrivate: true,
		Members: []models.GroupMember{{UserID: owner}, {UserID: member}},
	})

	tests := []struct {
		name   string
		roles  Roles
		actor  uint
		target uint
		action Action
		want   utils.Kind // empty means allowed
	}{
		{"member posts in group", group, member, 0, ActionPostMessage, ""},
		{"outsider cannot post", group, outside, 0, ActionPostMessage, utils.KindForbidden},
		{"member cannot post in channel", channel, member, 0, ActionPostMessage, utils.KindForbidden},
		{"admin posts in channel", channel, adminA, 0, ActionPostMessage, ""},
		{"owner posts in channel", channel, owner, 0, ActionPostMessage, ""},

		{"admin adds member", group, adminA, outside, ActionAddMember, ""},
		{"member cannot add", group, member, outside, ActionAddMember, utils.KindForbidden},
		{"private chat membership is fixed", private, owner, outside, ActionAddMember, utils.KindValidation},

		{"owner removes admin", group, owner, adminA, ActionRemoveMember, ""},
		{"owner removes member", group, owner, member, ActionRemoveMember, ""},
		{"admin removes member", group, adminA, member, ActionRemoveMember, ""},
		{"admin removes another admin", group, adminA, adminB, ActionRemoveMember, utils.KindForbidden},
		{"admin removes self", group, adminA, adminA, ActionRemoveMember, ""},
		{"admin removes owner", group, adminA, owner, ActionRemoveMember, utils.KindForbidden},
		{"owner removes self", group, owner, owner, ActionRemoveMember, utils.KindForbidden},
		{"member cannot remove", group, member, adminA, ActionRemoveMember, utils.KindForbidden},
		{"private chat removal", private, owner, member, ActionRemoveMember, utils.KindValidation},

		{"owner promotes", group, owner, member, ActionPromoteAdmin, ""},
		{"admin cannot promote", group, adminA, member, ActionPromoteAdmin, utils.KindForbidden},
		{"private chat has no admins", private, owner, member, ActionPromoteAdmin, utils.KindValidation},

		{"owner demotes admin", group, owner, adminA, ActionDemoteAdmin, ""},
		{"admin cannot demote", group, adminA, adminB, ActionDemoteAdmin, utils.KindForbidden},
		{"owner cannot be demoted", group, owner, owner, ActionDemoteAdmin, utils.KindValidation},

		{"admin edits", group, adminB, 0, ActionEditMetadata, ""},
		{"member cannot edit", group, member, 0, ActionEditMetadata, utils.KindForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.roles, tt.actor, tt.target, tt.action)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.want, utils.KindOf(err), "error: %v", err)
		})
	}
}

func TestAuthorizeUnknownAction(t *testing.T) {
	err := Authorize(groupRoles(true, false), owner, 0, Action(99))
	assert.Equal(t, utils.KindForbidden, utils.KindOf(err))
}
