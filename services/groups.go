package services

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"chat-server/models"
	"chat-server/utils"
)

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,32}$`)

// CreateGroupInput describes a new group or channel.
type CreateGroupInput struct {
	Name      string  `json:"name" binding:"required"`
	Username  *string `json:"username"`
	AvatarURL string  `json:"avatarUrl"`
	IsChat    *bool   `json:"isChat"`
	AdminIDs  []uint  `json:"adminIds"`
	MemberIDs []uint  `json:"memberIds"`
}

// UpdateGroupInput changes conversation metadata. Nil fields are left as is.
type UpdateGroupInput struct {
	Name      *string `json:"name"`
	Username  *string `json:"username"`
	AvatarURL *string `json:"avatarUrl"`
}

// GroupService manages conversations and their membership.
type GroupService struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewGroupService(db *gorm.DB, timeout time.Duration) *GroupService {
	return &GroupService{db: db, timeout: timeout}
}

// loadGroup fetches a conversation with its members and admins.
func loadGroup(db *gorm.DB, groupID uint) (*models.Group, error) {
	var g models.Group
	err := db.Preload("Members").Preload("Admins").First(&g, groupID).Error
	if err != nil {
		return nil, notFoundOr(err, "conversation")
	}
	return &g, nil
}

// normalizeHandle returns nil for an empty handle.
func normalizeHandle(h *string) (*string, error) {
	if h == nil {
		return nil, nil
	}
	v := strings.TrimPrefix(strings.TrimSpace(*h), "@")
	if v == "" {
		return nil, nil
	}
	if !handlePattern.MatchString(v) {
		return nil, utils.Validation("username", "username must be 3-32 letters, digits or underscores")
	}
	return &v, nil
}

func (s *GroupService) handleTaken(db *gorm.DB, handle string, exceptID uint) (bool, error) {
	var n int64
	q := db.Model(&models.Group{}).Where("username = ?", handle)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, utils.Internal(err, "check username")
	}
	return n > 0, nil
}

func usersExist(db *gorm.DB, ids []uint) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}
	var n int64
	if err := db.Model(&models.User{}).Where("id IN ?", ids).Count(&n).Error; err != nil {
		return false, utils.Internal(err, "load users")
	}
	return n == int64(len(ids)), nil
}

func uniqueIDs(groups ...[]uint) []uint {
	seen := map[uint]bool{}
	var out []uint
	for _, ids := range groups {
		for _, id := range ids {
			if id != 0 && !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// Create makes a group (or a channel when IsChat is false) owned by owner.
// Admins are always members; the owner is both.
func (s *GroupService) Create(ctx context.Context, owner uint, in CreateGroupInput) (*models.Group, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, utils.Validation("name", "name is required")
	}
	handle, err := normalizeHandle(in.Username)
	if err != nil {
		return nil, err
	}

	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	if handle != nil {
		taken, err := s.handleTaken(db, *handle, 0)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, utils.Conflict("username is already taken")
		}
	}

	admins := uniqueIDs([]uint{owner}, in.AdminIDs)
	members := uniqueIDs(admins, in.MemberIDs)
	ok, err := usersExist(db, members)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, utils.Validation("memberIds", "unknown user in members or admins")
	}

	isChat := true
	if in.IsChat != nil {
		isChat = *in.IsChat
	}
	group := models.Group{
		Name:      name,
		Username:  handle,
		AvatarURL: in.AvatarURL,
		OwnerID:   owner,
		IsChat:    isChat,
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		return createGroupRows(tx, &group, members, admins)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"group_id": group.ID, "owner_id": owner, "members": len(members)}).Info("group created")
	return s.get(db, group.ID)
}

func createGroupRows(tx *gorm.DB, group *models.Group, members, admins []uint) error {
	if err := tx.Omit("Owner", "Members", "Admins").Create(group).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return utils.Conflict("username is already taken")
		}
		return utils.Internal(err, "create group")
	}
	rows := make([]models.GroupMember, 0, len(members))
	for _, id := range members {
		rows = append(rows, models.GroupMember{GroupID: group.ID, UserID: id})
	}
	if err := tx.Omit("User").Create(&rows).Error; err != nil {
		return utils.Internal(err, "create members")
	}
	adminRows := make([]models.GroupAdmin, 0, len(admins))
	for _, id := range admins {
		adminRows = append(adminRows, models.GroupAdmin{GroupID: group.ID, UserID: id})
	}
	if err := tx.Omit("User").Create(&adminRows).Error; err != nil {
		return utils.Internal(err, "create admins")
	}
	return nil
}

// CreatePrivate returns the private chat between actor and participant,
// creating it when none exists. created reports whether it is new.
func (s *GroupService) CreatePrivate(ctx context.Context, actor, participant uint) (*models.Group, bool, error) {
	if participant == 0 {
		return nil, false, utils.Validation("participantId", "participantId is required")
	}
	if participant == actor {
		return nil, false, utils.Validation("participantId", "cannot start a private chat with yourself")
	}

	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	var other models.User
	if err := db.First(&other, participant).Error; err != nil {
		return nil, false, notFoundOr(err, "user")
	}

	var existing models.Group
	err := db.Where("is_private = ?", true).
		Where("id IN (?)", db.Model(&models.GroupMember{}).Select("group_id").Where("user_id = ?", actor)).
		Where("id IN (?)", db.Model(&models.GroupMember{}).Select("group_id").Where("user_id = ?", participant)).
		Order("id").
		Take(&existing).Error
	if err == nil {
		g, err := s.get(db, existing.ID)
		return g, false, err
	}
	if !isNotFound(err) {
		return nil, false, utils.Internal(err, "find private chat")
	}

	group := models.Group{
		Name:      "Chat with " + other.Name,
		OwnerID:   actor,
		IsChat:    true,
		IsPrivate: true,
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		return createGroupRows(tx, &group, []uint{actor, participant}, []uint{actor})
	})
	if err != nil {
		return nil, false, err
	}
	log.WithFields(log.Fields{"group_id": group.ID, "user_id": actor, "participant_id": participant}).Info("private chat created")

	g, err := s.get(db, group.ID)
	return g, true, err
}

// AddMember adds userID to the conversation on behalf of actor.
func (s *GroupService) AddMember(ctx context.Context, groupID, actor, userID uint) (*models.GroupMember, error) {
	if userID == 0 {
		return nil, utils.Validation("userId", "userId is required")
	}
	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	group, err := loadGroup(db, groupID)
	if err != nil {
		return nil, err
	}
	roles := RolesOf(group)
	if err := Authorize(roles, actor, userID, ActionAddMember); err != nil {
		return nil, err
	}
	if roles.IsMember(userID) {
		return nil, utils.Conflict("user is already a member")
	}
	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		return nil, notFoundOr(err, "user")
	}

	member := models.GroupMember{GroupID: groupID, UserID: userID}
	if err := db.Omit("User").Create(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, utils.Conflict("user is already a member")
		}
		return nil, utils.Internal(err, "add member")
	}
	member.User = user
	return &member, nil
}

// RemoveMember removes target (and any admin role it holds).
func (s *GroupService) RemoveMember(ctx context.Context, groupID, actor, target uint) error {
	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	group, err := loadGroup(db, groupID)
	if err != nil {
		return err
	}
	roles := RolesOf(group)
	if !roles.IsMember(target) {
		return utils.NotFound("member not found")
	}
	if err := Authorize(roles, actor, target, ActionRemoveMember); err != nil {
		return err
	}
	return s.dropMember(db, groupID, target)
}

func (s *GroupService) dropMember(db *gorm.DB, groupID, userID uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&models.GroupAdmin{}).Error; err != nil {
			return utils.Internal(err, "remove admin")
		}
		if err := tx.Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&models.GroupMember{}).Error; err != nil {
			return utils.Internal(err, "remove member")
		}
		return nil
	})
}

// PromoteAdmin makes target an admin, adding it as a member when needed.
func (s *GroupService) PromoteAdmin(ctx context.Context, groupID, actor, target uint) error {
	if target == 0 {
		return utils.Validation("userId", "userId is required")
	}
	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	group, err := loadGroup(db, groupID)
	if err != nil {
		return err
	}
	roles := RolesOf(group)
	if err := Authorize(roles, actor, target, ActionPromoteAdmin); err != nil {
		return err
	}
	if roles.IsAdmin(target) {
		return utils.Conflict("user is already an admin")
	}
	ok, err := usersExist(db, []uint{target})
	if err != nil {
		return err
	}
	if !ok {
		return utils.NotFound("user not found")
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if !roles.IsMember(target) {
			if err := tx.Omit("User").Create(&models.GroupMember{GroupID: groupID, UserID: target}).Error; err != nil {
				return utils.Internal(err, "add member")
			}
		}
		if err := tx.Omit("User").Create(&models.GroupAdmin{GroupID: groupID, UserID: target}).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return utils.Conflict("user is already an admin")
			}
			return utils.Internal(err, "add admin")
		}
		return nil
	})
}

// DemoteAdmin revokes target's admin role. Membership is kept.
func (s *GroupService) DemoteAdmin(ctx context.Context, groupID, actor, target uint) error {
	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	group, err := loadGroup(db, groupID)
	if err != nil {
		return err
	}
	roles := RolesOf(group)
	if err := Authorize(roles, actor, target, ActionDemoteAdmin); err != nil {
		return err
	}
	if !roles.IsAdmin(target) {
		return utils.NotFound("admin not found")
	}
	if err := db.Where("group_id = ? AND user_id = ?", groupID, target).Delete(&models.GroupAdmin{}).Error; err != nil {
		return utils.Internal(err, "remove admin")
	}
	return nil
}

// Update edits name, handle or avatar.
func (s *GroupService) Update(ctx context.Context, groupID, actor uint, in UpdateGroupInput) (*models.Group, error) {
	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	group, err := loadGroup(db, groupID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(RolesOf(group), actor, 0, ActionEditMetadata); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, utils.Validation("name", "name cannot be empty")
		}
		updates["name"] = name
	}
	if in.Username != nil {
		handle, err := normalizeHandle(in.Username)
		if err != nil {
			return nil, err
		}
		if handle != nil {
			taken, err := s.handleTaken(db, *handle, groupID)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, utils.Conflict("username is already taken")
			}
			updates["username"] = *handle
		} else {
			updates["username"] = nil
		}
	}
	if in.AvatarURL != nil {
		updates["avatar_url"] = strings.TrimSpace(*in.AvatarURL)
	}
	if len(updates) > 0 {
		if err := db.Model(&models.Group{}).Where("id = ?", groupID).Updates(updates).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, utils.Conflict("username is already taken")
			}
			return nil, utils.Internal(err, "update group")
		}
	}
	return s.get(db, groupID)
}

// Leave removes actor from the conversation. The owner cannot leave.
func (s *GroupService) Leave(ctx context.Context, groupID, actor uint) error {
	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	group, err := loadGroup(db, groupID)
	if err != nil {
		return err
	}
	roles := RolesOf(group)
	if !roles.IsMember(actor) {
		return utils.Forbidden("you are not a member of this conversation")
	}
	if roles.IsOwner(actor) {
		return utils.Validation("groupId", "the owner cannot leave the conversation")
	}
	if roles.IsPrivate {
		return utils.Validation("groupId", "private chats cannot be left")
	}
	return s.dropMember(db, groupID, actor)
}

// get loads a conversation with owner, members and admins for responses.
func (s *GroupService) get(db *gorm.DB, groupID uint) (*models.Group, error) {
	var g models.Group
	err := db.Preload("Owner").
		Preload("Members", func(tx *gorm.DB) *gorm.DB { return tx.Order("joined_at, user_id") }).
		Preload("Members.User").
		Preload("Admins").
		Preload("Admins.User").
		First(&g, groupID).Error
	if err != nil {
		return nil, notFoundOr(err, "conversation")
	}
	return &g, nil
}
