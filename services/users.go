package services

import (
	"context"
	"strings"
	"time"
	"unicode"

	"gorm.io/gorm"

	"chat-server/models"
	"chat-server/utils"
)

const searchLimit = 10

// Profile is another user as seen by the viewer.
type Profile struct {
	models.User
	CustomName   *string        `json:"customName"`
	IsContact    bool           `json:"isContact"`
	CommonGroups []models.Group `json:"commonGroups"`
}

// UserService answers user lookups.
type UserService struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewUserService(db *gorm.DB, timeout time.Duration) *UserService {
	return &UserService{db: db, timeout: timeout}
}

// Me returns the authenticated user.
func (s *UserService) Me(ctx context.Context, userID uint) (*models.User, error) {
	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, notFoundOr(err, "user")
	}
	return &user, nil
}

// Profile returns userID with the viewer's contact entry and the
// non-private conversations both belong to.
func (s *UserService) Profile(ctx context.Context, viewer, userID uint) (*Profile, error) {
	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		return nil, notFoundOr(err, "user")
	}
	p := &Profile{User: user, CommonGroups: []models.Group{}}

	names, err := customNames(db, viewer, []uint{userID})
	if err != nil {
		return nil, utils.Internal(err, "load contact")
	}
	if name, ok := names[userID]; ok {
		p.CustomName = &name
		p.IsContact = true
	}

	if viewer != userID {
		err = db.Where("is_private = ?", false).
			Where("id IN (?)", db.Model(&models.GroupMember{}).Select("group_id").Where("user_id = ?", viewer)).
			Where("id IN (?)", db.Model(&models.GroupMember{}).Select("group_id").Where("user_id = ?", userID)).
			Order("name").
			Find(&p.CommonGroups).Error
		if err != nil {
			return nil, utils.Internal(err, "load common groups")
		}
	}
	return p, nil
}

// Search finds users whose name or email contains q, excluding viewer.
func (s *UserService) Search(ctx context.Context, viewer uint, q string) ([]models.User, error) {
	q = strings.TrimSpace(q)
	if len([]rune(q)) < 2 {
		return nil, utils.Validation("q", "query must be at least 2 characters")
	}

	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()

	pattern := "%" + escapeLike(strings.ToLower(q)) + "%"
	users := []models.User{}
	err := s.db.WithContext(ctx).
		Where("id <> ?", viewer).
		Where("LOWER(name) LIKE ? ESCAPE '!' OR LOWER(email) LIKE ? ESCAPE '!'", pattern, pattern).
		Order("name").
		Limit(searchLimit).
		Find(&users).Error
	if err != nil {
		return nil, utils.Internal(err, "search users")
	}
	return users, nil
}

// ByPhone finds a user by phone number, ignoring formatting.
func (s *UserService) ByPhone(ctx context.Context, phone string) (*models.User, error) {
	digits := digitsOf(phone)
	if digits == "" {
		return nil, utils.Validation("phone", "phone number is required")
	}

	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()

	var user models.User
	if err := s.db.WithContext(ctx).Where("number = ?", digits).First(&user).Error; err != nil {
		return nil, notFoundOr(err, "user")
	}
	return &user, nil
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
