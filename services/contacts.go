package services

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"chat-server/models"
	"chat-server/utils"
)

// ContactService manages each user's address book.
type ContactService struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewContactService(db *gorm.DB, timeout time.Duration) *ContactService {
	return &ContactService{db: db, timeout: timeout}
}

// List returns owner's contacts ordered by custom name.
func (s *ContactService) List(ctx context.Context, owner uint) ([]models.Contact, error) {
	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()

	contacts := []models.Contact{}
	err := s.db.WithContext(ctx).
		Preload("Contact").
		Where("user_id = ?", owner).
		Order("custom_name").
		Find(&contacts).Error
	if err != nil {
		return nil, utils.Internal(err, "load contacts")
	}
	return contacts, nil
}

// Upsert adds target to owner's contacts, or renames an existing entry.
func (s *ContactService) Upsert(ctx context.Context, owner, target uint, customName string) (*models.Contact, error) {
	name := strings.TrimSpace(customName)
	if name == "" {
		return nil, utils.Validation("customName", "customName is required")
	}
	if target == 0 {
		return nil, utils.Validation("contactId", "contactId is required")
	}
	if target == owner {
		return nil, utils.Validation("contactId", "cannot add yourself as a contact")
	}

	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	var user models.User
	if err := db.First(&user, target).Error; err != nil {
		return nil, notFoundOr(err, "user")
	}
	var contact models.Contact
	err := db.Where("user_id = ? AND contact_id = ?", owner, target).Take(&contact).Error
	switch {
	case err == nil:
		if err := db.Model(&contact).Update("custom_name", name).Error; err != nil {
			return nil, utils.Internal(err, "update contact")
		}
		contact.CustomName = name
	case isNotFound(err):
		contact = models.Contact{UserID: owner, ContactID: target, CustomName: name}
		if err := db.Omit("Contact").Create(&contact).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, utils.Conflict("contact already exists")
			}
			return nil, utils.Internal(err, "create contact")
		}
	default:
		return nil, utils.Internal(err, "load contact")
	}
	contact.Contact = user
	return &contact, nil
}

// Rename changes the custom name of an existing contact.
func (s *ContactService) Rename(ctx context.Context, owner, target uint, customName string) (*models.Contact, error) {
	name := strings.TrimSpace(customName)
	if name == "" {
		return nil, utils.Validation("customName", "customName is required")
	}

	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()
	db := s.db.WithContext(ctx)

	var contact models.Contact
	if err := db.Preload("Contact").Where("user_id = ? AND contact_id = ?", owner, target).Take(&contact).Error; err != nil {
		return nil, notFoundOr(err, "contact")
	}
	if err := db.Model(&contact).Update("custom_name", name).Error; err != nil {
		return nil, utils.Internal(err, "update contact")
	}
	contact.CustomName = name
	return &contact, nil
}

// Delete removes target from owner's contacts.
func (s *ContactService) Delete(ctx context.Context, owner, target uint) error {
	ctx, cancel := newContext(ctx, s.timeout)
	defer cancel()

	res := s.db.WithContext(ctx).Where("user_id = ? AND contact_id = ?", owner, target).Delete(&models.Contact{})
	if res.Error != nil {
		return utils.Internal(res.Error, "delete contact")
	}
	if res.RowsAffected == 0 {
		return utils.NotFound("contact not found")
	}
	return nil
}

// customNames maps contact user ids to owner's custom names.
func customNames(db *gorm.DB, owner uint, targets []uint) (map[uint]string, error) {
	out := map[uint]string{}
	if len(targets) == 0 {
		return out, nil
	}
	var rows []models.Contact
	if err := db.Select("contact_id", "custom_name").
		Where("user_id = ? AND contact_id IN ?", owner, targets).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ContactID] = r.CustomName
	}
	return out, nil
}
