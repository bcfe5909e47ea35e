package models

import "gorm.io/gorm"

// Migrate creates or updates every table.
// Order matters: referenced tables first.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Group{},
		&GroupMember{},
		&GroupAdmin{},
		&Message{},
		&Attachment{},
		&MessageRead{},
		&Call{},
		&Contact{},
	)
}
