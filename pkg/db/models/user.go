package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
)

// User is a platform account: buyer, farmer, or admin.
type User struct {
	ID                    uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Email                 string         `gorm:"column:email;not null;uniqueIndex"`
	PhoneNumber           string         `gorm:"column:phone_number;not null"`
	FullName              string         `gorm:"column:full_name;not null"`
	Role                  enums.UserRole `gorm:"column:role;type:text;not null"`
	Region                *string        `gorm:"column:region"`
	BankCode              *string        `gorm:"column:bank_code"`
	BankAccountNumber     *string        `gorm:"column:bank_account_number"`
	BankAccountName       *string        `gorm:"column:bank_account_name"`
	PayoutRecipientCode   *string        `gorm:"column:payout_recipient_code"`
	SMSNotificationsOptIn bool           `gorm:"column:sms_notifications_opt_in;not null;default:true"`
	CreatedAt             time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default pluralisation.
func (User) TableName() string { return "users" }
