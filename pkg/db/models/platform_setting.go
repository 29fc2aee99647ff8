package models

import "time"

// PlatformSetting is a key/value override for tunable platform knobs,
// consulted ahead of the static config defaults.
type PlatformSetting struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value;not null"`
	UpdatedBy *string   `gorm:"column:updated_by"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default pluralisation.
func (PlatformSetting) TableName() string { return "platform_settings" }
