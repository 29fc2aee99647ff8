package settings

import (
	"context"

	"gorm.io/gorm"

	"github.com/kwabenaosei/agritrade-backend/pkg/db/models"
)

// Repository defines persistence operations for platform settings.
type Repository interface {
	Find(ctx context.Context, key string) (*models.PlatformSetting, error)
	Upsert(ctx context.Context, setting *models.PlatformSetting) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a settings repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Find(ctx context.Context, key string) (*models.PlatformSetting, error) {
	var setting models.PlatformSetting
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

func (r *repository) Upsert(ctx context.Context, setting *models.PlatformSetting) error {
	return r.db.WithContext(ctx).Save(setting).Error
}
