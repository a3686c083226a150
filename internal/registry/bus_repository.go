package registry

import (
	"context"
	"errors"

	"github.com/openbusio/backplane/model"
	"gorm.io/gorm"
)

type BusRepository interface {
	Get(ctx context.Context, name string) (*model.BusConfig, error)
	ListByOwner(ctx context.Context, owner string) ([]model.BusConfig, error)
	Create(ctx context.Context, bus *model.BusConfig) error
	Delete(ctx context.Context, name string) error
}

type busRepository struct {
	db *gorm.DB
}

func NewBusRepository(db *gorm.DB) BusRepository {
	return &busRepository{db: db}
}

func (r *busRepository) Get(ctx context.Context, name string) (*model.BusConfig, error) {
	var bus model.BusConfig
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&bus).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBusNotFound
	}
	if err != nil {
		return nil, err
	}
	return &bus, nil
}

func (r *busRepository) ListByOwner(ctx context.Context, owner string) ([]model.BusConfig, error) {
	var buses []model.BusConfig
	err := r.db.WithContext(ctx).Where("owner = ?", owner).Find(&buses).Error
	return buses, err
}

func (r *busRepository) Create(ctx context.Context, bus *model.BusConfig) error {
	if err := bus.Validate(); err != nil {
		return err
	}
	err := r.db.WithContext(ctx).Create(bus).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyExists
	}
	return err
}

func (r *busRepository) Delete(ctx context.Context, name string) error {
	return r.db.WithContext(ctx).Where("name = ?", name).Delete(&model.BusConfig{}).Error
}
