package registry

import (
	"context"
	"errors"

	"github.com/openbusio/backplane/model"
	"gorm.io/gorm"
)

type OwnerRepository interface {
	GetByUsername(ctx context.Context, username string) (*model.BusOwner, error)
	Create(ctx context.Context, owner *model.BusOwner) error
}

type ownerRepository struct {
	db *gorm.DB
}

func NewOwnerRepository(db *gorm.DB) OwnerRepository {
	return &ownerRepository{db: db}
}

func (r *ownerRepository) GetByUsername(ctx context.Context, username string) (*model.BusOwner, error) {
	var owner model.BusOwner
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&owner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOwnerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &owner, nil
}

func (r *ownerRepository) Create(ctx context.Context, owner *model.BusOwner) error {
	err := r.db.WithContext(ctx).Create(owner).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyExists
	}
	return err
}
