package persistence

import (
	"context"
	"errors"

	"RoomLink/internal/modules/chat/domain/entity"
	"RoomLink/internal/modules/chat/domain/repository"

	"gorm.io/gorm"
)

type roomRepositoryImpl struct {
	db *gorm.DB
}

func NewRoomRepository(db *gorm.DB) repository.RoomRepository {
	return &roomRepositoryImpl{db: db}
}

func (r *roomRepositoryImpl) Create(ctx context.Context, room *entity.Room) error {
	if room == nil {
		return nil
	}
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *roomRepositoryImpl) GetById(ctx context.Context, id int64) (*entity.Room, error) {
	var room entity.Room
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&room).Error
	if err == nil {
		return &room, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

func (r *roomRepositoryImpl) List(ctx context.Context) ([]entity.Room, error) {
	var rooms []entity.Room
	err := r.db.WithContext(ctx).Order("id ASC").Find(&rooms).Error
	return rooms, err
}
