package repository

import (
	"context"

	"RoomLink/internal/modules/chat/domain/entity"
)

type RoomRepository interface {
	Create(ctx context.Context, room *entity.Room) error
	GetById(ctx context.Context, id int64) (*entity.Room, error)
	List(ctx context.Context) ([]entity.Room, error)
}
