package repository

import (
	"context"

	"RoomLink/internal/modules/user/domain/entity"
)

// UserInfoRepository 接口定义
type UserInfoRepository interface {
	CreateUserInfo(ctx context.Context, user *entity.UserInfo) error
	GetUserInfoById(ctx context.Context, id int64) (*entity.UserInfo, error)
	GetUserInfoByUsername(ctx context.Context, username string) (*entity.UserInfo, error)
	GetBatchUserInfo(ctx context.Context, ids []int64) ([]entity.UserInfo, error)
}
