package persistence

import (
	"context"
	"errors"

	"RoomLink/internal/modules/user/domain/entity"
	"RoomLink/internal/modules/user/domain/repository"

	"gorm.io/gorm"
)

// userInfoRepositoryImpl 结构体
type userInfoRepositoryImpl struct {
	db *gorm.DB
}

// NewUserInfoRepository 构造函数
func NewUserInfoRepository(db *gorm.DB) repository.UserInfoRepository {
	return &userInfoRepositoryImpl{db: db}
}

func (r *userInfoRepositoryImpl) CreateUserInfo(ctx context.Context, user *entity.UserInfo) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userInfoRepositoryImpl) GetUserInfoById(ctx context.Context, id int64) (*entity.UserInfo, error) {
	var user entity.UserInfo
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if err == nil {
		return &user, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

func (r *userInfoRepositoryImpl) GetUserInfoByUsername(ctx context.Context, username string) (*entity.UserInfo, error) {
	var user entity.UserInfo
	err := r.db.WithContext(ctx).Where("username = ?", username).Take(&user).Error
	if err == nil {
		return &user, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

func (r *userInfoRepositoryImpl) GetBatchUserInfo(ctx context.Context, ids []int64) ([]entity.UserInfo, error) {
	if len(ids) == 0 {
		return []entity.UserInfo{}, nil
	}
	var users []entity.UserInfo
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	return users, err
}
