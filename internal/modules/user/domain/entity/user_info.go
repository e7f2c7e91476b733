package entity

import (
	"time"
)

// UserInfo 用户基础信息
type UserInfo struct {
	Id        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Username  string    `gorm:"column:username;type:varchar(32);not null;uniqueIndex:uniq_user_username"`
	Nickname  string    `gorm:"column:nickname;type:varchar(64)"`
	Language  string    `gorm:"column:language;type:varchar(10);not null;default:'en'"`
	Status    int8      `gorm:"column:status;type:tinyint;not null;default:1"`
	CreatedAt time.Time `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:datetime;not null"`
}

func (UserInfo) TableName() string { return "user_info" }
