package initial

import (
	"fmt"
	"log"
	"os"
	"time"

	"RoomLink/internal/config"
	aiEntity "RoomLink/internal/modules/ai/domain/entity"
	chatEntity "RoomLink/internal/modules/chat/domain/entity"
	userEntity "RoomLink/internal/modules/user/domain/entity"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitGorm 建立 MySQL 连接并迁移全部表结构
func InitGorm(conf *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		conf.MysqlConfig.User,
		conf.MysqlConfig.Password,
		conf.MysqlConfig.Host,
		conf.MysqlConfig.Port,
		conf.MysqlConfig.DatabaseName,
	)
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	// 自动迁移，如果没有建表，会自动创建对应的表
	err = db.AutoMigrate(
		&userEntity.UserInfo{},

		&chatEntity.Room{},
		&chatEntity.Conversation{},
		&chatEntity.ConversationParticipant{},
		&chatEntity.Message{},
		&chatEntity.MessageTranslation{},

		&aiEntity.AIEntity{},
		&aiEntity.AIMemory{},
		&aiEntity.AICooldown{},
		&aiEntity.AIResponseJob{},
	)
	if err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return db, nil
}
