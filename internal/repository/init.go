package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/outreachloop/followup/config"
	"github.com/outreachloop/followup/interfaces"
	"github.com/outreachloop/followup/internal/models"
)

type Repositories struct {
	ThreadRepository interfaces.ThreadRepository
	ReplyRepository  interfaces.ReplyRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		ThreadRepository: NewThreadRepository(db),
		ReplyRepository:  NewReplyRepository(db),
	}
}

func MigrateDB(dbConfig *config.DatabaseConfig, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	sqlDB.SetMaxOpenConns(5)

	err = db.AutoMigrate(
		&models.Thread{},
		&models.Reply{},
		&models.FollowupSend{},
		&models.StageTransition{},
	)

	sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConn)
	sqlDB.SetMaxOpenConns(dbConfig.MaxConn)
	sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Minute)

	return err
}
