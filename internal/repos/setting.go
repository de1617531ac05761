package repos

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/pagenode-backend/internal/logger"
	"github.com/yungbote/pagenode-backend/internal/types"
)

type SettingRepo interface {
	Get(ctx context.Context, tx *gorm.DB, key string) (string, error)
	Set(ctx context.Context, tx *gorm.DB, key, value string) error
	All(ctx context.Context, tx *gorm.DB) (map[string]string, error)
}

type settingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSettingRepo(db *gorm.DB, baseLog *logger.Logger) SettingRepo {
	return &settingRepo{db: db, log: baseLog.With("repo", "SettingRepo")}
}

func (r *settingRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *settingRepo) Get(ctx context.Context, tx *gorm.DB, key string) (string, error) {
	var row types.Setting
	err := r.conn(tx).WithContext(ctx).Where("key = ?", key).Limit(1).Find(&row).Error
	if err != nil {
		return "", err
	}
	return row.Value, nil
}

func (r *settingRepo) Set(ctx context.Context, tx *gorm.DB, key, value string) error {
	row := &types.Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(row).Error
}

func (r *settingRepo) All(ctx context.Context, tx *gorm.DB) (map[string]string, error) {
	var rows []types.Setting
	if err := r.conn(tx).WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}
