package store

import (
	"context"
	"errors"

	"HibiscusGuard/internal/models"
	guarderr "HibiscusGuard/pkg/errors"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormStore 持久化主存储
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 按驱动打开数据库并迁移表结构
func NewGormStore(driver, dsn string) (*GormStore, error) {
	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}
	db, err := openDatabase(cfg, driver, dsn)
	if err != nil {
		return nil, guarderr.WrapCode(err, guarderr.CodeStorageFailed, "open database")
	}
	if err := db.AutoMigrate(
		&models.Alert{},
		&models.AlertAction{},
		&models.EmergencyContact{},
		&models.NotifyRecord{},
	); err != nil {
		return nil, guarderr.WrapCode(err, guarderr.CodeStorageFailed, "migrate schema")
	}
	return &GormStore{db: db}, nil
}

func openDatabase(cfg *gorm.Config, driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "mysql":
		return gorm.Open(mysql.Open(dsn), cfg)
	case "pg", "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	}
	if dsn == "" {
		dsn = "file::memory:"
	}
	return gorm.Open(sqlite.Open(dsn), cfg)
}

func (g *GormStore) CreateAlert(ctx context.Context, alert *models.Alert) error {
	return g.db.WithContext(ctx).Create(alert).Error
}

func (g *GormStore) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	var alert models.Alert
	err := g.db.WithContext(ctx).First(&alert, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func (g *GormStore) UpdateAlert(ctx context.Context, alert *models.Alert) error {
	return g.db.WithContext(ctx).Save(alert).Error
}

func (g *GormStore) ListAlerts(ctx context.Context, ownerID string, includeResolved bool) ([]models.Alert, error) {
	q := g.db.WithContext(ctx).Order("created_at desc")
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	if !includeResolved {
		q = q.Where("resolved = ?", false)
	}
	var alerts []models.Alert
	if err := q.Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

func (g *GormStore) SaveContact(ctx context.Context, contact *models.EmergencyContact) error {
	return g.db.WithContext(ctx).Save(contact).Error
}

func (g *GormStore) ListActiveContacts(ctx context.Context, ownerID string) ([]models.EmergencyContact, error) {
	var contacts []models.EmergencyContact
	err := g.db.WithContext(ctx).
		Where("owner_id = ? AND active = ?", ownerID, true).
		Find(&contacts).Error
	if err != nil {
		return nil, err
	}
	return contacts, nil
}

func (g *GormStore) SaveNotifyRecord(ctx context.Context, rec *models.NotifyRecord) error {
	return g.db.WithContext(ctx).Create(rec).Error
}

func (g *GormStore) SaveAction(ctx context.Context, action *models.AlertAction) error {
	return g.db.WithContext(ctx).Create(action).Error
}

func (g *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (g *GormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
