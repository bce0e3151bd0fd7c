package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aegisframework/aegis/config"
	"github.com/aegisframework/aegis/types"
)

// resourceModel is the relational shape of a resource record. Capabilities
// and documents are stored as JSON text so the schema stays the same across
// postgres, mysql, and sqlite.
type resourceModel struct {
	ID           string `gorm:"primaryKey;size:128"`
	Name         string `gorm:"size:255"`
	Owner        string `gorm:"size:255;index"`
	Capabilities string `gorm:"type:text"`
	Endpoint     string `gorm:"size:1024"`
	APISchema    string `gorm:"type:text"`
	Manifest     string `gorm:"type:text"`
	SuccessCount int64
	FailureCount int64
	AvgLatencyNS int64
	Active       bool `gorm:"index"`
	UsageCount   int64
	RegisteredAt time.Time
	LastTestedAt time.Time
	UpdatedAt    time.Time
}

func (resourceModel) TableName() string { return "resources" }

// GormRegistryStore implements RegistryStore over a SQL database.
type GormRegistryStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// OpenDatabase opens a gorm connection for the configured driver. Pool
// sizing and liveness checks are handled by the caller, normally through
// internal/database.NewPoolManager.
func OpenDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "mysql":
		dialector = mysql.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// NewGormRegistryStore creates the store and migrates its table.
func NewGormRegistryStore(db *gorm.DB, logger *zap.Logger) (*GormRegistryStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&resourceModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate resources table: %w", err)
	}
	return &GormRegistryStore{
		db:     db,
		logger: logger.With(zap.String("component", "gorm_registry_store")),
	}, nil
}

func (s *GormRegistryStore) SaveRecord(ctx context.Context, rec *types.ResourceRecord) error {
	model, err := toModel(rec)
	if err != nil {
		return types.NewError(types.ErrInternal, "failed to encode record").WithCause(err)
	}

	err = s.db.WithContext(ctx).Save(model).Error
	if err != nil {
		return types.NewError(types.ErrInternal, "failed to save record").
			WithCause(err).WithResourceID(rec.ID)
	}
	return nil
}

func (s *GormRegistryStore) LoadRecords(ctx context.Context) ([]*types.ResourceRecord, error) {
	var models []resourceModel
	if err := s.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to load records").WithCause(err)
	}

	out := make([]*types.ResourceRecord, 0, len(models))
	for i := range models {
		rec, err := fromModel(&models[i])
		if err != nil {
			s.logger.Warn("skipping undecodable record",
				zap.String("resource_id", models[i].ID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *GormRegistryStore) DeleteRecord(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Delete(&resourceModel{}, "id = ?", id).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return types.NewError(types.ErrInternal, "failed to delete record").
			WithCause(err).WithResourceID(id)
	}
	return nil
}

func (s *GormRegistryStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toModel(rec *types.ResourceRecord) (*resourceModel, error) {
	caps, err := json.Marshal(rec.Capabilities)
	if err != nil {
		return nil, err
	}
	schema, err := json.Marshal(rec.APISchema)
	if err != nil {
		return nil, err
	}
	manifest, err := json.Marshal(rec.Manifest)
	if err != nil {
		return nil, err
	}
	return &resourceModel{
		ID:           rec.ID,
		Name:         rec.Name,
		Owner:        rec.Owner,
		Capabilities: string(caps),
		Endpoint:     rec.Endpoint,
		APISchema:    string(schema),
		Manifest:     string(manifest),
		SuccessCount: rec.QoS.SuccessCount,
		FailureCount: rec.QoS.FailureCount,
		AvgLatencyNS: int64(rec.QoS.AvgLatency),
		Active:       rec.Active,
		UsageCount:   rec.UsageCount,
		RegisteredAt: rec.RegisteredAt,
		LastTestedAt: rec.LastTestedAt,
	}, nil
}

func fromModel(m *resourceModel) (*types.ResourceRecord, error) {
	var caps []string
	if err := json.Unmarshal([]byte(m.Capabilities), &caps); err != nil {
		return nil, err
	}
	var schema, manifest types.Document
	if m.APISchema != "" {
		if err := json.Unmarshal([]byte(m.APISchema), &schema); err != nil {
			return nil, err
		}
	}
	if m.Manifest != "" {
		if err := json.Unmarshal([]byte(m.Manifest), &manifest); err != nil {
			return nil, err
		}
	}
	return &types.ResourceRecord{
		ID:           m.ID,
		Name:         m.Name,
		Owner:        m.Owner,
		Capabilities: caps,
		Endpoint:     m.Endpoint,
		APISchema:    schema,
		Manifest:     manifest,
		QoS: types.QoSProfile{
			SuccessCount: m.SuccessCount,
			FailureCount: m.FailureCount,
			AvgLatency:   time.Duration(m.AvgLatencyNS),
		},
		Active:       m.Active,
		UsageCount:   m.UsageCount,
		RegisteredAt: m.RegisteredAt,
		LastTestedAt: m.LastTestedAt,
	}, nil
}
