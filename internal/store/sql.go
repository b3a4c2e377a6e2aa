package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/gmsas95/medicamenta/internal/medication"
)

// SQLStore persists medications through gorm
type SQLStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// OpenSQLite opens the pure Go SQLite database at path with WAL enabled.
func OpenSQLite(path string) (*gorm.DB, error) {
	sqliteDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	sqliteDB.SetMaxOpenConns(10)
	sqliteDB.SetMaxIdleConns(5)
	sqliteDB.SetConnMaxLifetime(time.Hour)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqliteDB}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	return db, nil
}

// NewSQLStore migrates the schema on db and returns the store.
func NewSQLStore(db *gorm.DB, logger *zap.Logger) (*SQLStore, error) {
	if err := db.AutoMigrate(&MedicationRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate medications: %w", err)
	}
	return &SQLStore{db: db, logger: logger}, nil
}

func (s *SQLStore) FindByID(ctx context.Context, id, ownerID string) (*medication.Medication, error) {
	var rec MedicationRecord
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, ownerID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load medication %s: %w", id, err)
	}
	return rec.toMedication()
}

func (s *SQLStore) FindByUserID(ctx context.Context, ownerID string, includeArchived bool) ([]*medication.Medication, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", ownerID)
	if !includeArchived {
		query = query.Where("is_archived = ?", false)
	}

	var recs []MedicationRecord
	if err := query.Order("created_at ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list medications: %w", err)
	}
	return s.toMedications(recs), nil
}

// Save upserts the medication keyed by (id, user id).
func (s *SQLStore) Save(ctx context.Context, m *medication.Medication) (*medication.Medication, error) {
	rec, err := recordFromPlain(m.ToPlain())
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(rec).Error
	if err != nil {
		return nil, fmt.Errorf("failed to save medication %s: %w", m.ID(), err)
	}
	return m, nil
}

func (s *SQLStore) Delete(ctx context.Context, id, ownerID string) error {
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, ownerID).Delete(&MedicationRecord{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete medication %s: %w", id, err)
	}
	return nil
}

func (s *SQLStore) FindLowStock(ctx context.Context, ownerID string, threshold int) ([]*medication.Medication, error) {
	var recs []MedicationRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_archived = ? AND current_stock <= ?", ownerID, false, threshold).
		Order("current_stock ASC, id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query low stock: %w", err)
	}
	return s.toMedications(recs), nil
}

func (s *SQLStore) Exists(ctx context.Context, id, ownerID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&MedicationRecord{}).
		Where("id = ? AND user_id = ?", id, ownerID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check medication %s: %w", id, err)
	}
	return count > 0, nil
}

// Owners lists every user id with at least one stored medication.
func (s *SQLStore) Owners(ctx context.Context) ([]string, error) {
	var owners []string
	err := s.db.WithContext(ctx).Model(&MedicationRecord{}).
		Distinct("user_id").
		Order("user_id").
		Pluck("user_id", &owners).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	return owners, nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// toMedications restores rows, skipping (and logging) any that no longer satisfy the invariants.
func (s *SQLStore) toMedications(recs []MedicationRecord) []*medication.Medication {
	out := make([]*medication.Medication, 0, len(recs))
	for i := range recs {
		m, err := recs[i].toMedication()
		if err != nil {
			s.logger.Warn("Skipping unreadable medication",
				zap.String("medication_id", recs[i].ID),
				zap.String("user_id", recs[i].UserID),
				zap.Error(err))
			continue
		}
		out = append(out, m)
	}
	return out
}
