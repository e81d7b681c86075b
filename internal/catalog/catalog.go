package catalog

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/exec-trace/pkg/errors"
)

// Catalog is the saved-trace registry.
type Catalog interface {
	// Register adds e, or replaces the entry with the same name.
	Register(ctx context.Context, e *Entry) error
	// Get returns the entry named name.
	Get(ctx context.Context, name string) (*Entry, error)
	// List returns every entry ordered by name.
	List(ctx context.Context) ([]*Entry, error)
	// Delete removes the entry named name.
	Delete(ctx context.Context, name string) error
	Close() error
}

// GormCatalog implements Catalog using GORM.
type GormCatalog struct {
	db *gorm.DB
}

// NewGormCatalog creates a catalog over db. The table must exist; see
// Migrate.
func NewGormCatalog(db *gorm.DB) *GormCatalog {
	return &GormCatalog{db: db}
}

// Migrate creates or updates the catalog table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&TraceRecord{}); err != nil {
		return apperrors.Wrap(apperrors.CodeCatalogError, "failed to migrate catalog", err)
	}
	return nil
}

// Register implements Catalog.
func (c *GormCatalog) Register(ctx context.Context, e *Entry) error {
	if e == nil || e.Name == "" {
		return apperrors.New(apperrors.CodeInvalidInput, "catalog entry needs a name")
	}
	rec := FromEntry(e)
	err := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"dir", "events", "threads", "objects", "classes",
				"compression", "persisted", "recorded_at", "update_time",
			}),
		}).
		Create(rec).Error
	if err != nil {
		return apperrors.Wrap(apperrors.CodeCatalogError, fmt.Sprintf("failed to register trace %q", e.Name), err)
	}
	return nil
}

// Get implements Catalog.
func (c *GormCatalog) Get(ctx context.Context, name string) (*Entry, error) {
	var rec TraceRecord
	err := c.db.WithContext(ctx).Where("name = ?", name).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "trace not found: %s", name)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeCatalogError, "failed to query trace", err)
	}
	return rec.ToEntry(), nil
}

// List implements Catalog.
func (c *GormCatalog) List(ctx context.Context) ([]*Entry, error) {
	var recs []TraceRecord
	if err := c.db.WithContext(ctx).Order("name").Find(&recs).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeCatalogError, "failed to list traces", err)
	}
	out := make([]*Entry, len(recs))
	for i := range recs {
		out[i] = recs[i].ToEntry()
	}
	return out, nil
}

// Delete implements Catalog.
func (c *GormCatalog) Delete(ctx context.Context, name string) error {
	res := c.db.WithContext(ctx).Where("name = ?", name).Delete(&TraceRecord{})
	if res.Error != nil {
		return apperrors.Wrap(apperrors.CodeCatalogError, "failed to delete trace", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.Newf(apperrors.CodeNotFound, "trace not found: %s", name)
	}
	return nil
}

// Close closes the database connection.
func (c *GormCatalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB returns the underlying GORM DB instance.
func (c *GormCatalog) DB() *gorm.DB {
	return c.db
}
