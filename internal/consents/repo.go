package consents

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/miraelabs/consentry-backend/pkg/db/models"
	"github.com/miraelabs/consentry-backend/pkg/enums"
	"github.com/miraelabs/consentry-backend/pkg/pagination"
)

// Repository is the consent ledger persistence surface. Rows are append-only
// except for the soft withdrawal timestamp.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateMany(ctx context.Context, rows []models.UserConsent) ([]models.UserConsent, error)
	InsertOne(ctx context.Context, row *models.UserConsent) (*models.UserConsent, error)
	FindActive(ctx context.Context, userID uuid.UUID, consentType enums.ConsentType) (*models.UserConsent, error)
	ListActive(ctx context.Context, userID uuid.UUID) ([]models.UserConsent, error)
	Withdraw(ctx context.Context, id uuid.UUID, at time.Time) (*models.UserConsent, error)
	DistinctActiveAgreedTypes(ctx context.Context, userID uuid.UUID, types []enums.ConsentType) ([]enums.ConsentType, error)
	ListHistory(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.UserConsent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a consent ledger repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateMany inserts the batch through whatever connection the repository is
// bound to. Callers wanting all-or-nothing semantics rebind via WithTx first.
func (r *repository) CreateMany(ctx context.Context, rows []models.UserConsent) ([]models.UserConsent, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) InsertOne(ctx context.Context, row *models.UserConsent) (*models.UserConsent, error) {
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// FindActive returns the in-effect row for (user, type): not withdrawn,
// agreed, greatest agreed_at. Declined audit rows are not "active" and never
// block a later grant. Returns nil without error when no row matches.
func (r *repository) FindActive(ctx context.Context, userID uuid.UUID, consentType enums.ConsentType) (*models.UserConsent, error) {
	var row models.UserConsent
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND consent_type = ? AND agreed = ? AND withdrawn_at IS NULL", userID, consentType, true).
		Order("agreed_at DESC").
		Order("id DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ListActive returns every non-withdrawn row for the user with minimal
// document metadata attached for display.
func (r *repository) ListActive(ctx context.Context, userID uuid.UUID) ([]models.UserConsent, error) {
	var rows []models.UserConsent
	err := r.db.WithContext(ctx).
		Preload("Document", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "document_type", "version", "title")
		}).
		Where("user_id = ? AND withdrawn_at IS NULL", userID).
		Order("agreed_at DESC").
		Order("id DESC").
		Find(&rows).Error
	return rows, err
}

// Withdraw stamps withdrawn_at and returns the updated row. Stamping an
// already-withdrawn row changes nothing.
func (r *repository) Withdraw(ctx context.Context, id uuid.UUID, at time.Time) (*models.UserConsent, error) {
	err := r.db.WithContext(ctx).
		Model(&models.UserConsent{}).
		Where("id = ? AND withdrawn_at IS NULL", id).
		UpdateColumn("withdrawn_at", at).Error
	if err != nil {
		return nil, err
	}

	var row models.UserConsent
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// DistinctActiveAgreedTypes returns the distinct consent types from the given
// set that the user has agreed to and not withdrawn. Duplicate active rows
// collapse to one entry, so aggregate checks stay correct.
func (r *repository) DistinctActiveAgreedTypes(ctx context.Context, userID uuid.UUID, types []enums.ConsentType) ([]enums.ConsentType, error) {
	if len(types) == 0 {
		return nil, nil
	}
	var found []enums.ConsentType
	err := r.db.WithContext(ctx).
		Model(&models.UserConsent{}).
		Distinct("consent_type").
		Where("user_id = ? AND consent_type IN ? AND agreed = ? AND withdrawn_at IS NULL", userID, types, true).
		Pluck("consent_type", &found).Error
	if err != nil {
		return nil, err
	}
	return found, nil
}

// ListHistory pages through the full audit trail, withdrawn rows included,
// newest decisions first.
func (r *repository) ListHistory(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.UserConsent, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("agreed_at DESC").
		Order("id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where(
			"(agreed_at < ?) OR (agreed_at = ? AND id < ?)",
			cursor.AgreedAt, cursor.AgreedAt, cursor.ID,
		)
	}

	var rows []models.UserConsent
	err := query.Find(&rows).Error
	return rows, err
}
