package consents

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbpkg "github.com/miraelabs/consentry-backend/pkg/db"
	"github.com/miraelabs/consentry-backend/pkg/db/models"
	"github.com/miraelabs/consentry-backend/pkg/enums"
	"github.com/miraelabs/consentry-backend/pkg/pagination"
)

func setupConsentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	documents := `
CREATE TABLE IF NOT EXISTS legal_documents (
  id TEXT PRIMARY KEY,
  document_type TEXT NOT NULL,
  version TEXT NOT NULL,
  locale TEXT NOT NULL,
  title TEXT NOT NULL,
  content TEXT NOT NULL,
  summary TEXT,
  effective_date DATETIME NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
	consents := `
CREATE TABLE IF NOT EXISTS user_consents (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  consent_type TEXT NOT NULL,
  document_id TEXT,
  document_version TEXT,
  agreed INTEGER NOT NULL,
  agreed_at DATETIME NOT NULL,
  withdrawn_at DATETIME,
  ip_address TEXT,
  user_agent TEXT,
  country_code TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`
	uniqueActive := `
CREATE UNIQUE INDEX IF NOT EXISTS ux_user_consents_active
  ON user_consents (user_id, consent_type)
  WHERE withdrawn_at IS NULL AND agreed;`
	require.NoError(t, db.Exec(documents).Error)
	require.NoError(t, db.Exec(consents).Error)
	require.NoError(t, db.Exec(uniqueActive).Error)
	return db
}

func newConsentRow(userID uuid.UUID, consentType enums.ConsentType, agreed bool, agreedAt time.Time) models.UserConsent {
	return models.UserConsent{
		ID:          uuid.New(),
		UserID:      userID,
		ConsentType: consentType,
		Agreed:      agreed,
		AgreedAt:    agreedAt,
		CountryCode: "KR",
	}
}

func TestCreateManyAtomic(t *testing.T) {
	db := setupConsentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	rows := []models.UserConsent{
		newConsentRow(userID, enums.ConsentTypeTermsOfService, true, now),
		newConsentRow(userID, enums.ConsentTypePrivacyPolicy, true, now),
		newConsentRow(userID, enums.ConsentTypeMarketingEmail, false, now),
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := repo.WithTx(tx).CreateMany(ctx, rows)
		return err
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.UserConsent{}).Where("user_id = ?", userID).Count(&count).Error)
	assert.EqualValues(t, 3, count)
}

func TestCreateManyRollsBackOnDuplicate(t *testing.T) {
	db := setupConsentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	rows := []models.UserConsent{
		newConsentRow(userID, enums.ConsentTypeTermsOfService, true, now),
		newConsentRow(userID, enums.ConsentTypeTermsOfService, true, now.Add(time.Second)),
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := repo.WithTx(tx).CreateMany(ctx, rows)
		return err
	})
	require.Error(t, err)
	assert.True(t, dbpkg.IsUniqueViolation(err, ""))

	var count int64
	require.NoError(t, db.Model(&models.UserConsent{}).Where("user_id = ?", userID).Count(&count).Error)
	assert.EqualValues(t, 0, count, "no partial batch may survive")
}

func TestFindActiveSkipsDeclinedAndWithdrawn(t *testing.T) {
	db := setupConsentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	declined := newConsentRow(userID, enums.ConsentTypeMarketingEmail, false, now)
	require.NoError(t, db.Create(&declined).Error)

	row, err := repo.FindActive(ctx, userID, enums.ConsentTypeMarketingEmail)
	require.NoError(t, err)
	assert.Nil(t, row, "declined rows are audit records, not active consent")

	withdrawnAt := now.Add(time.Hour)
	withdrawn := newConsentRow(userID, enums.ConsentTypeMarketingEmail, true, now.Add(30*time.Minute))
	withdrawn.WithdrawnAt = &withdrawnAt
	require.NoError(t, db.Create(&withdrawn).Error)

	row, err = repo.FindActive(ctx, userID, enums.ConsentTypeMarketingEmail)
	require.NoError(t, err)
	assert.Nil(t, row)

	granted := newConsentRow(userID, enums.ConsentTypeMarketingEmail, true, now.Add(2*time.Hour))
	require.NoError(t, db.Create(&granted).Error)

	row, err = repo.FindActive(ctx, userID, enums.ConsentTypeMarketingEmail)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, granted.ID, row.ID)
}

func TestListActiveIncludesDocumentMetadata(t *testing.T) {
	db := setupConsentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()
	now := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)

	doc := models.LegalDocument{
		ID:            uuid.New(),
		DocumentType:  enums.DocumentTypeTermsOfService,
		Version:       "2.0",
		Locale:        "ko",
		Title:         "terms",
		Content:       "text",
		EffectiveDate: now.AddDate(0, -1, 0),
		IsActive:      true,
	}
	require.NoError(t, db.Create(&doc).Error)

	version := doc.Version
	bound := newConsentRow(userID, enums.ConsentTypeTermsOfService, true, now)
	bound.DocumentID = &doc.ID
	bound.DocumentVersion = &version
	require.NoError(t, db.Create(&bound).Error)

	withdrawnAt := now.Add(time.Hour)
	gone := newConsentRow(userID, enums.ConsentTypeMarketingPush, true, now)
	gone.WithdrawnAt = &withdrawnAt
	require.NoError(t, db.Create(&gone).Error)

	rows, err := repo.ListActive(ctx, userID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, bound.ID, rows[0].ID)
	require.NotNil(t, rows[0].Document)
	assert.Equal(t, "2.0", rows[0].Document.Version)
	assert.Equal(t, "terms", rows[0].Document.Title)
}

func TestWithdrawIsIdempotentAtDataLevel(t *testing.T) {
	db := setupConsentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()
	now := time.Date(2026, 5, 3, 10, 0, 0, 0, time.UTC)

	row := newConsentRow(userID, enums.ConsentTypeMarketingSMS, true, now)
	require.NoError(t, db.Create(&row).Error)

	first := now.Add(time.Hour)
	withdrawn, err := repo.Withdraw(ctx, row.ID, first)
	require.NoError(t, err)
	require.NotNil(t, withdrawn.WithdrawnAt)
	assert.True(t, withdrawn.WithdrawnAt.Equal(first))

	second := now.Add(2 * time.Hour)
	again, err := repo.Withdraw(ctx, row.ID, second)
	require.NoError(t, err)
	require.NotNil(t, again.WithdrawnAt)
	assert.True(t, again.WithdrawnAt.Equal(first), "second withdraw must not move the timestamp")
}

func TestDistinctActiveAgreedTypes(t *testing.T) {
	db := setupConsentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()
	now := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

	terms := newConsentRow(userID, enums.ConsentTypeTermsOfService, true, now)
	require.NoError(t, db.Create(&terms).Error)

	// A withdrawn duplicate plus a fresh grant: distinct types must count
	// privacy_policy once.
	withdrawnAt := now.Add(time.Minute)
	old := newConsentRow(userID, enums.ConsentTypePrivacyPolicy, true, now)
	old.WithdrawnAt = &withdrawnAt
	require.NoError(t, db.Create(&old).Error)
	fresh := newConsentRow(userID, enums.ConsentTypePrivacyPolicy, true, now.Add(time.Hour))
	require.NoError(t, db.Create(&fresh).Error)

	declined := newConsentRow(userID, enums.ConsentTypeMarketingEmail, false, now)
	require.NoError(t, db.Create(&declined).Error)

	types, err := repo.DistinctActiveAgreedTypes(ctx, userID, []enums.ConsentType{
		enums.ConsentTypeTermsOfService,
		enums.ConsentTypePrivacyPolicy,
		enums.ConsentTypeMarketingEmail,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []enums.ConsentType{
		enums.ConsentTypeTermsOfService,
		enums.ConsentTypePrivacyPolicy,
	}, types)

	empty, err := repo.DistinctActiveAgreedTypes(ctx, userID, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestListHistoryPagination(t *testing.T) {
	db := setupConsentsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()
	base := time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC)

	var created []models.UserConsent
	for i := 0; i < 5; i++ {
		row := newConsentRow(userID, enums.ConsentTypeMarketingEmail, false, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, db.Create(&row).Error)
		created = append(created, row)
	}

	firstPage, err := repo.ListHistory(ctx, userID, 2, nil)
	require.NoError(t, err)
	require.Len(t, firstPage, 2)
	assert.Equal(t, created[4].ID, firstPage[0].ID)
	assert.Equal(t, created[3].ID, firstPage[1].ID)

	cursor := &pagination.Cursor{AgreedAt: firstPage[1].AgreedAt, ID: firstPage[1].ID}
	secondPage, err := repo.ListHistory(ctx, userID, 2, cursor)
	require.NoError(t, err)
	require.Len(t, secondPage, 2)
	assert.Equal(t, created[2].ID, secondPage[0].ID)
	assert.Equal(t, created[1].ID, secondPage[1].ID)
}
