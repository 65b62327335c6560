package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/miraelabs/consentry-backend/internal/consents"
	"github.com/miraelabs/consentry-backend/internal/documents"
	"github.com/miraelabs/consentry-backend/internal/region"
	dbpkg "github.com/miraelabs/consentry-backend/pkg/db"
	"github.com/miraelabs/consentry-backend/pkg/db/models"
	"github.com/miraelabs/consentry-backend/pkg/enums"
	pkgerrors "github.com/miraelabs/consentry-backend/pkg/errors"
	"github.com/miraelabs/consentry-backend/pkg/logger"
	"github.com/miraelabs/consentry-backend/pkg/metrics"
	"github.com/miraelabs/consentry-backend/pkg/outbox"
	"github.com/miraelabs/consentry-backend/pkg/outbox/payloads"
	"github.com/miraelabs/consentry-backend/pkg/pagination"
	pkgredis "github.com/miraelabs/consentry-backend/pkg/redis"
)

type documentsService interface {
	CurrentByTypes(ctx context.Context, types []enums.DocumentType, locale string) (map[enums.DocumentType]documents.Summary, error)
	Current(ctx context.Context, documentType enums.DocumentType, locale string) (*documents.Summary, error)
	Versions(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type requirementsCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	RequirementsKey(locale string) string
}

// Service is the consent policy engine: it resolves per-region requirements
// and drives the consent lifecycle through the ledger.
type Service interface {
	GetConsentRequirements(ctx context.Context, locale string) (*RequirementsView, error)
	CreateConsents(ctx context.Context, input CreateConsentsInput) ([]consents.View, error)
	GetUserConsents(ctx context.Context, userID uuid.UUID) ([]consents.View, error)
	GetConsentHistory(ctx context.Context, userID uuid.UUID, params pagination.Params) (*HistoryPage, error)
	UpdateConsent(ctx context.Context, input UpdateConsentInput) (*consents.View, error)
	HasRequiredConsents(ctx context.Context, userID uuid.UUID, locale string) (bool, error)
}

// ServiceParams collects the engine's collaborators. Cache and Metrics are
// optional; everything else is required.
type ServiceParams struct {
	Consents  consents.Repository
	Documents documentsService
	Tx        txRunner
	Outbox    outboxEmitter
	Cache     requirementsCache
	CacheTTL  time.Duration
	Metrics   *metrics.ConsentMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	consents  consents.Repository
	documents documentsService
	tx        txRunner
	outbox    outboxEmitter
	cache     requirementsCache
	cacheTTL  time.Duration
	metrics   *metrics.ConsentMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the policy engine.
func NewService(params ServiceParams) (Service, error) {
	if params.Consents == nil {
		return nil, fmt.Errorf("consents repository required")
	}
	if params.Documents == nil {
		return nil, fmt.Errorf("documents service required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	cacheTTL := params.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &service{
		consents:  params.Consents,
		documents: params.Documents,
		tx:        params.Tx,
		outbox:    params.Outbox,
		cache:     params.Cache,
		cacheTTL:  cacheTTL,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// GetConsentRequirements resolves the caller's region policy and annotates
// each requirement with the current document for the locale. Documents are
// fetched in one batched query for the whole policy.
func (s *service) GetConsentRequirements(ctx context.Context, locale string) (*RequirementsView, error) {
	if view := s.cachedRequirements(ctx, locale); view != nil {
		return view, nil
	}

	regionPolicy := region.PolicyForLocale(locale)
	docs, err := s.documents.CurrentByTypes(ctx, regionPolicy.DocumentTypes(), locale)
	if err != nil {
		return nil, err
	}

	view := &RequirementsView{
		Region:               regionPolicy.Region,
		LawName:              regionPolicy.LawName,
		NightPushRestriction: regionPolicy.NightPushRestriction,
		Requirements:         make([]RequirementView, 0, len(regionPolicy.Requirements)),
	}
	for _, req := range regionPolicy.Requirements {
		annotated := RequirementView{
			ConsentType:    req.ConsentType,
			Required:       req.Required,
			DocumentType:   req.DocumentType,
			LabelKey:       req.LabelKey,
			DescriptionKey: req.DescriptionKey,
			NightHours:     req.NightHours,
		}
		if doc, ok := docs[req.DocumentType]; ok {
			summary := doc
			annotated.Document = &summary
		}
		view.Requirements = append(view.Requirements, annotated)
	}

	s.storeRequirements(ctx, locale, view)
	return view, nil
}

func (s *service) cachedRequirements(ctx context.Context, locale string) *RequirementsView {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, s.cache.RequirementsKey(locale))
	if err != nil {
		if err != pkgredis.ErrCacheMiss {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "requirements cache read failed")
		}
		s.metrics.IncCacheLookup("miss")
		return nil
	}
	var view RequirementsView
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		s.metrics.IncCacheLookup("miss")
		return nil
	}
	s.metrics.IncCacheLookup("hit")
	return &view
}

func (s *service) storeRequirements(ctx context.Context, locale string, view *RequirementsView) {
	if s.cache == nil {
		return
	}
	encoded, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cache.RequirementsKey(locale), string(encoded), s.cacheTTL); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "requirements cache write failed")
	}
}

// CreateConsents records a registration-time batch. Every decision is written,
// declined ones included, so the trail proves each consent was offered. The
// whole batch commits or none of it does.
func (s *service) CreateConsents(ctx context.Context, input CreateConsentsInput) ([]consents.View, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if len(input.Decisions) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one consent decision is required")
	}
	for _, decision := range input.Decisions {
		if !decision.ConsentType.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid consent type %q", decision.ConsentType))
		}
	}

	versions, err := s.decisionVersions(ctx, input.Decisions)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rows := make([]models.UserConsent, 0, len(input.Decisions))
	for _, decision := range input.Decisions {
		row := consents.NewConsentRow{
			UserID:      input.UserID,
			ConsentType: decision.ConsentType,
			DocumentID:  decision.DocumentID,
			Agreed:      decision.Agreed,
			AgreedAt:    now,
			IPAddress:   input.IPAddress,
			UserAgent:   input.UserAgent,
			CountryCode: input.CountryCode,
		}
		if decision.DocumentID != nil {
			if version, ok := versions[*decision.DocumentID]; ok {
				row.DocumentVersion = &version
			}
		}
		rows = append(rows, row.ToModel())
	}

	var created []models.UserConsent
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err = s.consents.WithTx(tx).CreateMany(ctx, rows)
		if err != nil {
			return err
		}
		for _, row := range created {
			if err := s.emitDecision(ctx, tx, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if dbpkg.IsForeignKeyViolation(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown document id in consent batch")
		}
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "consent already recorded")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create consents")
	}

	for _, row := range created {
		s.recordDecision(row)
	}
	return consents.ToViews(created), nil
}

// decisionVersions batch-resolves version snapshots for every decision that
// references a document. One query regardless of batch size.
func (s *service) decisionVersions(ctx context.Context, decisions []Decision) (map[uuid.UUID]string, error) {
	ids := make([]uuid.UUID, 0, len(decisions))
	seen := make(map[uuid.UUID]struct{}, len(decisions))
	for _, decision := range decisions {
		if decision.DocumentID == nil {
			continue
		}
		if _, ok := seen[*decision.DocumentID]; ok {
			continue
		}
		seen[*decision.DocumentID] = struct{}{}
		ids = append(ids, *decision.DocumentID)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return s.documents.Versions(ctx, ids)
}

// GetUserConsents lists the user's non-withdrawn rows with document metadata.
func (s *service) GetUserConsents(ctx context.Context, userID uuid.UUID) ([]consents.View, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	rows, err := s.consents.ListActive(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list consents")
	}
	return consents.ToViews(rows), nil
}

// GetConsentHistory pages through the full audit trail, withdrawn and
// declined rows included.
func (s *service) GetConsentHistory(ctx context.Context, userID uuid.UUID, params pagination.Params) (*HistoryPage, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.consents.ListHistory(ctx, userID, limit+1, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list consent history")
	}

	page := &HistoryPage{}
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next := pagination.EncodeCursor(pagination.Cursor{AgreedAt: last.AgreedAt, ID: last.ID})
		page.NextCursor = &next
	}
	page.Items = consents.ToViews(rows)
	return page, nil
}

// UpdateConsent is the consent state machine. Granting twice is a no-op,
// withdrawing a required consent is a policy violation, withdrawing something
// never granted returns nil.
func (s *service) UpdateConsent(ctx context.Context, input UpdateConsentInput) (*consents.View, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !input.ConsentType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid consent type %q", input.ConsentType))
	}

	regionPolicy := region.PolicyForLocale(input.Locale)
	requirement, known := regionPolicy.RequirementFor(input.ConsentType)
	// Types the policy does not mention are treated as always-optional and
	// unbound to any document.
	if known && requirement.Required && !input.Agreed {
		s.metrics.IncPolicyViolation(string(input.ConsentType))
		return nil, pkgerrors.New(pkgerrors.CodePolicyViolation, fmt.Sprintf("%s consent cannot be withdrawn", input.ConsentType))
	}

	active, err := s.consents.FindActive(ctx, input.UserID, input.ConsentType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find active consent")
	}

	switch {
	case active != nil && !input.Agreed:
		return s.withdrawConsent(ctx, *active)
	case active == nil && input.Agreed:
		return s.grantConsent(ctx, input, requirement)
	case active != nil && input.Agreed:
		// Already granted: idempotent, no write.
		view := consents.ToView(*active)
		return &view, nil
	default:
		// Nothing to withdraw; not an error.
		return nil, nil
	}
}

func (s *service) withdrawConsent(ctx context.Context, row models.UserConsent) (*consents.View, error) {
	var withdrawn *models.UserConsent
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		withdrawn, err = s.consents.WithTx(tx).Withdraw(ctx, row.ID, s.now().UTC())
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventConsentWithdrawn,
			AggregateType: enums.AggregateUserConsent,
			AggregateID:   withdrawn.ID,
			Actor:         &outbox.ActorRef{UserID: withdrawn.UserID},
			Version:       1,
			Data: payloads.ConsentWithdrawnEvent{
				ConsentID:   withdrawn.ID,
				UserID:      withdrawn.UserID,
				ConsentType: withdrawn.ConsentType,
				CountryCode: withdrawn.CountryCode,
				WithdrawnAt: *withdrawn.WithdrawnAt,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "withdraw consent")
	}

	s.metrics.IncDecision(string(withdrawn.ConsentType), "withdrawn")
	view := consents.ToView(*withdrawn)
	return &view, nil
}

func (s *service) grantConsent(ctx context.Context, input UpdateConsentInput, requirement region.Requirement) (*consents.View, error) {
	row := consents.NewConsentRow{
		UserID:      input.UserID,
		ConsentType: input.ConsentType,
		Agreed:      true,
		AgreedAt:    s.now().UTC(),
		IPAddress:   input.IPAddress,
		UserAgent:   input.UserAgent,
		CountryCode: region.CountryCode(input.Locale),
	}

	if requirement.DocumentType != "" {
		doc, err := s.documents.Current(ctx, requirement.DocumentType, input.Locale)
		if err != nil {
			return nil, err
		}
		version := doc.Version
		row.DocumentID = &doc.ID
		row.DocumentVersion = &version
	}

	model := row.ToModel()
	var created *models.UserConsent
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		created, err = s.consents.WithTx(tx).InsertOne(ctx, &model)
		if err != nil {
			return err
		}
		return s.emitDecision(ctx, tx, *created)
	})
	if err != nil {
		// A concurrent grant can beat us to the partial unique index; the
		// winner's row is the idempotent answer.
		if dbpkg.IsUniqueViolation(err, "") {
			existing, findErr := s.consents.FindActive(ctx, input.UserID, input.ConsentType)
			if findErr == nil && existing != nil {
				view := consents.ToView(*existing)
				return &view, nil
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "grant consent")
	}

	s.recordDecision(*created)
	view := consents.ToView(*created)
	return &view, nil
}

// HasRequiredConsents reports whether every consent the region marks required
// is currently granted. Counted over distinct types, so duplicate active rows
// can never skew the answer.
func (s *service) HasRequiredConsents(ctx context.Context, userID uuid.UUID, locale string) (bool, error) {
	if userID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	required := region.PolicyForLocale(locale).RequiredConsentTypes()
	if len(required) == 0 {
		return true, nil
	}
	granted, err := s.consents.DistinctActiveAgreedTypes(ctx, userID, required)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check required consents")
	}
	return len(granted) == len(required), nil
}

func (s *service) emitDecision(ctx context.Context, tx *gorm.DB, row models.UserConsent) error {
	event := outbox.DomainEvent{
		AggregateType: enums.AggregateUserConsent,
		AggregateID:   row.ID,
		Actor:         &outbox.ActorRef{UserID: row.UserID},
		Version:       1,
	}
	if row.Agreed {
		event.EventType = enums.EventConsentGranted
		event.Data = payloads.ConsentGrantedEvent{
			ConsentID:       row.ID,
			UserID:          row.UserID,
			ConsentType:     row.ConsentType,
			DocumentID:      row.DocumentID,
			DocumentVersion: row.DocumentVersion,
			CountryCode:     row.CountryCode,
			AgreedAt:        row.AgreedAt,
		}
	} else {
		event.EventType = enums.EventConsentDeclined
		event.Data = payloads.ConsentDeclinedEvent{
			ConsentID:   row.ID,
			UserID:      row.UserID,
			ConsentType: row.ConsentType,
			CountryCode: row.CountryCode,
			DecidedAt:   row.AgreedAt,
		}
	}
	return s.outbox.Emit(ctx, tx, event)
}

func (s *service) recordDecision(row models.UserConsent) {
	outcome := "granted"
	if !row.Agreed {
		outcome = "declined"
	}
	s.metrics.IncDecision(string(row.ConsentType), outcome)
}
