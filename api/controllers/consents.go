package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/miraelabs/consentry-backend/api/middleware"
	"github.com/miraelabs/consentry-backend/api/responses"
	"github.com/miraelabs/consentry-backend/api/validators"
	"github.com/miraelabs/consentry-backend/internal/policy"
	"github.com/miraelabs/consentry-backend/pkg/enums"
	pkgerrors "github.com/miraelabs/consentry-backend/pkg/errors"
	"github.com/miraelabs/consentry-backend/pkg/logger"
	"github.com/miraelabs/consentry-backend/pkg/pagination"
)

type consentDecisionPayload struct {
	ConsentType string `json:"consent_type" validate:"required"`
	Agreed      bool   `json:"agreed"`
	DocumentID  string `json:"document_id,omitempty"`
}

type createConsentsPayload struct {
	Decisions []consentDecisionPayload `json:"decisions" validate:"required,min=1,dive"`
}

type updateConsentPayload struct {
	ConsentType string `json:"consent_type" validate:"required"`
	Agreed      *bool  `json:"agreed" validate:"required"`
}

// ConsentRequirements returns the locale's consent posture with the current
// document per requirement. Public: callers see this before registering.
func ConsentRequirements(svc policy.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "policy service unavailable"))
			return
		}

		locale := middleware.LocaleFromContext(ctx)
		view, err := svc.GetConsentRequirements(ctx, locale)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// ConsentsCreate records the registration-time consent batch for the caller.
func ConsentsCreate(svc policy.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "policy service unavailable"))
			return
		}

		userID, err := callerID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload createConsentsPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		decisions := make([]policy.Decision, 0, len(payload.Decisions))
		for _, item := range payload.Decisions {
			consentType, err := enums.ParseConsentType(item.ConsentType)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid consent type"))
				return
			}
			decision := policy.Decision{ConsentType: consentType, Agreed: item.Agreed}
			if strings.TrimSpace(item.DocumentID) != "" {
				docID, err := uuid.Parse(item.DocumentID)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid document id"))
					return
				}
				decision.DocumentID = &docID
			}
			decisions = append(decisions, decision)
		}

		views, err := svc.CreateConsents(ctx, policy.CreateConsentsInput{
			UserID:      userID,
			Decisions:   decisions,
			IPAddress:   clientIP(r),
			UserAgent:   clientUserAgent(r),
			CountryCode: countryFromLocale(ctx),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, views)
	}
}

// ConsentsList returns the caller's active consents.
func ConsentsList(svc policy.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "policy service unavailable"))
			return
		}

		userID, err := callerID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		views, err := svc.GetUserConsents(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, views)
	}
}

// ConsentsHistory pages through the caller's full consent audit trail.
func ConsentsHistory(svc policy.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "policy service unavailable"))
			return
		}

		userID, err := callerID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))

		page, err := svc.GetConsentHistory(ctx, userID, pagination.Params{Limit: limit, Cursor: cursor})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// ConsentsUpdate applies one consent decision through the state machine.
func ConsentsUpdate(svc policy.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "policy service unavailable"))
			return
		}

		userID, err := callerID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload updateConsentPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		consentType, err := enums.ParseConsentType(payload.ConsentType)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid consent type"))
			return
		}

		view, err := svc.UpdateConsent(ctx, policy.UpdateConsentInput{
			UserID:      userID,
			ConsentType: consentType,
			Agreed:      *payload.Agreed,
			Locale:      middleware.LocaleFromContext(ctx),
			IPAddress:   clientIP(r),
			UserAgent:   clientUserAgent(r),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// ConsentsStatus answers whether the caller holds every required consent for
// their locale.
func ConsentsStatus(svc policy.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "policy service unavailable"))
			return
		}

		userID, err := callerID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		ok, err := svc.HasRequiredConsents(ctx, userID, middleware.LocaleFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"has_required_consents": ok})
	}
}
