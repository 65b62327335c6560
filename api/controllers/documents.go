package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/miraelabs/consentry-backend/api/middleware"
	"github.com/miraelabs/consentry-backend/api/responses"
	"github.com/miraelabs/consentry-backend/internal/documents"
	"github.com/miraelabs/consentry-backend/pkg/enums"
	pkgerrors "github.com/miraelabs/consentry-backend/pkg/errors"
	"github.com/miraelabs/consentry-backend/pkg/logger"
)

// DocumentCurrent resolves the current document for a type in the caller's
// locale, falling back to the base locale when no translation exists.
func DocumentCurrent(svc documents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "documents service unavailable"))
			return
		}

		documentType, err := enums.ParseDocumentType(chi.URLParam(r, "documentType"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid document type"))
			return
		}

		summary, err := svc.Current(ctx, documentType, middleware.LocaleFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// DocumentGet returns one document with its full text.
func DocumentGet(svc documents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "documents service unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "documentID"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid document id"))
			return
		}

		detail, err := svc.Get(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}
