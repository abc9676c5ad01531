// Package http exposes one route per engine operation. It is a thin shell:
// request decoding, error-to-status mapping and the websocket bridge live
// here; every rule lives in the service layer.
package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/openpleb/escrowd/internal/errs"
	"github.com/openpleb/escrowd/internal/notify"
	"github.com/openpleb/escrowd/internal/service"
)

// Server wires the engine into a chi router.
type Server struct {
	offers *service.Offers
	hub    *notify.Hub
	logger *zap.Logger
}

// New constructs the HTTP server shell.
func New(offers *service.Offers, hub *notify.Hub, logger *zap.Logger) *Server {
	return &Server{offers: offers, hub: hub, logger: logger}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/offers", func(r chi.Router) {
			r.Post("/", s.handleCreateOffer)
			r.Get("/", s.handleListOffers)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetOffer)
				r.Post("/invoice", s.handleRequestInvoice)
				r.Get("/invoice", s.handleCheckInvoicePaid)
				r.Post("/pay", s.handlePayWithToken)
				r.Post("/claim", s.handleClaim)
				r.Post("/receipt", s.handleSubmitReceipt)
				r.Get("/receipt", s.handleGetReceipt)
				r.Post("/feedback", s.handleFeedback)
				r.Post("/dispute", s.handleDispute)
			})
		})
		r.Post("/admin/resolve", s.handleResolveDispute)
	})
	r.Get("/ws", s.handleWS)

	return r
}

// status maps engine sentinels onto HTTP status codes.
func status(err error) int {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, errs.ErrWalletUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, errs.ErrInvalidState),
		errors.Is(err, errs.ErrAmountMismatch),
		errors.Is(err, errs.ErrBondMismatch),
		errors.Is(err, errs.ErrRedemptionMismatch),
		errors.Is(err, errs.ErrInvalidResolution),
		errors.Is(err, errs.ErrInvalidAmount),
		errors.Is(err, errs.ErrAmountTooLarge),
		errors.Is(err, errs.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		// Includes ErrInsufficientEscrow: ledger corruption is an internal
		// fault and must be surfaced loudly.
		return http.StatusInternalServerError
	}
}
