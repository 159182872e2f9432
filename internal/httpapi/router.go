package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// Loans.
		r.Post("/loans", h.CreateLoan)
		r.Get("/loans/{loanId}", h.GetLoan)
		r.Post("/loans/{loanId}/repayments", h.ApplyRepayment)
		r.Get("/loans/{loanId}/operations", h.ListLoanOperations)

		// Borrowers.
		r.Get("/borrowers/{borrowerId}/loans", h.ListBorrowerLoans)

		// Installments.
		r.Get("/installments/due", h.ListDueInstallments)
	})

	return r
}
