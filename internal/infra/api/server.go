package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"crypto-role-subscription/internal/usecase"
)

// Server exposes the admin API.
type Server struct {
	communities usecase.CommunityUseCase
	methods     usecase.MethodUseCase
	payments    usecase.PaymentUseCase
	subs        usecase.SubscriptionUseCase
	auth        *AuthManager
	log         *zerolog.Logger
}

func NewServer(
	communities usecase.CommunityUseCase,
	methods usecase.MethodUseCase,
	payments usecase.PaymentUseCase,
	subs usecase.SubscriptionUseCase,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "AdminAPI").Logger()
	return &Server{
		communities: communities,
		methods:     methods,
		payments:    payments,
		subs:        subs,
		auth:        auth,
		log:         &l,
	}
}

// Router builds the chi router with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RequireAdmin(s.auth, s.log), Timeout(30*time.Second))

		r.Route("/communities/{communityID}", func(r chi.Router) {
			r.Put("/payout", s.handleSetPayout)
			r.Get("/methods", s.handleListMethods)
			r.Post("/methods", s.handleCreateMethod)
			r.Delete("/methods/{name}", s.handleDeleteMethod)
			r.Post("/payments", s.handleStartPayment)
			r.Get("/members/{memberID}/subscriptions", s.handleMemberSubscriptions)
			r.Get("/members/{memberID}/payments", s.handleMemberPayments)
		})
		r.Get("/payments/{attemptID}", s.handleGetPayment)
		r.Post("/sweep", s.handleSweep)
		r.Get("/stats", s.handleStats)
	})
	return Chain(r, Recover(s.log), TraceID(s.log), RequestLog(s.log))
}

// Run serves on port until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("admin api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin api shutdown: %w", err)
	}
	return nil
}
