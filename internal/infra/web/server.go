package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"persona-ai-chat/internal/domain/ports/adapter"
	"persona-ai-chat/internal/infra/logging"
	red "persona-ai-chat/internal/infra/redis"
	"persona-ai-chat/internal/usecase"
)

type ctxKey string

const ctxUserID ctxKey = "user_id"

// Server is the HTTP surface of the chat app. Every /api/v1 route except
// session management requires a valid session token.
type Server struct {
	chatUC     usecase.ChatUseCase
	summaryUC  usecase.SummaryUseCase
	lorebookUC usecase.LorebookUseCase
	credUC     usecase.CredentialUseCase
	settingsUC usecase.SettingsUseCase
	provider   adapter.CompletionProvider

	auth    *AuthManager
	limiter *red.RateLimiter

	sendLimit  int
	sendWindow time.Duration
	log        *zerolog.Logger
}

type ServerDeps struct {
	ChatUC     usecase.ChatUseCase
	SummaryUC  usecase.SummaryUseCase
	LorebookUC usecase.LorebookUseCase
	CredUC     usecase.CredentialUseCase
	SettingsUC usecase.SettingsUseCase
	Provider   adapter.CompletionProvider

	Auth    *AuthManager
	Limiter *red.RateLimiter

	SendLimit  int
	SendWindow time.Duration
}

func NewServer(d ServerDeps, logger *zerolog.Logger) *Server {
	srvLog := logger.With().Str("component", "WebServer").Logger()
	if d.SendWindow <= 0 {
		d.SendWindow = time.Minute
	}
	return &Server{
		chatUC:     d.ChatUC,
		summaryUC:  d.SummaryUC,
		lorebookUC: d.LorebookUC,
		credUC:     d.CredUC,
		settingsUC: d.SettingsUC,
		provider:   d.Provider,
		auth:       d.Auth,
		limiter:    d.Limiter,
		sendLimit:  d.SendLimit,
		sendWindow: d.SendWindow,
		log:        &srvLog,
	}
}

// Routes builds the full router.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.traceMiddleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/session", s.sessionCreate)
		r.Delete("/session", s.sessionDelete)

		r.Group(func(r chi.Router) {
			r.Use(s.sessionMiddleware)

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", s.conversationList)
				r.Post("/", s.conversationCreate)

				r.Route("/{id}", func(r chi.Router) {
					r.Use(s.conversationOwner)
					r.Get("/", s.conversationGet)
					r.Delete("/", s.conversationDelete)

					r.With(s.sendRateLimit).Post("/messages", s.messageSend)
					r.Get("/messages", s.messageWindow)
					r.Patch("/messages/{index}", s.messageEdit)
					r.Post("/reroll", s.messageReroll)
					r.Post("/summarize", s.summarize)

					r.Put("/note", s.noteSet)
					r.Put("/persona", s.personaSet)
					r.Put("/title", s.titleSet)
				})
			})

			r.Route("/lorebook", func(r chi.Router) {
				r.Get("/", s.lorebookList)
				r.Post("/", s.lorebookCreate)
				r.Patch("/{id}", s.lorebookUpdate)
				r.Delete("/{id}", s.lorebookDelete)
			})

			r.Route("/credentials", func(r chi.Router) {
				r.Get("/", s.credentialList)
				r.Post("/", s.credentialCreate)
				r.Put("/pin", s.credentialPin)
				r.Delete("/{id}", s.credentialDelete)
			})

			r.Get("/settings", s.settingsGet)
			r.Put("/settings", s.settingsUpdate)
			r.Get("/models", s.modelList)
		})
	})
	return r
}

// traceMiddleware stamps every request with a trace id carried through
// logs and the response header.
func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-Id")
		if traceID == "" {
			traceID = uuid.NewString()
		}
		w.Header().Set("X-Trace-Id", traceID)
		next.ServeHTTP(w, r.WithContext(logging.WithTraceID(r.Context(), traceID)))
	})
}

func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		ctx = logging.WithUserID(ctx, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// conversationOwner rejects access to conversations owned by another user
// before any handler runs.
func (s *Server) conversationOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		c, err := s.chatUC.Get(r.Context(), id)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		if c.UserID != userID(r.Context()) {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sendRateLimit throttles message sends per user via Redis.
func (s *Server) sendRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || s.sendLimit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		uid := userID(r.Context())
		ok, err := s.limiter.Allow(r.Context(), red.SendKey(uid), s.sendLimit, s.sendWindow)
		if err != nil {
			// Redis trouble must not take chat down with it.
			s.log.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			http.Error(w, "Too many messages, slow down", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userID(ctx context.Context) string {
	if v := ctx.Value(ctxUserID); v != nil {
		return v.(string)
	}
	return ""
}
