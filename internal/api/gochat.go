package api

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
	"github.com/npezzotti/chat-backend/internal/config"
	"github.com/npezzotti/chat-backend/internal/database"
	"github.com/npezzotti/chat-backend/internal/server"
	"go.uber.org/zap"
)

type GoChatApp struct {
	log            *zap.SugaredLogger
	db             database.ChatRepository
	srv            *http.Server
	cs             *server.ChatServer
	validate       *validator.Validate
	signingKey     []byte
	tokenTTL       time.Duration
	allowedOrigins []string
}

func NewGoChatApp(mux *http.ServeMux, logger *zap.SugaredLogger, cs *server.ChatServer, db database.ChatRepository, cfg *config.Config) *GoChatApp {
	s := &GoChatApp{
		log:            logger,
		db:             db,
		cs:             cs,
		validate:       newValidator(),
		signingKey:     cfg.SigningKey,
		tokenTTL:       cfg.TokenTTL,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/users/register", s.register)
	mux.HandleFunc("POST /api/users/login", s.login)
	mux.HandleFunc("GET /api/users/logout", s.logout)
	mux.Handle("GET /api/users/online", s.authMiddleware(s.onlineUsers))
	mux.Handle("GET /api/users/{userId}", s.authMiddleware(s.getUser))
	mux.Handle("GET /api/users", s.authMiddleware(s.listUsers))
	mux.Handle("POST /api/chats", s.authMiddleware(s.createChat))
	mux.Handle("GET /api/chats/{userId}", s.authMiddleware(s.listChats))
	mux.Handle("GET /api/chats/find/{firstId}/{secondId}", s.authMiddleware(s.findChat))
	mux.Handle("POST /api/messages", s.authMiddleware(s.createMessage))
	mux.Handle("GET /api/messages/{chatId}", s.authMiddleware(s.listMessages))
	mux.HandleFunc("GET /ws", s.serveWs)
	mux.HandleFunc("GET /healthz", s.healthCheck)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

// newValidator reports field errors by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

func (s *GoChatApp) Start() error {
	s.log.Infow("starting server", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *GoChatApp) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
