package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/apperr"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/service"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const tokenCookie = "jwt"

type principalKey struct{}

// UserLookup loads the user a token points at.
type UserLookup interface {
	GetUser(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
}

// Claims is the token payload issued by the login flow.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// RequestIDMiddleware copies chi's request id into the logger context and
// echoes it back to the client. Must run after middleware.RequestID.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		if requestID != "" {
			w.Header().Set(middleware.RequestIDHeader, requestID)
		}
		ctx := logger.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AccessLog writes one structured line per request.
func AccessLog(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			entry := log.Ctx(r.Context()).WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"remote_addr": r.RemoteAddr,
			})
			if status >= http.StatusInternalServerError {
				entry.Warn("request served")
				return
			}
			entry.Info("request served")
		})
	}
}

type Authenticator struct {
	secret []byte
	users  UserLookup
	log    *logger.Logger
}

func NewAuthenticator(secret string, users UserLookup, log *logger.Logger) *Authenticator {
	return &Authenticator{secret: []byte(secret), users: users, log: log}
}

// Handler resolves the caller from the "jwt" cookie, or a Bearer header
// when there is no cookie, and stores the Principal in the request context.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r)
		if token == "" {
			respondError(w, r, a.log, apperr.ErrNotAuthenticated.WithMessage("not authorized, no token, please log in"))
			return
		}

		p, err := a.authenticate(r.Context(), token)
		if err != nil {
			a.log.Ctx(r.Context()).WithError(err).Debug("token rejected")
			respondError(w, r, a.log, err)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey{}, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) authenticate(ctx context.Context, tokenString string) (service.Principal, error) {
	failed := apperr.ErrNotAuthenticated.WithMessage("not authorized, token failed")

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return service.Principal{}, failed.Wrap(err)
	}

	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return service.Principal{}, failed.Wrap(err)
	}

	user, err := a.users.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return service.Principal{}, failed.Wrap(err)
	}
	if err != nil {
		return service.Principal{}, err
	}

	return service.Principal{UserID: user.ID, Username: user.Username, IsAdmin: user.IsAdmin}, nil
}

func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(tokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// RequireAdmin must be mounted behind Authenticator.Handler.
func RequireAdmin(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				respondError(w, r, log, apperr.ErrNotAuthenticated)
				return
			}
			if !p.IsAdmin {
				respondError(w, r, log, apperr.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func PrincipalFrom(ctx context.Context) (service.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(service.Principal)
	return p, ok
}
