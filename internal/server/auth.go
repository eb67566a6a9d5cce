package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"shelter/internal/engine"
	"shelter/internal/engine/auth"
)

type AuthConfig struct {
	JWTSecret     string
	JWTIssuer     string
	JWTAudience   string
	AllowDevLogin bool
	// TokenTTL bounds dev-login tokens; zero means one hour.
	TokenTTL time.Duration
	Logger   *slog.Logger
}

// Principal is the authenticated caller. The role is never taken from the
// credential; it is loaded from storage on each request.
type Principal struct {
	Actor  auth.Actor
	Source string
}

type principalKey struct{}

func (c AuthConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// actorFromContext returns the caller or a 401 error.
func actorFromContext(ctx context.Context) (auth.Actor, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.Actor.ID != "" {
		return p.Actor, nil
	}
	return auth.Actor{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

func authenticateJWT(token string, cfg AuthConfig) (string, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}
	if cfg.JWTAudience != "" {
		opts = append(opts, jwt.WithAudience(cfg.JWTAudience))
	}
	parser := jwt.NewParser(opts...)
	claims := &jwt.RegisteredClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return "", err
	}
	if !parsed.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("subject claim required")
	}
	return claims.Subject, nil
}

// SignToken mints an HS256 token whose subject is the user id.
func SignToken(cfg AuthConfig, userID string, now time.Time) (string, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    cfg.JWTIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if cfg.JWTAudience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.JWTAudience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// publicRoutes lists API paths reachable without credentials.
func publicRoutes(basePath string) map[string]bool {
	return map[string]bool{
		path.Join(basePath, "health"):         true,
		path.Join(basePath, "openapi.json"):   true,
		path.Join(basePath, "auth/dev/login"): true,
		path.Join(basePath, "auth/register"):  true,
	}
}

// isPublicRead reports whether an unauthenticated caller may browse the path.
// The animal directory is open to everyone.
func isPublicRead(basePath string, r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	animals := path.Join(basePath, "animals")
	return r.URL.Path == animals || strings.HasPrefix(r.URL.Path, animals+"/")
}

// SessionCookie carries a bearer token for browser clients of the form pages.
const SessionCookie = "shelter_token"

var (
	ErrNoCredentials      = errors.New("no credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Authenticate resolves the caller of r from the Authorization header, the
// X-Api-Key header or the session cookie, in that order.
func Authenticate(r *http.Request, cfg AuthConfig, e engine.Engine) (Principal, error) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	apiKeyHeader := strings.TrimSpace(r.Header.Get("X-Api-Key"))
	if authz == "" && apiKeyHeader == "" {
		if c, err := r.Cookie(SessionCookie); err == nil && strings.TrimSpace(c.Value) != "" {
			authz = "Bearer " + strings.TrimSpace(c.Value)
		}
	}

	var (
		actor  auth.Actor
		source string
		err    error
	)
	switch {
	case authz != "":
		source = "jwt"
		token, ok := bearerToken(authz)
		if !ok {
			return Principal{}, ErrInvalidCredentials
		}
		subject, jwtErr := authenticateJWT(token, cfg)
		if jwtErr != nil {
			cfg.logger().Debug("rejected token", "err", jwtErr)
			return Principal{}, ErrInvalidCredentials
		}
		actor, err = e.ResolveActor(r.Context(), subject)
	case apiKeyHeader != "":
		source = "api_key"
		actor, err = e.ActorForAPIKey(r.Context(), apiKeyHeader)
	default:
		return Principal{}, ErrNoCredentials
	}
	if err != nil {
		if engine.Kind(err) == "internal" {
			return Principal{}, err
		}
		cfg.logger().Debug("rejected credentials", "source", source, "err", err)
		return Principal{}, ErrInvalidCredentials
	}
	return Principal{Actor: actor, Source: source}, nil
}

// Authenticator adapts Authenticate for front-ends that only need the actor.
func Authenticator(cfg AuthConfig, e engine.Engine) func(*http.Request) (auth.Actor, error) {
	return func(r *http.Request) (auth.Actor, error) {
		p, err := Authenticate(r, cfg, e)
		return p.Actor, err
	}
}

func newAuthMiddleware(basePath string, cfg AuthConfig, e engine.Engine) func(http.Handler) http.Handler {
	open := publicRoutes(basePath)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !strings.HasPrefix(req.URL.Path, basePath+"/") {
				next.ServeHTTP(w, req)
				return
			}
			principal, err := Authenticate(req, cfg, e)
			switch {
			case err == nil:
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
			case errors.Is(err, ErrNoCredentials):
				if open[req.URL.Path] || isPublicRead(basePath, req) {
					next.ServeHTTP(w, req)
					return
				}
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
			case errors.Is(err, ErrInvalidCredentials):
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
			default:
				cfg.logger().Error("authenticate request", "err", err)
				respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil))
			}
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
