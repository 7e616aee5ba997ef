package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"sheetgql/internal/logging"
	"sheetgql/internal/observability"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

// Auth modes.
const (
	AuthModeNone = "none"
	AuthModeJWT  = "jwt"
	AuthModeOIDC = "oidc"
)

// DefaultSpreadsheetsClaim lists the spreadsheet ids a token grants.
const DefaultSpreadsheetsClaim = "spreadsheets"

// AuthConfig selects how bearer tokens are validated.
type AuthConfig struct {
	Mode string
	// JWT mode: HMAC-signed tokens.
	Secret string
	// OIDC mode: tokens verified against the issuer's JWKS.
	IssuerURL string
	CAFile    string
	// Issuer is checked in JWT mode; OIDC always checks IssuerURL.
	Issuer            string
	Audience          string
	ClockSkew         time.Duration
	SpreadsheetsClaim string
}

type authContextKey struct{}

// AuthContext carries the validated identity of a request.
type AuthContext struct {
	Subject  string
	Issuer   string
	Audience []string
	Claims   map[string]any
	// Spreadsheets is the grant from the spreadsheets claim. HasGrant is
	// false when the token carried no such claim.
	Spreadsheets []string
	HasGrant     bool
}

// WithAuthContext stores auth in ctx.
func WithAuthContext(ctx context.Context, auth AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// AuthFromContext returns the auth context of a request.
func AuthFromContext(ctx context.Context) (AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey{}).(AuthContext)
	return auth, ok
}

// Allows reports whether the grant covers spreadsheetID. "*" grants all.
func (a AuthContext) Allows(spreadsheetID string) bool {
	for _, id := range a.Spreadsheets {
		if id == "*" || id == spreadsheetID {
			return true
		}
	}
	return false
}

// tokenVerifier validates a raw token and returns its claims.
type tokenVerifier interface {
	verify(ctx context.Context, raw string) (map[string]any, error)
	issuer() string
}

// AuthMiddleware validates Bearer tokens. Mode none returns a pass-through
// middleware. metrics may be nil.
func AuthMiddleware(cfg AuthConfig, logger *logging.Logger, metrics *observability.SecurityMetrics) (func(http.Handler) http.Handler, error) {
	if cfg.ClockSkew == 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	if cfg.SpreadsheetsClaim == "" {
		cfg.SpreadsheetsClaim = DefaultSpreadsheetsClaim
	}

	var verifier tokenVerifier
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", AuthModeNone:
		return func(next http.Handler) http.Handler { return next }, nil
	case AuthModeJWT:
		v, err := newHMACVerifier(cfg)
		if err != nil {
			return nil, err
		}
		verifier = v
	case AuthModeOIDC:
		v, err := newOIDCVerifier(cfg, logger)
		if err != nil {
			return nil, err
		}
		verifier = v
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}

	return authHandler(verifier, cfg.SpreadsheetsClaim, metrics), nil
}

func authHandler(verifier tokenVerifier, grantClaim string, metrics *observability.SecurityMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			endpoint := r.URL.Path
			logger := logging.FromContext(ctx)
			if metrics != nil {
				metrics.RecordAuthAttempt(ctx, endpoint)
			}

			raw := bearerToken(r.Header.Get("Authorization"))
			if raw == "" {
				if metrics != nil {
					metrics.RecordAuthFailure(ctx, endpoint, "missing_token")
				}
				logger.Warn("authentication failed: missing bearer token",
					slog.String("endpoint", endpoint),
					slog.String("remote_addr", r.RemoteAddr),
				)
				writeUnauthorized(w, "missing bearer token")
				return
			}

			claims, err := verifier.verify(ctx, raw)
			if err != nil {
				if metrics != nil {
					metrics.RecordAuthFailure(ctx, endpoint, "invalid_token")
					metrics.RecordTokenValidationError(ctx, "verification_failed")
				}
				logger.Warn("token validation failed",
					slog.String("error", err.Error()),
					slog.String("endpoint", endpoint),
				)
				writeUnauthorized(w, "invalid token")
				return
			}

			auth := AuthContext{
				Issuer:   verifier.issuer(),
				Audience: extractAudience(claims),
				Claims:   claims,
			}
			auth.Subject, _ = claims["sub"].(string)
			if iss, ok := claims["iss"].(string); ok && iss != "" {
				auth.Issuer = iss
			}
			if raw, ok := claims[grantClaim]; ok {
				auth.Spreadsheets = stringList(raw)
				auth.HasGrant = true
			}

			if metrics != nil {
				metrics.RecordAuthSuccess(ctx, endpoint, auth.Issuer)
			}
			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(
					attribute.String("auth.subject", auth.Subject),
					attribute.String("auth.issuer", auth.Issuer),
					attribute.Bool("auth.authenticated", true),
				)
			}
			reqLogger := logger.WithFields(slog.String("subject", auth.Subject))
			ctx = logging.WithLogger(WithAuthContext(ctx, auth), reqLogger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type hmacVerifier struct {
	secret []byte
	parser *jwt.Parser
	iss    string
}

func newHMACVerifier(cfg AuthConfig) (*hmacVerifier, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("jwt auth enabled but no secret configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(cfg.ClockSkew),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &hmacVerifier{secret: []byte(cfg.Secret), parser: jwt.NewParser(opts...), iss: cfg.Issuer}, nil
}

func (v *hmacVerifier) verify(_ context.Context, raw string) (map[string]any, error) {
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (v *hmacVerifier) issuer() string { return v.iss }

type oidcVerifier struct {
	verifier *oidc.IDTokenVerifier
	iss      string
	skew     time.Duration
}

func newOIDCVerifier(cfg AuthConfig, logger *logging.Logger) (*oidcVerifier, error) {
	if cfg.IssuerURL == "" || cfg.Audience == "" {
		return nil, errors.New("oidc auth enabled but issuer/audience not configured")
	}
	issuerURL, err := url.Parse(cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid oidc issuer url: %w", err)
	}
	if issuerURL.Scheme != "https" {
		return nil, errors.New("oidc issuer url must use https")
	}

	client, err := newOIDCHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize oidc provider: %w", err)
	}
	logging.OrDefault(logger).Info("oidc provider initialized", slog.String("issuer", cfg.IssuerURL))

	return &oidcVerifier{
		// Expiry is checked by validateTimeClaims so the skew applies.
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.Audience, SkipExpiryCheck: true}),
		iss:      cfg.IssuerURL,
		skew:     cfg.ClockSkew,
	}, nil
}

func (v *oidcVerifier) verify(ctx context.Context, raw string) (map[string]any, error) {
	token, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	claims := map[string]any{}
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("invalid token claims: %w", err)
	}
	if err := validateTimeClaims(claims, v.skew, time.Now()); err != nil {
		return nil, err
	}
	return claims, nil
}

func (v *oidcVerifier) issuer() string { return v.iss }

// newOIDCHTTPClient builds the client used for discovery and JWKS fetches.
// CAFile adds a PEM bundle to the system roots.
func newOIDCHTTPClient(cfg AuthConfig) (*http.Client, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read oidc CA file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("oidc CA file %s contains no certificates", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}
	return &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
		Timeout:   10 * time.Second,
	}, nil
}

func bearerToken(value string) string {
	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, message)
}

func validateTimeClaims(claims map[string]any, skew time.Duration, now time.Time) error {
	if exp, ok := numericDate(claims["exp"]); ok && now.After(exp.Add(skew)) {
		return errors.New("token expired")
	}
	if nbf, ok := numericDate(claims["nbf"]); ok && now.Add(skew).Before(nbf) {
		return errors.New("token not valid yet")
	}
	return nil
}

func numericDate(value any) (time.Time, bool) {
	switch v := value.(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case int64:
		return time.Unix(v, 0), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(n, 0), true
	default:
		return time.Time{}, false
	}
}

func extractAudience(claims map[string]any) []string {
	return stringList(claims["aud"])
}

// stringList accepts a string, a list, or a comma separated string.
func stringList(raw any) []string {
	switch v := raw.(type) {
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
