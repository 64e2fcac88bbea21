package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cvfolio/cvfolio-portal/internal/authprovider"
	"github.com/cvfolio/cvfolio-portal/internal/common"
	"github.com/cvfolio/cvfolio-portal/internal/session"
)

// sessionCookie names the portal's signed session cookie.
const sessionCookie = "cvfolio_session"

// sessionTTL is how long a portal session cookie stays valid.
const sessionTTL = 24 * time.Hour

// JWTClaims holds the decoded JWT payload claims.
type JWTClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Iss   string `json:"iss"`
	Iat   int64  `json:"iat"`
	Exp   int64  `json:"exp"`
}

// GenerateJWT mints a compact HMAC-SHA256 JWT for the given claims.
func GenerateJWT(claims JWTClaims, secret []byte) (string, error) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	body := base64.RawURLEncoding.EncodeToString(payload)

	sigInput := header + "." + body
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(sigInput))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return sigInput + "." + sig, nil
}

// ValidateJWT validates a JWT token string.
// If secret is non-empty, it verifies the HMAC-SHA256 signature.
// If secret is empty, signature verification is skipped (backwards compat).
// Always checks expiry.
func ValidateJWT(token string, secret []byte) (*JWTClaims, error) {
	parts := strings.SplitN(token, ".", 4)
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid JWT format: expected 3 parts, got %d", len(parts))
	}

	if len(secret) > 0 {
		sigInput := parts[0] + "." + parts[1]
		mac := hmac.New(sha256.New, secret)
		mac.Write([]byte(sigInput))
		expectedSig := mac.Sum(nil)

		actualSig, err := base64.RawURLEncoding.DecodeString(parts[2])
		if err != nil {
			return nil, fmt.Errorf("invalid JWT signature encoding: %w", err)
		}

		if !hmac.Equal(expectedSig, actualSig) {
			return nil, fmt.Errorf("invalid JWT signature")
		}
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid JWT payload encoding: %w", err)
	}

	var claims JWTClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("invalid JWT payload JSON: %w", err)
	}

	if claims.Exp == 0 {
		return nil, fmt.Errorf("JWT missing exp claim")
	}
	if claims.Exp < time.Now().Unix() {
		return nil, fmt.Errorf("JWT expired")
	}

	return &claims, nil
}

// IsLoggedIn checks the session cookie and validates the JWT.
// Returns (true, claims) if valid, (false, nil) otherwise.
func IsLoggedIn(r *http.Request, secret []byte) (bool, *JWTClaims) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		return false, nil
	}

	claims, err := ValidateJWT(cookie.Value, secret)
	if err != nil {
		return false, nil
	}

	return true, claims
}

// AuthHandler handles sign-in and sign-out requests against the session
// reconciler.
type AuthHandler struct {
	logger     *common.Logger
	reconciler *session.Reconciler
	jwtSecret  []byte
	secureOnly bool
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(logger *common.Logger, rec *session.Reconciler, jwtSecret []byte, secureOnly bool) *AuthHandler {
	return &AuthHandler{
		logger:     logger,
		reconciler: rec,
		jwtSecret:  jwtSecret,
		secureOnly: secureOnly,
	}
}

// HandleLogin handles POST /api/auth/login with a JSON credential body.
// On success the session is already populated (the reconciler runs
// load-or-fallback synchronously) and a signed session cookie is set.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var cred authprovider.Credential
	if err := json.NewDecoder(r.Body).Decode(&cred); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cred.Email = strings.TrimSpace(cred.Email)
	if cred.Email == "" || cred.Password == "" {
		respondError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	state, err := h.reconciler.SignIn(r.Context(), cred)
	if err != nil {
		var authErr *authprovider.AuthError
		switch {
		case errors.Is(err, authprovider.ErrNotConfigured):
			h.logger.Error().Msg("sign-in attempted with unconfigured auth provider")
			respondError(w, http.StatusServiceUnavailable, "authentication is not configured")
		case errors.As(err, &authErr):
			h.logger.Warn().Str("email", cred.Email).Str("error", err.Error()).Msg("sign-in failed")
			respondError(w, http.StatusUnauthorized, "invalid credentials")
		default:
			h.logger.Error().Str("error", err.Error()).Msg("sign-in failed unexpectedly")
			respondError(w, http.StatusInternalServerError, "sign-in failed")
		}
		return
	}

	now := time.Now()
	token, err := GenerateJWT(JWTClaims{
		Sub:   state.Identity.UID,
		Email: state.Identity.Email,
		Name:  state.Identity.DisplayName,
		Iss:   "cvfolio-portal",
		Iat:   now.Unix(),
		Exp:   now.Add(sessionTTL).Unix(),
	}, h.jwtSecret)
	if err != nil {
		h.logger.Error().Str("error", err.Error()).Msg("failed to sign session token")
		respondError(w, http.StatusInternalServerError, "sign-in failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureOnly,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})

	respondData(w, http.StatusOK, state)
}

// HandleLogout handles POST /api/auth/logout. The reconciler clears the
// session and purges the user's cache entry; the cookie is expired.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.reconciler.SignOut(r.Context()); err != nil {
		h.logger.Error().Str("error", err.Error()).Msg("sign-out failed")
		respondError(w, http.StatusBadGateway, "sign-out failed, session unchanged")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	respondData(w, http.StatusOK, nil)
}
