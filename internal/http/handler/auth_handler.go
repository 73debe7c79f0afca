package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	domainoauth "github.com/smallbiznis/calendar-bridge/internal/domain/oauth"
	"github.com/smallbiznis/calendar-bridge/internal/http/middleware"
	authsvc "github.com/smallbiznis/calendar-bridge/internal/service/auth"
)

const identityCookieMaxAge = 30 * 24 * 60 * 60

// AuthHandler serves the login, callback and logout endpoints.
type AuthHandler struct {
	OAuth       authsvc.OAuthService
	ServiceName string
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(oauth authsvc.OAuthService, serviceName string) *AuthHandler {
	return &AuthHandler{OAuth: oauth, ServiceName: serviceName}
}

// Root returns the service banner.
func (h *AuthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Calendar integration service", "service": h.ServiceName})
}

// Health reports liveness.
func (h *AuthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Login redirects the browser to the provider consent page.
func (h *AuthHandler) Login(c *gin.Context) {
	output, err := h.OAuth.StartLogin(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.Redirect(http.StatusFound, output.AuthorizationURL)
}

// Callback completes the authorization code flow and stores the tokens.
func (h *AuthHandler) Callback(c *gin.Context) {
	if providerErr := strings.TrimSpace(c.Query("error")); providerErr != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": providerErr, "error_description": c.Query("error_description")})
		return
	}
	if strings.TrimSpace(c.Query("code")) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Missing auth code."})
		return
	}

	session, err := h.OAuth.HandleCallback(c.Request.Context(), authsvc.CallbackInput{
		Code:  c.Query("code"),
		State: c.Query("state"),
	})
	if err != nil {
		respondCallbackError(c, err)
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middleware.IdentityCookie,
		Value:    session.Identity,
		Path:     "/",
		MaxAge:   identityCookieMaxAge,
		HttpOnly: true,
		Secure:   c.Request.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	c.JSON(http.StatusOK, gin.H{
		"message":    "Authentication successful!",
		"identity":   session.Identity,
		"expires_at": session.ExpiresAt,
	})
}

// Logout deletes the caller's stored tokens.
func (h *AuthHandler) Logout(c *gin.Context) {
	identity, _ := middleware.GetIdentity(c)
	if err := h.OAuth.Logout(c.Request.Context(), identity); err != nil {
		respondServiceError(c, err)
		return
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middleware.IdentityCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Request.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// Failed exchanges are reported as a bad callback rather than an auth error.
func respondCallbackError(c *gin.Context, err error) {
	if errors.Is(err, domainoauth.ErrAuthenticationFailed) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authentication_failed", "error_description": "Authentication failed."})
		return
	}
	respondServiceError(c, err)
}
