// Package api holds the top-level HTTP handlers that do not belong to
// a resource group.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/galerly/galerly/api/common"
	"github.com/galerly/galerly/internal/auth"
)

// LoginHandler serves the authentication endpoints.
type LoginHandler struct {
	loginService *auth.LoginService
}

// NewLoginHandler creates the login handler.
func NewLoginHandler(loginService *auth.LoginService) *LoginHandler {
	return &LoginHandler{loginService: loginService}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func tokenResponse(pair *auth.TokenPair) gin.H {
	return gin.H{
		"access_token":         pair.AccessToken,
		"access_token_expiry":  pair.AccessTokenExpiry.Unix(),
		"refresh_token":        pair.RefreshToken,
		"refresh_token_expiry": pair.RefreshTokenExpiry.Unix(),
	}
}

// LoginHandlerFunc handles POST /api/auth/login.
func (h *LoginHandler) LoginHandlerFunc(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondError(c, http.StatusBadRequest, "Username and password are required")
		return
	}

	pair, err := h.loginService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			common.RespondError(c, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		common.RespondError(c, http.StatusInternalServerError, "Login failed")
		return
	}

	common.RespondSuccess(c, tokenResponse(pair))
}

// RefreshTokenHandlerFunc handles POST /api/auth/refresh.
func (h *LoginHandler) RefreshTokenHandlerFunc(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondError(c, http.StatusBadRequest, "refresh_token is required")
		return
	}

	pair, err := h.loginService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidRefreshToken) {
			common.RespondError(c, http.StatusUnauthorized, "Invalid or expired refresh token")
			return
		}
		common.RespondError(c, http.StatusInternalServerError, "Token refresh failed")
		return
	}

	common.RespondSuccess(c, tokenResponse(pair))
}

// LogoutHandlerFunc handles POST /api/auth/logout.
func (h *LoginHandler) LogoutHandlerFunc(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// Logout with nothing to revoke is still a success.
		common.RespondSuccessMessage(c, "Logged out", nil)
		return
	}

	if err := h.loginService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		common.RespondError(c, http.StatusInternalServerError, "Logout failed")
		return
	}
	common.RespondSuccessMessage(c, "Logged out", nil)
}
