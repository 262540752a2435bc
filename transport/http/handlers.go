package http

import (
	"errors"
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/superpool/walletauth/core"
	"github.com/superpool/walletauth/internal/eth"
	"github.com/superpool/walletauth/service"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService     *service.AuthService
	appCheckService *service.AppCheckService
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, appCheckService *service.AppCheckService) *AuthHandlers {
	return &AuthHandlers{
		authService:     authService,
		appCheckService: appCheckService,
	}
}

// statusForCode maps protocol error codes onto HTTP statuses.
func statusForCode(code core.Code) int {
	switch code {
	case core.CodeInvalidArgument:
		return http.StatusBadRequest
	case core.CodeNotFound:
		return http.StatusNotFound
	case core.CodeDeadlineExceeded:
		return http.StatusRequestTimeout
	case core.CodeUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	var coded *core.Error
	if errors.As(err, &coded) {
		c.JSON(statusForCode(coded.Code), gin.H{
			"error": coded.Message,
			"code":  string(coded.Code),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "internal error",
		"code":  string(core.CodeInternal),
	})
}

// GenerateMessage handles the authentication message request
func (h *AuthHandlers) GenerateMessage(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "wallet address is required", "code": string(core.CodeInvalidArgument)})
		return
	}

	msg, err := h.authService.GenerateMessage(c.Request.Context(), req.Address)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   msg.Message,
		"nonce":     msg.Nonce,
		"timestamp": msg.Timestamp,
	})
}

// VerifyAndLogin handles the signature verification request
func (h *AuthHandlers) VerifyAndLogin(c *gin.Context) {
	var req struct {
		Address       string `json:"address" binding:"required"`
		Signature     string `json:"signature" binding:"required"`
		SignatureType string `json:"signature_type"`
		ChainID       int64  `json:"chain_id"`
		DeviceID      string `json:"device_id"`
		Platform      string `json:"platform"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address and signature are required", "code": string(core.CodeInvalidArgument)})
		return
	}

	sigType, err := eth.ParseSignatureType(req.SignatureType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": string(core.CodeInvalidArgument)})
		return
	}

	var chainID *big.Int
	if req.ChainID != 0 {
		chainID = big.NewInt(req.ChainID)
	}

	result, err := h.authService.VerifyAndLogin(c.Request.Context(), service.VerifyLoginRequest{
		WalletAddress: req.Address,
		Signature:     req.Signature,
		SignatureType: sigType,
		ChainID:       chainID,
		DeviceID:      req.DeviceID,
		Platform:      req.Platform,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"token_type":    "Bearer",
		"user":          result.User,
	})
}

// MintAppCheck handles device-attestation token minting. POST only:
// wrong methods get 405, missing device ids 400, unapproved devices 403.
func (h *AuthHandlers) MintAppCheck(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
		return
	}

	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.DeviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device id is required", "code": string(core.CodeInvalidArgument)})
		return
	}

	minted, err := h.appCheckService.Mint(c.Request.Context(), req.DeviceID)
	if err != nil {
		// Device attestation treats every verification failure as a
		// forbidden device rather than a retryable auth error.
		if core.CodeOf(err) == core.CodeUnauthenticated {
			c.JSON(http.StatusForbidden, gin.H{"error": "device is not approved", "code": string(core.CodeUnauthenticated)})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"appCheckToken":    minted.AppCheckToken,
		"expireTimeMillis": minted.ExpireTimeMillis,
	})
}

// Refresh handles token refresh
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh token is required"})
		return
	}

	accessToken, refreshToken, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errorMsg := "failed to refresh tokens"

		switch {
		case errors.Is(err, core.ErrTokenExpired):
			statusCode = http.StatusUnauthorized
			errorMsg = "refresh token expired"
		case errors.Is(err, core.ErrTokenInvalidated):
			statusCode = http.StatusUnauthorized
			errorMsg = "refresh token has been invalidated"
		case errors.Is(err, core.ErrInvalidToken):
			statusCode = http.StatusBadRequest
			errorMsg = "invalid refresh token"
		}

		c.JSON(statusCode, gin.H{"error": errorMsg})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "Bearer",
	})
}

// Logout handles session logout
func (h *AuthHandlers) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh token is required"})
		return
	}

	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		if errors.Is(err, core.ErrTokenExpired) {
			// Expired tokens still count as logged out.
			c.JSON(http.StatusOK, gin.H{"message": "logged out"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid refresh token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns information about the authenticated user
func (h *AuthHandlers) Me(c *gin.Context) {
	address, exists := c.Get("userAddress")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user not found in context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address": address,
	})
}

// Authorize checks if a user is authorized
func (h *AuthHandlers) Authorize(c *gin.Context) {
	address, exists := c.Get("userAddress")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user not found in context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authorized": true,
		"address":    address,
	})
}
