package handlers

import (
	"errors"
	"net/http"
	"strings"

	"city311-api/middleware"
	"city311-api/models"
	"city311-api/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuthHandler manages operator accounts.
type AuthHandler struct {
	db          *gorm.DB
	authService *services.AuthService
	logger      *zap.Logger
}

func NewAuthHandler(db *gorm.DB, authService *services.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{db: db, authService: authService, logger: logger}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Status string      `json:"status"`
	Token  string      `json:"token"`
	User   models.User `json:"user"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := h.authService.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("hash password failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user := models.User{
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Password: hash,
		Role:     services.RoleOperator,
	}
	err = h.db.WithContext(c.Request.Context()).Create(&user).Error
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		respondError(c, http.StatusConflict, "email already registered")
		return
	case err != nil:
		h.logger.Error("create operator failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "failed to create account")
		return
	}

	token, err := h.authService.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to generate token")
		return
	}

	h.logger.Info("operator registered", zap.Uint("user_id", user.ID))
	c.JSON(http.StatusCreated, AuthResponse{Status: "success", Token: token, User: user})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	var user models.User
	err := h.db.WithContext(c.Request.Context()).
		Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).
		First(&user).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			h.logger.Error("load operator failed", zap.Error(err))
		}
		respondError(c, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if !h.authService.CheckPassword(user.Password, req.Password) {
		respondError(c, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.authService.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to generate token")
		return
	}

	c.JSON(http.StatusOK, AuthResponse{Status: "success", Token: token, User: user})
}

// Me echoes the identity carried by the caller's token.
func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"user_id": c.GetUint(middleware.ContextUserID),
			"email":   c.GetString(middleware.ContextEmail),
			"role":    c.GetString(middleware.ContextRole),
		},
	})
}
