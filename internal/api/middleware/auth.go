package middleware

import (
	"crypto/rand"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/printdesk/fleet/internal/db"
)

const bearerPrefix = "Bearer "

type Claims struct {
	jwt.RegisteredClaims
	AdminID string `json:"admin_id"`
	StoreID string `json:"store_id"`
}

// AuthMiddleware issues and verifies supervisor tokens. The first
// signup bootstraps the installation; after that every supervisor
// route requires a valid bearer token.
type AuthMiddleware struct {
	secret        []byte
	tokenDuration time.Duration
}

func NewAuthMiddleware(secret string, tokenDuration time.Duration) *AuthMiddleware {
	if tokenDuration <= 0 {
		tokenDuration = 24 * time.Hour
	}

	key := []byte(secret)
	if len(key) == 0 {
		// Ephemeral secret: tokens do not survive a restart, which is
		// acceptable for unconfigured development setups.
		key = make([]byte, 32)
		_, _ = rand.Read(key)
	}

	return &AuthMiddleware{secret: key, tokenDuration: tokenDuration}
}

type SigninRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type SignupRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
	StoreID  string `json:"store_id" binding:"required"`
}

type TokenResponse struct {
	Token   string `json:"token"`
	AdminID string `json:"admin_id"`
	StoreID string `json:"store_id"`
}

func (a *AuthMiddleware) issueToken(adminID, storeID string) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   adminID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.tokenDuration)),
		},
		AdminID: adminID,
		StoreID: storeID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Signup creates the first supervisor account. Once any supervisor
// exists, further accounts require an authenticated caller.
func (a *AuthMiddleware) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}

	count, err := db.Supervisors.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database_error", "message": "failed to check supervisors"})
		return
	}
	if count > 0 && c.GetString("admin_id") == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "supervisor accounts already exist"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to hash password"})
		return
	}

	sup := &db.Supervisor{
		AdminID:      uuid.NewString(),
		StoreID:      req.StoreID,
		Username:     req.Username,
		PasswordHash: string(hash),
	}
	if err := db.Supervisors.Create(c.Request.Context(), sup); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": "username already taken"})
		return
	}

	token, err := a.issueToken(sup.AdminID, sup.StoreID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to issue token"})
		return
	}

	c.JSON(http.StatusCreated, TokenResponse{Token: token, AdminID: sup.AdminID, StoreID: sup.StoreID})
}

func (a *AuthMiddleware) Signin(c *gin.Context) {
	var req SigninRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}

	sup, err := db.Supervisors.GetByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database_error", "message": "failed to load supervisor"})
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(sup.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "invalid credentials"})
		return
	}

	_ = db.Supervisors.TouchLogin(c.Request.Context(), sup.AdminID)

	token, err := a.issueToken(sup.AdminID, sup.StoreID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{Token: token, AdminID: sup.AdminID, StoreID: sup.StoreID})
}

// RequireAuth guards supervisor routes.
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "missing bearer token"})
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, bearerPrefix), claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return a.secret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "invalid token"})
			return
		}

		c.Set("admin_id", claims.AdminID)
		c.Set("store_id", claims.StoreID)
		c.Next()
	}
}
