package handlers

import (
	"net/http"
	"time"

	intdb "temani/internal/db"
	"temani/internal/domain"
	"temani/internal/domain/models"
	"temani/internal/repositories"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler serves register/login. The JWT secret comes from env so
// deployments can rotate it.
type AuthHandler struct {
	Users     repositories.UserRepository
	JWTSecret []byte
	TokenTTL  time.Duration
}

// AuthUser is the user payload returned by auth endpoints.
type AuthUser struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Role  string `json:"role"`
}

type registerRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	Role            string `json:"role"`
	PayoutRecipient string `json:"payout_recipient"`
}

// POST /api/auth/register
func (h AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	role := models.Role(req.Role)
	if role != models.RoleClient && role != models.RoleCompanion {
		RespondError(c, http.StatusBadRequest, "role harus client atau companion", nil)
		return
	}
	if len(req.Password) < 8 {
		RespondError(c, http.StatusBadRequest, "password minimal 8 karakter", nil)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "gagal meng-hash password", err)
		return
	}

	id, err := h.Users.Create(models.User{
		Name:            req.Name,
		Email:           req.Email,
		Phone:           req.Phone,
		PasswordHash:    string(hash),
		Role:            role,
		PayoutRecipient: req.PayoutRecipient,
	})
	if err != nil {
		if intdb.IsDuplicate(err) {
			RespondError(c, http.StatusBadRequest, "email sudah terdaftar", nil)
			return
		}
		RespondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "registrasi berhasil",
		"user": AuthUser{
			ID:    id,
			Name:  req.Name,
			Email: req.Email,
			Phone: req.Phone,
			Role:  req.Role,
		},
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// POST /api/auth/login
func (h AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !BindJSONOrError(c, &req) {
		return
	}

	u, err := h.Users.GetByEmail(req.Email)
	if err != nil {
		if domain.IsNotFound(err) {
			RespondError(c, http.StatusUnauthorized, "email atau password salah", nil)
			return
		}
		RespondDomainError(c, err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		RespondError(c, http.StatusUnauthorized, "email atau password salah", nil)
		return
	}

	ttl := h.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": u.ID,
		"role":    string(u.Role),
		"exp":     time.Now().Add(ttl).Unix(),
	})
	signed, err := token.SignedString(h.JWTSecret)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "gagal membuat token", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": signed,
		"user": AuthUser{
			ID:    u.ID,
			Name:  u.Name,
			Email: u.Email,
			Phone: u.Phone,
			Role:  string(u.Role),
		},
	})
}
