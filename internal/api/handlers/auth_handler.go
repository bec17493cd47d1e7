package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"stayspot/internal/pkg/errors"
	"stayspot/internal/platform/auth"
	"stayspot/internal/platform/models"
	"stayspot/internal/platform/repositories"
)

type AuthHandler struct {
	companies *repositories.CompanyRepository
	users     *repositories.UserRepository
	tokenSvc  *auth.TokenService
}

func NewAuthHandler(companyRepo *repositories.CompanyRepository, userRepo *repositories.UserRepository, tokenSvc *auth.TokenService) *AuthHandler {
	return &AuthHandler{companies: companyRepo, users: userRepo, tokenSvc: tokenSvc}
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Signup creates a company and its first admin user in one transaction.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompanyName string `json:"companyName"`
		Email       string `json:"email"`
		Password    string `json:"password"`
		FirstName   string `json:"firstName"`
		LastName    string `json:"lastName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.CompanyName == "" || req.Email == "" || len(req.Password) < 8 {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Company name, email and a password of at least 8 characters are required", nil)
		return
	}

	existing, err := h.users.GetByEmail(req.Email)
	if err != nil {
		h.internalError(w, err, "failed to check existing user")
		return
	}
	if existing != nil {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeInvalidState, "A user with this email already exists", nil)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.internalError(w, err, "failed to hash password")
		return
	}

	now := time.Now().Unix()
	company := &models.Company{
		ID:        "comp_" + uuid.NewString(),
		Name:      req.CompanyName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	user := &models.User{
		ID:           "usr_" + uuid.NewString(),
		CompanyID:    company.ID,
		Email:        req.Email,
		PasswordHash: string(hash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         "admin",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := h.companies.BeginTx()
	if err != nil {
		h.internalError(w, err, "failed to begin transaction")
		return
	}
	if err := h.companies.CreateTx(tx, company); err != nil {
		tx.Rollback()
		h.internalError(w, err, "failed to create company")
		return
	}
	if err := h.users.CreateTx(tx, user); err != nil {
		tx.Rollback()
		h.internalError(w, err, "failed to create user")
		return
	}
	if err := tx.Commit(); err != nil {
		h.internalError(w, err, "failed to commit signup")
		return
	}

	token, err := h.tokenSvc.GenerateAccessToken(user.ID, user.CompanyID, user.Role, user.Email, user.FirstName+" "+user.LastName)
	if err != nil {
		h.internalError(w, err, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Success bool          `json:"success"`
		Message string        `json:"message"`
		Data    *authResponse `json:"data"`
	}{true, "Account created successfully", &authResponse{Token: token, User: user}})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	user, err := h.users.GetByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		h.internalError(w, err, "failed to load user")
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid email or password", nil)
		return
	}

	token, err := h.tokenSvc.GenerateAccessToken(user.ID, user.CompanyID, user.Role, user.Email, user.FirstName+" "+user.LastName)
	if err != nil {
		h.internalError(w, err, "failed to issue token")
		return
	}

	if err := h.users.UpdateLastLogin(user.ID, time.Now().Unix()); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record last login")
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool          `json:"success"`
		Message string        `json:"message"`
		Data    *authResponse `json:"data"`
	}{true, "Login successful", &authResponse{Token: token, User: user}})
}

func (h *AuthHandler) internalError(w http.ResponseWriter, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "An internal error occurred", nil)
}
