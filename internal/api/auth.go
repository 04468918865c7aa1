package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"motofrete/internal/apperr"
	"motofrete/internal/auth"
	"motofrete/internal/model"
)

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	User        *model.User   `json:"user"`
	Tenant      *model.Tenant `json:"tenant"`
}

// register self-services a new tenant: geocode the address when given,
// derive a unique slug, open a 14-day trial and log the owner straight
// in.
func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c)
		return
	}
	ctx := c.Request.Context()
	email := strings.ToLower(strings.TrimSpace(req.Email))

	taken, err := s.store.EmailTaken(ctx, email)
	if err != nil {
		s.fail(c, err)
		return
	}
	if taken {
		s.fail(c, apperr.New(apperr.Conflict, "Este email já está cadastrado"))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}

	// Best effort: a tenant without coordinates still works, the
	// dispatcher falls back to the configured base.
	var lat, lng *float64
	if req.Address != "" {
		if p, err := s.geocoder.Geocode(ctx, req.Address); err == nil {
			lat, lng = &p.Lat, &p.Lng
		} else {
			s.logger.Warn("register geocode failed",
				zap.String("address", req.Address), zap.Error(err))
		}
	}

	slug, err := auth.UniqueSlug(req.Name, func(slug string) (bool, error) {
		return s.store.SlugTaken(ctx, slug)
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	now := time.Now().UTC()
	trialEnds := now.AddDate(0, 0, model.TrialDays)
	tenant := &model.Tenant{
		ID:          uuid.NewString(),
		Slug:        slug,
		Name:        req.Name,
		Email:       email,
		Phone:       req.Phone,
		Address:     req.Address,
		Lat:         lat,
		Lng:         lng,
		Plan:        model.PlanTrial,
		TrialEndsAt: &trialEnds,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateTenant(ctx, tenant); err != nil {
		s.fail(c, err)
		return
	}

	user := &model.User{
		ID:           uuid.NewString(),
		TenantID:     tenant.ID,
		Name:         req.Name,
		Email:        email,
		PasswordHash: hash,
		Role:         "owner",
		CreatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		s.fail(c, err)
		return
	}

	s.logger.Info("tenant registered",
		zap.String("tenant_id", tenant.ID), zap.String("slug", slug))
	s.respondLogin(c, http.StatusCreated, user, tenant)
}

// login checks credentials and returns a fresh token. Wrong email and
// wrong password are indistinguishable on the wire.
func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c)
		return
	}
	ctx := c.Request.Context()
	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		s.fail(c, apperr.New(apperr.Forbidden, "Email ou senha incorretos"))
		return
	}

	tenant, err := s.store.GetTenant(ctx, user.TenantID)
	if err != nil {
		s.fail(c, err)
		return
	}
	now := time.Now().UTC()
	if tenant.TrialExpired(now) && !tenant.Blocked {
		if err := s.store.SetTenantBlocked(ctx, tenant.ID, true, now); err != nil {
			s.fail(c, err)
			return
		}
		tenant.Blocked = true
	}

	// Blocked tenants still log in; the trial guard stops everything
	// else and the frontend uses the flag to show the paywall.
	s.respondLogin(c, http.StatusOK, user, tenant)
}

// me refreshes the token and returns the caller's current user and
// tenant state.
func (s *Server) me(c *gin.Context) {
	ctx := c.Request.Context()
	claims := s.claims(c)

	user, err := s.store.GetUser(ctx, claims.TenantID, claims.UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	tenant, err := s.store.GetTenant(ctx, claims.TenantID)
	if err != nil {
		s.fail(c, err)
		return
	}
	now := time.Now().UTC()
	if tenant.TrialExpired(now) && !tenant.Blocked {
		if err := s.store.SetTenantBlocked(ctx, tenant.ID, true, now); err != nil {
			s.fail(c, err)
			return
		}
		tenant.Blocked = true
	}
	s.respondLogin(c, http.StatusOK, user, tenant)
}

func (s *Server) respondLogin(c *gin.Context, status int, user *model.User, tenant *model.Tenant) {
	token, err := s.tokens.Issue(user.ID, tenant.ID, user.Email, user.Role)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(status, loginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        user,
		Tenant:      tenant,
	})
}
