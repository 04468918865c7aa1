// Package api is the HTTP facade. Handlers bind input, call the domain
// packages and translate error kinds to status codes; no business rule
// lives here.
package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"motofrete/internal/alerts"
	"motofrete/internal/apperr"
	"motofrete/internal/auth"
	"motofrete/internal/dispatch"
	"motofrete/internal/events"
	"motofrete/internal/geocode"
	"motofrete/internal/metrics"
	"motofrete/internal/model"
	"motofrete/internal/predict"
	"motofrete/internal/routing"
	"motofrete/internal/store"
)

const claimsKey = "auth_claims"

// Server bundles the collaborators the handlers need.
type Server struct {
	store      *store.Store
	tokens     *auth.Manager
	geocoder   geocode.Geocoder
	routing    routing.Client
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Metrics
	predictor  *predict.Predictor
	alerts     *alerts.Evaluator
	events     events.Publisher
	logger     *zap.Logger
}

// New builds the server. All collaborators are required except events,
// which defaults to the no-op publisher.
func New(s *store.Store, tokens *auth.Manager, g geocode.Geocoder,
	rc routing.Client, d *dispatch.Dispatcher, m *metrics.Metrics,
	p *predict.Predictor, a *alerts.Evaluator, pub events.Publisher,
	logger *zap.Logger) *Server {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Server{
		store:      s,
		tokens:     tokens,
		geocoder:   g,
		routing:    rc,
		dispatcher: d,
		metrics:    m,
		predictor:  p,
		alerts:     a,
		events:     pub,
		logger:     logger,
	}
}

var validatorOnce sync.Once

func registerValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterValidation("preptype", func(fl validator.FieldLevel) bool {
		t := model.PrepType(fl.Field().String())
		return t == model.PrepShort || t == model.PrepLong
	})
}

// Router wires every route. Public routes (tracking, courier actions,
// register/login) sit outside the authenticated group.
func (s *Server) Router() *gin.Engine {
	validatorOnce.Do(registerValidators)
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/auth/register", s.register)
	r.POST("/auth/login", s.login)
	r.GET("/auth/me", s.authRequired(), s.me)

	r.GET("/orders/track/:code", s.trackOrder)
	r.POST("/couriers/:id/orders/:order_id/pickup", s.courierPickup)
	r.POST("/couriers/:id/orders/:order_id/deliver", s.courierDeliver)

	priv := r.Group("", s.authRequired(), s.trialGuard())

	priv.POST("/orders", s.createOrder)
	priv.GET("/orders", s.listOrders)
	priv.GET("/orders/search", s.searchOrders)
	priv.GET("/orders/:id", s.getOrder)
	priv.POST("/orders/:id/scan", s.scanOrder)
	priv.POST("/orders/:id/pickup", s.pickupOrder)
	priv.POST("/orders/:id/deliver", s.deliverOrder)
	priv.POST("/orders/:id/cancel", s.cancelOrder)

	priv.POST("/couriers", s.createCourier)
	priv.GET("/couriers", s.listCouriers)
	priv.POST("/couriers/:id/available", s.courierAvailable)
	priv.POST("/couriers/:id/offline", s.courierOffline)
	priv.GET("/couriers/:id/current-batch", s.currentBatch)
	priv.POST("/couriers/:id/complete-batch", s.completeBatch)
	priv.PUT("/couriers/:id/location", s.courierLocation)
	priv.DELETE("/couriers/:id", s.deleteCourier)

	priv.POST("/dispatch/run", s.runDispatch)
	priv.GET("/dispatch/batches", s.listBatches)
	priv.GET("/dispatch/stats", s.stats)
	priv.GET("/dispatch/metrics", s.metricsSnapshot)
	priv.GET("/dispatch/alerts", s.alertsPanel)
	priv.GET("/dispatch/previsao", s.forecast)
	priv.POST("/dispatch/atualizar-padroes", s.trainPatterns)
	priv.GET("/dispatch/padroes", s.listPatterns)

	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

// authRequired parses the bearer token and stashes the claims. The
// tenant id used downstream always comes from here, never from input.
func (s *Server) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.fail(c, apperr.New(apperr.Forbidden, "Token inválido ou expirado"))
			return
		}
		claims, err := s.tokens.Parse(token)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// trialGuard blocks expired trials. The flag flips lazily, on the first
// request after trial_ends_at.
func (s *Server) trialGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, err := s.store.GetTenant(c.Request.Context(), s.tenantID(c))
		if err != nil {
			s.fail(c, err)
			return
		}
		now := time.Now().UTC()
		if tenant.TrialExpired(now) && !tenant.Blocked {
			if err := s.store.SetTenantBlocked(c.Request.Context(), tenant.ID, true, now); err != nil {
				s.fail(c, err)
				return
			}
			tenant.Blocked = true
		}
		if tenant.Blocked {
			s.fail(c, apperr.New(apperr.TrialExpired,
				"Período de teste expirado. Assine um plano para continuar usando."))
			return
		}
		c.Next()
	}
}

func (s *Server) claims(c *gin.Context) *auth.Claims {
	v, _ := c.Get(claimsKey)
	claims, _ := v.(*auth.Claims)
	return claims
}

func (s *Server) tenantID(c *gin.Context) string {
	if claims := s.claims(c); claims != nil {
		return claims.TenantID
	}
	return ""
}

// fail translates an error kind to a status and aborts with the
// caller-facing message. Internals never leak.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.Validation, apperr.InvalidTransition:
		status = http.StatusBadRequest
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.Forbidden:
		status = http.StatusForbidden
	case apperr.TrialExpired:
		status = http.StatusForbidden
		c.Header("X-Blocked-Reason", "trial_expired")
	case apperr.Conflict:
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": apperr.Message(err)})
}

// badRequest reports a binding failure without echoing internals.
func (s *Server) badRequest(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "Dados inválidos"})
}
