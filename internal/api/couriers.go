package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"motofrete/internal/apperr"
	"motofrete/internal/auth"
	"motofrete/internal/events"
	"motofrete/internal/geo"
	"motofrete/internal/model"
	"motofrete/internal/routing"
)

type createCourierRequest struct {
	Name     string `json:"name" binding:"required"`
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password"`
}

// createCourier registers a rider. New couriers start offline; going
// available is an explicit action so the dispatch FIFO stays honest.
func (s *Server) createCourier(c *gin.Context) {
	var req createCourierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c)
		return
	}

	var hash *string
	if req.Password != "" {
		h, err := auth.HashPassword(req.Password)
		if err != nil {
			s.fail(c, err)
			return
		}
		hash = &h
	}

	now := time.Now().UTC()
	courier := &model.Courier{
		ID:           uuid.NewString(),
		TenantID:     s.tenantID(c),
		Name:         req.Name,
		Phone:        req.Phone,
		PasswordHash: hash,
		Status:       model.CourierOffline,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateCourier(c.Request.Context(), courier); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, courier)
}

func (s *Server) listCouriers(c *gin.Context) {
	var status *model.CourierStatus
	if raw := c.Query("status"); raw != "" {
		st := model.CourierStatus(raw)
		if !st.Valid() {
			s.fail(c, apperr.Newf(apperr.Validation, "Status inválido: %s", raw))
			return
		}
		status = &st
	}
	couriers, err := s.store.ListCouriers(c.Request.Context(), s.tenantID(c), status)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, couriers)
}

func (s *Server) courierAvailable(c *gin.Context) {
	ctx := c.Request.Context()
	courier, err := s.store.GetCourier(ctx, s.tenantID(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := courier.SetAvailable(time.Now().UTC()); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.store.UpdateCourier(ctx, courier); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, courier)
}

func (s *Server) courierOffline(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := s.tenantID(c)
	courier, err := s.store.GetCourier(ctx, tenantID, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	active, err := s.store.ActiveBatchForCourier(ctx, tenantID, courier.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := courier.SetOffline(active != nil, time.Now().UTC()); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.store.UpdateCourier(ctx, courier); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, courier)
}

// batchResponse is a batch with its courier name, the orders in stop
// order and a drawable route overview, the shape the courier app
// renders.
type batchResponse struct {
	ID          string            `json:"id"`
	CourierID   string            `json:"courier_id"`
	CourierName string            `json:"courier_name"`
	Status      model.BatchStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt *time.Time        `json:"completed_at"`
	Orders      []model.Order     `json:"orders"`
	Route       *routing.Route    `json:"route,omitempty"`
}

func (s *Server) batchResponse(c *gin.Context, batch *model.Batch, courierName string) (*batchResponse, error) {
	ctx := c.Request.Context()
	orders, err := s.store.BatchOrders(ctx, batch.TenantID, batch.ID)
	if err != nil {
		return nil, err
	}

	stops := make([]geo.Point, len(orders))
	for i, o := range orders {
		stops[i] = geo.Point{Lat: o.Lat, Lng: o.Lng}
	}
	var start geo.Point
	if len(stops) > 0 {
		start = stops[0]
	}
	if tenant, err := s.store.GetTenant(ctx, batch.TenantID); err == nil {
		if lat, lng, ok := tenant.BasePoint(); ok {
			start = geo.Point{Lat: lat, Lng: lng}
		}
	}

	return &batchResponse{
		ID:          batch.ID,
		CourierID:   batch.CourierID,
		CourierName: courierName,
		Status:      batch.Status,
		CreatedAt:   batch.CreatedAt,
		CompletedAt: batch.CompletedAt,
		Orders:      orders,
		Route:       s.routing.RoutePolyline(ctx, start, stops),
	}, nil
}

// currentBatch returns the courier's active run, or a JSON null when the
// courier is idle.
func (s *Server) currentBatch(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := s.tenantID(c)
	courier, err := s.store.GetCourier(ctx, tenantID, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	batch, err := s.store.ActiveBatchForCourier(ctx, tenantID, courier.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if batch == nil {
		c.JSON(http.StatusOK, nil)
		return
	}
	resp, err := s.batchResponse(c, batch, courier.Name)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// completeBatch is the operator's "courier is back" action: remaining
// orders go to delivered, the batch closes and the courier rejoins the
// queue.
func (s *Server) completeBatch(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := s.tenantID(c)
	courier, err := s.store.GetCourier(ctx, tenantID, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	now := time.Now().UTC()
	batch, err := s.store.CompleteBatch(ctx, tenantID, courier.ID, now)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.events.Publish(ctx, events.Envelope{
		Event: events.BatchCompleted, TenantID: tenantID,
		BatchID: batch.ID, At: now,
	})

	courier, err = s.store.GetCourier(ctx, tenantID, courier.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, courier)
}

type locationRequest struct {
	Lat *float64 `json:"lat" binding:"required,latitude"`
	Lng *float64 `json:"lng" binding:"required,longitude"`
}

func (s *Server) courierLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c)
		return
	}
	err := s.store.TouchCourierLocation(c.Request.Context(), s.tenantID(c),
		c.Param("id"), *req.Lat, *req.Lng, time.Now().UTC())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Localização atualizada"})
}

func (s *Server) deleteCourier(c *gin.Context) {
	if err := s.store.DeleteCourier(c.Request.Context(), s.tenantID(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Motoqueiro removido"})
}

// Courier-facing actions. No token: the courier id is an opaque uuid
// and the order must belong to the courier's own active batch, so one
// courier can never touch another's run.

func (s *Server) courierOrder(c *gin.Context) (*model.Order, bool) {
	ctx := c.Request.Context()
	courier, err := s.store.CourierByID(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	batch, err := s.store.ActiveBatchForCourier(ctx, courier.TenantID, courier.ID)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	if batch == nil {
		s.fail(c, apperr.New(apperr.InvalidTransition, "Motoqueiro não tem lote ativo"))
		return nil, false
	}
	order, err := s.store.GetOrder(ctx, courier.TenantID, c.Param("order_id"))
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	if order.BatchID == nil || *order.BatchID != batch.ID {
		s.fail(c, apperr.New(apperr.Forbidden,
			"Pedido não pertence ao lote ativo do motoqueiro"))
		return nil, false
	}
	return order, true
}

func (s *Server) courierPickup(c *gin.Context) {
	order, ok := s.courierOrder(c)
	if !ok {
		return
	}
	if err := s.applyPickup(c.Request.Context(), order); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) courierDeliver(c *gin.Context) {
	order, ok := s.courierOrder(c)
	if !ok {
		return
	}
	if err := s.applyDeliver(c.Request.Context(), order); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
