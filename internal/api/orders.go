package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"motofrete/internal/apperr"
	"motofrete/internal/auth"
	"motofrete/internal/events"
	"motofrete/internal/model"
)

type createOrderRequest struct {
	CustomerName  string         `json:"customer_name"`
	CustomerPhone *string        `json:"customer_phone"`
	AddressText   string         `json:"address_text" binding:"required"`
	Lat           *float64       `json:"lat" binding:"omitempty,latitude"`
	Lng           *float64       `json:"lng" binding:"omitempty,longitude"`
	PrepType      model.PrepType `json:"prep_type" binding:"required,preptype"`
}

// createOrder registers a delivery. Coordinates come from the request
// when the caller already has them; otherwise the address is geocoded
// and a failure there is the caller's problem, not a 500.
func (s *Server) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c)
		return
	}
	ctx := c.Request.Context()

	var lat, lng float64
	if req.Lat != nil && req.Lng != nil {
		lat, lng = *req.Lat, *req.Lng
	} else {
		p, err := s.geocoder.Geocode(ctx, req.AddressText)
		if err != nil {
			s.fail(c, apperr.Newf(apperr.Validation,
				"Não foi possível encontrar o endereço: %s", req.AddressText))
			return
		}
		lat, lng = p.Lat, p.Lng
	}

	now := time.Now().UTC()
	order := &model.Order{
		ID:            uuid.NewString(),
		TenantID:      s.tenantID(c),
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		AddressText:   req.AddressText,
		Lat:           lat,
		Lng:           lng,
		PrepType:      req.PrepType,
		Status:        model.OrderPreparing,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateOrder(ctx, order); err != nil {
		s.fail(c, err)
		return
	}

	s.events.Publish(ctx, events.Envelope{
		Event: events.OrderCreated, TenantID: order.TenantID,
		OrderID: order.ID, At: now,
	})
	c.JSON(http.StatusCreated, order)
}

func (s *Server) listOrders(c *gin.Context) {
	var status *model.OrderStatus
	if raw := c.Query("status"); raw != "" {
		st := model.OrderStatus(raw)
		if !st.Valid() {
			s.fail(c, apperr.Newf(apperr.Validation, "Status inválido: %s", raw))
			return
		}
		status = &st
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	orders, err := s.store.ListOrders(c.Request.Context(), s.tenantID(c), status, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) getOrder(c *gin.Context) {
	order, err := s.store.GetOrder(c.Request.Context(), s.tenantID(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// scanOrder is the kitchen's "bipar": the order joins the dispatch
// queue.
func (s *Server) scanOrder(c *gin.Context) {
	ctx := c.Request.Context()
	order, err := s.store.GetOrder(ctx, s.tenantID(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	now := time.Now().UTC()
	if err := order.Scan(now); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.store.UpdateOrder(ctx, order); err != nil {
		s.fail(c, err)
		return
	}
	s.events.Publish(ctx, events.Envelope{
		Event: events.OrderReady, TenantID: order.TenantID,
		OrderID: order.ID, At: now,
	})
	c.JSON(http.StatusOK, order)
}

func (s *Server) pickupOrder(c *gin.Context) {
	ctx := c.Request.Context()
	order, err := s.store.GetOrder(ctx, s.tenantID(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.applyPickup(ctx, order); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) deliverOrder(c *gin.Context) {
	ctx := c.Request.Context()
	order, err := s.store.GetOrder(ctx, s.tenantID(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.applyDeliver(ctx, order); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// cancelOrder takes an order out of play at any non-terminal point. A
// batched order leaves a hole in its batch; the batch itself stays.
func (s *Server) cancelOrder(c *gin.Context) {
	ctx := c.Request.Context()
	order, err := s.store.GetOrder(ctx, s.tenantID(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	now := time.Now().UTC()
	if err := order.Cancel(now); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.store.UpdateOrder(ctx, order); err != nil {
		s.fail(c, err)
		return
	}
	s.events.Publish(ctx, events.Envelope{
		Event: events.OrderCancelled, TenantID: order.TenantID,
		OrderID: order.ID, At: now,
	})
	if err := s.maybeCompleteBatch(ctx, order, now); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// applyPickup runs the pickup transition and flips the batch to
// in_progress on the courier's first action.
func (s *Server) applyPickup(ctx context.Context, order *model.Order) error {
	now := time.Now().UTC()
	if err := order.Pickup(now); err != nil {
		return err
	}
	if err := s.store.UpdateOrder(ctx, order); err != nil {
		return err
	}
	if order.BatchID != nil {
		batch, err := s.store.GetBatch(ctx, order.TenantID, *order.BatchID)
		if err != nil {
			return err
		}
		if batch.Status == model.BatchAssigned {
			if err := batch.Start(); err != nil {
				return err
			}
			if err := s.store.UpdateBatch(ctx, batch); err != nil {
				return err
			}
		}
	}
	s.events.Publish(ctx, events.Envelope{
		Event: events.OrderPickedUp, TenantID: order.TenantID,
		OrderID: order.ID, At: now,
	})
	return nil
}

// applyDeliver runs the delivery transition and closes the batch when
// this was its last open order.
func (s *Server) applyDeliver(ctx context.Context, order *model.Order) error {
	now := time.Now().UTC()
	if err := order.Deliver(now); err != nil {
		return err
	}
	if err := s.store.UpdateOrder(ctx, order); err != nil {
		return err
	}
	s.events.Publish(ctx, events.Envelope{
		Event: events.OrderDelivered, TenantID: order.TenantID,
		OrderID: order.ID, At: now,
	})
	return s.maybeCompleteBatch(ctx, order, now)
}

// maybeCompleteBatch finishes the order's batch once every contained
// order is terminal, returning the courier to the queue.
func (s *Server) maybeCompleteBatch(ctx context.Context, order *model.Order, now time.Time) error {
	if order.BatchID == nil {
		return nil
	}
	batch, err := s.store.GetBatch(ctx, order.TenantID, *order.BatchID)
	if err != nil {
		return err
	}
	if !batch.Active() {
		return nil
	}
	siblings, err := s.store.BatchOrders(ctx, order.TenantID, batch.ID)
	if err != nil {
		return err
	}
	for _, o := range siblings {
		if !o.Status.Terminal() {
			return nil
		}
	}

	if err := batch.Complete(true, now); err != nil {
		return err
	}
	if err := s.store.UpdateBatch(ctx, batch); err != nil {
		return err
	}
	courier, err := s.store.GetCourier(ctx, order.TenantID, batch.CourierID)
	if err != nil {
		return err
	}
	if courier.Status == model.CourierBusy {
		if err := courier.Release(now); err != nil {
			return err
		}
		if err := s.store.UpdateCourier(ctx, courier); err != nil {
			return err
		}
	}
	s.events.Publish(ctx, events.Envelope{
		Event: events.BatchCompleted, TenantID: order.TenantID,
		BatchID: batch.ID, At: now,
	})
	return nil
}

// trackOrder is the customer-facing status page: no auth, keyed by the
// opaque tracking code, exposing only what the customer already knows.
func (s *Server) trackOrder(c *gin.Context) {
	order, err := s.store.GetOrderByTracking(c.Request.Context(), c.Param("code"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tracking_code": order.TrackingCode,
		"short_id":      order.ShortID,
		"customer_name": order.CustomerName,
		"address_text":  order.AddressText,
		"status":        order.Status,
		"created_at":    order.CreatedAt,
		"ready_at":      order.ReadyAt,
		"delivered_at":  order.DeliveredAt,
	})
}

const searchLimit = 10

// searchOrders is the operator's quick lookup over non-terminal orders:
// customer name (accent-insensitive), phone suffix, short id with or
// without the leading #, or tracking code.
func (s *Server) searchOrders(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusOK, []model.Order{})
		return
	}
	active, err := s.store.ActiveOrders(c.Request.Context(), s.tenantID(c))
	if err != nil {
		s.fail(c, err)
		return
	}

	folded := auth.Fold(q)
	digits := onlyDigits(q)
	shortID, _ := strconv.Atoi(strings.TrimPrefix(q, "#"))

	matches := []model.Order{}
	for _, o := range active {
		if len(matches) >= searchLimit {
			break
		}
		switch {
		case strings.Contains(auth.Fold(o.CustomerName), folded):
		case digits != "" && o.CustomerPhone != nil &&
			strings.HasSuffix(onlyDigits(*o.CustomerPhone), digits):
		case shortID > 0 && o.ShortID == shortID:
		case strings.EqualFold(o.TrackingCode, q):
		default:
			continue
		}
		matches = append(matches, o)
	}
	c.JSON(http.StatusOK, matches)
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
