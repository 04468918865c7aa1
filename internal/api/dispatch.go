package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"motofrete/internal/model"
)

// runDispatch executes one batching pass for the caller's tenant.
func (s *Server) runDispatch(c *gin.Context) {
	result, err := s.dispatcher.Run(c.Request.Context(), s.tenantID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// listBatches returns the active batches, newest first, each with its
// courier name and orders in stop order.
func (s *Server) listBatches(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := s.tenantID(c)
	batches, err := s.store.ListActiveBatches(ctx, tenantID)
	if err != nil {
		s.fail(c, err)
		return
	}
	out := []batchResponse{}
	for i := range batches {
		courier, err := s.store.GetCourier(ctx, tenantID, batches[i].CourierID)
		if err != nil {
			s.fail(c, err)
			return
		}
		resp, err := s.batchResponse(c, &batches[i], courier.Name)
		if err != nil {
			s.fail(c, err)
			return
		}
		out = append(out, *resp)
	}
	c.JSON(http.StatusOK, out)
}

// stats is the dashboard's headline numbers: everything broken down by
// status, plus the queue depth.
func (s *Server) stats(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := s.tenantID(c)

	orderCounts, err := s.store.CountOrdersByStatus(ctx, tenantID)
	if err != nil {
		s.fail(c, err)
		return
	}
	courierCounts, err := s.store.CountCouriersByStatus(ctx, tenantID)
	if err != nil {
		s.fail(c, err)
		return
	}
	activeBatches, err := s.store.CountActiveBatches(ctx, tenantID)
	if err != nil {
		s.fail(c, err)
		return
	}
	pending, err := s.store.CountReadyUnbatched(ctx, tenantID)
	if err != nil {
		s.fail(c, err)
		return
	}

	orders := gin.H{}
	for _, st := range model.OrderStatuses {
		orders[string(st)] = orderCounts[st]
	}
	couriers := gin.H{}
	for _, st := range model.CourierStatuses {
		couriers[string(st)] = courierCounts[st]
	}

	c.JSON(http.StatusOK, gin.H{
		"orders":             orders,
		"couriers":           couriers,
		"active_batches":     activeBatches,
		"pending_orders":     pending,
		"available_couriers": courierCounts[model.CourierAvailable],
	})
}

func (s *Server) metricsSnapshot(c *gin.Context) {
	snap, err := s.metrics.Collect(c.Request.Context(), s.tenantID(c), time.Now().UTC())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) alertsPanel(c *gin.Context) {
	result, err := s.alerts.Evaluate(c.Request.Context(), s.tenantID(c), time.Now().UTC())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) forecast(c *gin.Context) {
	fc, err := s.predictor.Hybrid(c.Request.Context(), s.tenantID(c), time.Now().UTC())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, fc)
}

func (s *Server) trainPatterns(c *gin.Context) {
	result, err := s.predictor.Train(c.Request.Context(), s.tenantID(c), time.Now().UTC())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) listPatterns(c *gin.Context) {
	dump, err := s.predictor.Patterns(c.Request.Context(), s.tenantID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dump)
}
