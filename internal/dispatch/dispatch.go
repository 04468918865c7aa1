// Package dispatch turns the ready-order queue into courier batches.
// One run reads the tenant's queue and available couriers, clusters the
// orders geographically, picks a stop order by road distance from the
// tenant's base, and commits every mutation in a single transaction.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"motofrete/internal/apperr"
	"motofrete/internal/events"
	"motofrete/internal/geo"
	"motofrete/internal/model"
	"motofrete/internal/routing"
	"motofrete/internal/store"
)

// Clustering constants. SameAddressKm is 50 m: two orders that close are
// one doorstep and must never be separated.
const (
	SameAddressKm       = 0.05
	ClusterRadiusKm     = 3.0
	PreferredPerCourier = 4
	MaxAbsolute         = 6
)

// staleRetries bounds how often a run restarts after losing a
// compare-and-set race to another process.
const staleRetries = 3

// errStale signals that an order or courier was claimed under us and the
// whole run must be replanned.
var errStale = errors.New("dispatch state changed during commit")

// Dispatcher runs the batching algorithm. Runs for the same tenant are
// serialized in-process; the CAS claims in the store cover other
// processes.
type Dispatcher struct {
	store   *store.Store
	routing routing.Client
	events  events.Publisher
	logger  *zap.Logger

	// Base point for tenants registered without coordinates.
	defaultBase geo.Point

	// Concurrent driving-distance lookups per run.
	distanceWorkers int

	mu      sync.Mutex
	tenants map[string]*sync.Mutex
}

// New builds a dispatcher.
func New(s *store.Store, rc routing.Client, pub events.Publisher, defaultBase geo.Point, distanceWorkers int, logger *zap.Logger) *Dispatcher {
	if distanceWorkers <= 0 {
		distanceWorkers = 4
	}
	return &Dispatcher{
		store:           s,
		routing:         rc,
		events:          pub,
		logger:          logger,
		defaultBase:     defaultBase,
		distanceWorkers: distanceWorkers,
		tenants:         map[string]*sync.Mutex{},
	}
}

func (d *Dispatcher) tenantLock(tenantID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.tenants[tenantID]
	if !ok {
		l = &sync.Mutex{}
		d.tenants[tenantID] = l
	}
	return l
}

// plannedBatch is one batch before commit.
type plannedBatch struct {
	id        string
	courierID string
	orders    []model.Order
}

func (p *plannedBatch) routePoints() []geo.Point {
	pts := make([]geo.Point, len(p.orders))
	for i, o := range p.orders {
		pts[i] = geo.Point{Lat: o.Lat, Lng: o.Lng}
	}
	return pts
}

// Run executes one dispatch pass for the tenant.
func (d *Dispatcher) Run(ctx context.Context, tenantID string) (*model.DispatchResult, error) {
	lock := d.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	var lastErr error
	for attempt := 0; attempt < staleRetries; attempt++ {
		res, err := d.run(ctx, tenantID)
		if errors.Is(err, errStale) {
			lastErr = err
			continue
		}
		return res, err
	}
	return nil, apperr.Wrap(apperr.Internal, "erro ao executar dispatch", lastErr)
}

func (d *Dispatcher) run(ctx context.Context, tenantID string) (*model.DispatchResult, error) {
	tenant, err := d.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	base := d.defaultBase
	if lat, lng, ok := tenant.BasePoint(); ok {
		base = geo.Point{Lat: lat, Lng: lng}
	}

	ready, err := d.store.ReadyUnbatched(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(ready) == 0 {
		return &model.DispatchResult{Message: "Nenhum pedido pronto aguardando"}, nil
	}

	couriers, err := d.store.AvailableCouriers(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(couriers) == 0 {
		return &model.DispatchResult{
			Message: fmt.Sprintf("%d pedido(s) pronto(s), mas nenhum motoqueiro disponível", len(ready)),
		}, nil
	}

	groups := splitOversize(mergeNearby(groupSameAddress(ready)))

	// FIFO fairness: the first groups go to the longest-waiting
	// couriers; the rest becomes orphans.
	n := len(groups)
	if len(couriers) < n {
		n = len(couriers)
	}

	now := time.Now().UTC()
	batches := make([]*plannedBatch, 0, n)
	for i := 0; i < n; i++ {
		ordered, err := d.orderStops(ctx, base, groups[i])
		if err != nil {
			return nil, err
		}
		batches = append(batches, &plannedBatch{
			id:        uuid.NewString(),
			courierID: couriers[i].ID,
			orders:    ordered,
		})
	}

	var orphansLeft []model.Order
	for _, group := range groups[n:] {
		for _, o := range group {
			if !absorbOrphan(batches, o) {
				orphansLeft = append(orphansLeft, o)
			}
		}
	}

	if err := d.commit(ctx, tenantID, batches, now); err != nil {
		return nil, err
	}

	assigned := 0
	for _, b := range batches {
		assigned += len(b.orders)
		d.events.Publish(ctx, events.Envelope{
			Event: events.BatchCreated, TenantID: tenantID, BatchID: b.id, At: now,
		})
		for _, o := range b.orders {
			d.events.Publish(ctx, events.Envelope{
				Event: events.OrderAssigned, TenantID: tenantID,
				OrderID: o.ID, BatchID: b.id, At: now,
			})
		}
	}

	msg := fmt.Sprintf("%d lote(s) criado(s), %d pedido(s) atribuído(s)", len(batches), assigned)
	if len(orphansLeft) > 0 {
		msg += fmt.Sprintf(", %d pedido(s) aguardando motoqueiro", len(orphansLeft))
	}

	d.logger.Info("dispatch run finished",
		zap.String("tenant_id", tenantID),
		zap.Int("batches", len(batches)),
		zap.Int("orders", assigned),
		zap.Int("orphans", len(orphansLeft)))

	return &model.DispatchResult{
		BatchesCreated: len(batches),
		OrdersAssigned: assigned,
		Message:        msg,
	}, nil
}

// orderStops sorts a group by road distance from the base, ascending,
// ties broken by order id. Distance lookups fan out concurrently; each
// falls back internally, so the sort is always deterministic.
func (d *Dispatcher) orderStops(ctx context.Context, base geo.Point, group []model.Order) ([]model.Order, error) {
	dists := make([]float64, len(group))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.distanceWorkers)
	for i, o := range group {
		i, o := i, o
		g.Go(func() error {
			dists[i] = d.routing.DrivingDistanceMeters(gctx,
				base, geo.Point{Lat: o.Lat, Lng: o.Lng})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	idx := make([]int, len(group))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		if dists[idx[a]] != dists[idx[b]] {
			return dists[idx[a]] < dists[idx[b]]
		}
		return group[idx[a]].ID < group[idx[b]].ID
	})

	ordered := make([]model.Order, len(group))
	for i, j := range idx {
		ordered[i] = group[j]
	}
	return ordered, nil
}

// commit lands every batch of the run in one transaction. Claims are
// compare-and-set; any miss means another process moved the state and
// the run replans.
func (d *Dispatcher) commit(ctx context.Context, tenantID string, batches []*plannedBatch, now time.Time) error {
	if len(batches) == 0 {
		return nil
	}
	// The plan is final once commit starts: a client hanging up must not
	// leave the run half-applied, so the transaction outlives the request.
	ctx = context.WithoutCancel(ctx)
	return d.store.InTx(ctx, func(tx *store.Tx) error {
		for _, b := range batches {
			ok, err := tx.MarkCourierBusy(ctx, tenantID, b.courierID, now)
			if err != nil {
				return err
			}
			if !ok {
				return errStale
			}
			if err := tx.CreateBatch(ctx, &model.Batch{
				ID:        b.id,
				TenantID:  tenantID,
				CourierID: b.courierID,
				Status:    model.BatchAssigned,
				CreatedAt: now,
			}); err != nil {
				return err
			}
			for stop, o := range b.orders {
				ok, err := tx.ClaimOrder(ctx, tenantID, o.ID, b.id, stop+1, now)
				if err != nil {
					return err
				}
				if !ok {
					return errStale
				}
			}
		}
		return nil
	})
}
