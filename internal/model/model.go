// Package model holds the persisted entities and their state machines.
// Transition rules live here as pure functions so the store and the HTTP
// layer never encode status logic themselves.
package model

import (
	"time"
)

// OrderStatus is the order lifecycle state.
type OrderStatus string

const (
	OrderCreated   OrderStatus = "created"
	OrderPreparing OrderStatus = "preparing"
	OrderReady     OrderStatus = "ready"
	OrderAssigned  OrderStatus = "assigned"
	OrderPickedUp  OrderStatus = "picked_up"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every order state, in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderCreated, OrderPreparing, OrderReady, OrderAssigned,
	OrderPickedUp, OrderDelivered, OrderCancelled,
}

// Terminal reports whether no further transitions are allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// Valid reports whether s is a known order state.
func (s OrderStatus) Valid() bool {
	for _, st := range OrderStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// PrepType distinguishes quick items from long-preparation ones.
type PrepType string

const (
	PrepShort PrepType = "short"
	PrepLong  PrepType = "long"
)

// CourierStatus is the courier availability state.
type CourierStatus string

const (
	CourierOffline   CourierStatus = "offline"
	CourierAvailable CourierStatus = "available"
	CourierBusy      CourierStatus = "busy"
)

// CourierStatuses lists every courier state.
var CourierStatuses = []CourierStatus{CourierOffline, CourierAvailable, CourierBusy}

// Valid reports whether s is a known courier state.
func (s CourierStatus) Valid() bool {
	return s == CourierOffline || s == CourierAvailable || s == CourierBusy
}

// BatchStatus is the batch lifecycle state.
type BatchStatus string

const (
	BatchAssigned   BatchStatus = "assigned"
	BatchInProgress BatchStatus = "in_progress"
	BatchDone       BatchStatus = "done"
)

// Plan is the tenant subscription plan.
type Plan string

const (
	PlanTrial Plan = "trial"
	PlanBasic Plan = "basic"
	PlanPro   Plan = "pro"
)

// TrialDays is how long a self-registered tenant runs before blocking.
const TrialDays = 14

// Tenant is a restaurant account, the multi-tenancy unit.
type Tenant struct {
	ID          string     `json:"id" db:"id"`
	Slug        string     `json:"slug" db:"slug"`
	Name        string     `json:"name" db:"name"`
	Email       string     `json:"email" db:"email"`
	Phone       string     `json:"phone" db:"phone"`
	Address     string     `json:"address" db:"address"`
	Lat         *float64   `json:"lat" db:"lat"`
	Lng         *float64   `json:"lng" db:"lng"`
	Plan        Plan       `json:"plan" db:"plan"`
	TrialEndsAt *time.Time `json:"trial_ends_at" db:"trial_ends_at"`
	Blocked     bool       `json:"blocked" db:"blocked"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// TrialExpired reports whether a trial tenant ran past its window.
func (t *Tenant) TrialExpired(now time.Time) bool {
	return t.Plan == PlanTrial && t.TrialEndsAt != nil && now.After(*t.TrialEndsAt)
}

// BasePoint returns the tenant's dispatch origin, or ok=false when the
// tenant was registered without coordinates.
func (t *Tenant) BasePoint() (lat, lng float64, ok bool) {
	if t.Lat == nil || t.Lng == nil {
		return 0, 0, false
	}
	return *t.Lat, *t.Lng, true
}

// User is an operator login bound to one tenant.
type User struct {
	ID           string    `json:"id" db:"id"`
	TenantID     string    `json:"tenant_id" db:"tenant_id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         string    `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Order is a delivery request moving through the dispatch lifecycle.
type Order struct {
	ID            string      `json:"id" db:"id"`
	TenantID      string      `json:"tenant_id" db:"tenant_id"`
	ShortID       int         `json:"short_id" db:"short_id"`
	TrackingCode  string      `json:"tracking_code" db:"tracking_code"`
	CustomerName  string      `json:"customer_name" db:"customer_name"`
	CustomerPhone *string     `json:"customer_phone,omitempty" db:"customer_phone"`
	AddressText   string      `json:"address_text" db:"address_text"`
	Lat           float64     `json:"lat" db:"lat"`
	Lng           float64     `json:"lng" db:"lng"`
	PrepType      PrepType    `json:"prep_type" db:"prep_type"`
	Status        OrderStatus `json:"status" db:"status"`
	BatchID       *string     `json:"batch_id" db:"batch_id"`
	StopOrder     *int        `json:"stop_order" db:"stop_order"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	ReadyAt       *time.Time  `json:"ready_at" db:"ready_at"`
	DeliveredAt   *time.Time  `json:"delivered_at" db:"delivered_at"`
	CancelledAt   *time.Time  `json:"cancelled_at" db:"cancelled_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
}

// Courier is a delivery rider belonging to one tenant.
type Courier struct {
	ID             string        `json:"id" db:"id"`
	TenantID       string        `json:"tenant_id" db:"tenant_id"`
	Name           string        `json:"name" db:"name"`
	Phone          string        `json:"phone" db:"phone"`
	PasswordHash   *string       `json:"-" db:"password_hash"`
	Status         CourierStatus `json:"status" db:"status"`
	LastLat        *float64      `json:"last_lat" db:"last_lat"`
	LastLng        *float64      `json:"last_lng" db:"last_lng"`
	AvailableSince *time.Time    `json:"available_since" db:"available_since"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// Batch is one courier's delivery run of 1..6 orders.
type Batch struct {
	ID          string      `json:"id" db:"id"`
	TenantID    string      `json:"tenant_id" db:"tenant_id"`
	CourierID   string      `json:"courier_id" db:"courier_id"`
	Status      BatchStatus `json:"status" db:"status"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	CompletedAt *time.Time  `json:"completed_at" db:"completed_at"`
}

// Active reports whether the batch still owns its courier.
func (b *Batch) Active() bool {
	return b.Status == BatchAssigned || b.Status == BatchInProgress
}

// DemandPattern is one learned (weekday, hour) demand slot for a tenant.
// Weekday follows the stored convention 0=Monday .. 6=Sunday.
type DemandPattern struct {
	ID                  string    `json:"id" db:"id"`
	TenantID            string    `json:"tenant_id" db:"tenant_id"`
	Weekday             int       `json:"dia_semana" db:"weekday"`
	Hour                int       `json:"hora" db:"hour"`
	AvgOrdersPerHour    float64   `json:"media_pedidos_hora" db:"avg_orders_per_hour"`
	AvgPrepMin          float64   `json:"media_tempo_preparo" db:"avg_prep_min"`
	AvgRouteMin         float64   `json:"media_tempo_rota" db:"avg_route_min"`
	RecommendedCouriers int       `json:"motoboys_recomendados" db:"recommended_couriers"`
	Samples             int       `json:"amostras" db:"samples"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// WeekdayFromTime converts Go's Sunday-first weekday into the stored
// Monday-first convention.
func WeekdayFromTime(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// WeekdayName returns the Portuguese weekday name for the stored convention.
func WeekdayName(weekday int) string {
	names := []string{"Segunda", "Terça", "Quarta", "Quinta", "Sexta", "Sábado", "Domingo"}
	if weekday < 0 || weekday > 6 {
		return ""
	}
	return names[weekday]
}

// DispatchResult summarizes one dispatcher run.
type DispatchResult struct {
	BatchesCreated int    `json:"batches_created"`
	OrdersAssigned int    `json:"orders_assigned"`
	Message        string `json:"message"`
}
