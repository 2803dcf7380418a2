package model

import "time"

// Stop kinds
const (
	KindPickup   = "pickup"
	KindDelivery = "delivery"
)

// VehicleType selects the average speed used for travel estimates.
type VehicleType string

const (
	VehicleBicycle    VehicleType = "bicycle"
	VehicleMotorcycle VehicleType = "motorcycle"
	VehicleCar        VehicleType = "car"
	VehicleVan        VehicleType = "van"
)

// Vehicles lists the supported vehicle profiles.
var Vehicles = []VehicleType{VehicleBicycle, VehicleMotorcycle, VehicleCar, VehicleVan}

type Coordinate struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// Location is a stop to visit. Deliveries reference the OrderID of their pickup.
type Location struct {
	ID           string  `json:"id" validate:"required,max=128"`
	Lat          float64 `json:"latitude"`
	Lng          float64 `json:"longitude"`
	Kind         string  `json:"kind" validate:"required"`
	OrderID      string  `json:"orderId,omitempty"`
	Address      string  `json:"address,omitempty"`
	OrderNumber  string  `json:"orderNumber,omitempty"`
	MerchantName string  `json:"merchantName,omitempty"`
	CustomerName string  `json:"customerName,omitempty"`
}

func (l Location) Point() Coordinate { return Coordinate{Lat: l.Lat, Lng: l.Lng} }

// Edge is the computed travel cost between two points.
type Edge struct {
	DistanceKm          float64 `json:"distanceKm"`
	RawDurationMin      float64 `json:"rawDurationMin"`
	TrafficMultiplier   float64 `json:"trafficMultiplier"`
	AdjustedDurationMin float64 `json:"adjustedDurationMin"`
}

type OptimizedStop struct {
	Sequence             int       `json:"sequence"`
	Location             Location  `json:"location"`
	DistanceFromPrevious float64   `json:"distanceFromPrevious"`
	DurationFromPrevious float64   `json:"durationFromPrevious"`
	CumulativeDistance   float64   `json:"cumulativeDistance"`
	CumulativeDuration   float64   `json:"cumulativeDuration"`
	EstimatedArrival     time.Time `json:"estimatedArrival"`
	OrderNumber          string    `json:"orderNumber,omitempty"`
	MerchantName         string    `json:"merchantName,omitempty"`
	CustomerName         string    `json:"customerName,omitempty"`
}

type Savings struct {
	DistanceSaved   float64 `json:"distanceSaved"`
	TimeSaved       float64 `json:"timeSaved"`
	PercentageSaved float64 `json:"percentageSaved"`
}

type RouteData struct {
	DriverLocation Coordinate      `json:"driverLocation"`
	Stops          []OptimizedStop `json:"stops"`
	TotalDistance  float64         `json:"totalDistance"`
	TotalDuration  float64         `json:"totalDuration"`
	Savings        Savings         `json:"savings"`
	OrderCount     int             `json:"orderCount"`
	Algorithm      string          `json:"algorithm,omitempty"`
	VehicleType    VehicleType     `json:"vehicleType,omitempty"`
	ComputedAt     time.Time       `json:"computedAt"`
}

type ETAData struct {
	Distance          float64   `json:"distance"`
	Duration          float64   `json:"duration"`
	ETA               time.Time `json:"eta"`
	TrafficMultiplier float64   `json:"trafficMultiplier"`
	TrafficStatus     string    `json:"trafficStatus"`
}

type DeliveryEstimate struct {
	PickupTime        float64   `json:"pickupTime"`
	TransitTime       float64   `json:"transitTime"`
	DeliveryTime      float64   `json:"deliveryTime"`
	TotalTime         float64   `json:"totalTime"`
	EstimatedDelivery time.Time `json:"estimatedDelivery"`
	Distance          float64   `json:"distance"`
	TrafficMultiplier float64   `json:"trafficMultiplier"`
}

// Assignment statuses. The first four are active for a driver.
const (
	StatusDriverAssigned = "driver_assigned"
	StatusPickedUp       = "picked_up"
	StatusInTransit      = "in_transit"
	StatusArrived        = "arrived"
	StatusDelivered      = "delivered"
	StatusCancelled      = "cancelled"
)

// ActiveStatuses are the assignment statuses that still need stops on a route.
var ActiveStatuses = []string{StatusDriverAssigned, StatusPickedUp, StatusInTransit, StatusArrived}

// IsActiveStatus reports whether an assignment in status s belongs on the driver's route.
func IsActiveStatus(s string) bool {
	for _, a := range ActiveStatuses {
		if a == s {
			return true
		}
	}
	return false
}

// IsCollected reports whether the pickup for an assignment in status s is done.
func IsCollected(s string) bool {
	return s == StatusPickedUp || s == StatusInTransit || s == StatusArrived
}

// ValidStatus reports whether s is a known assignment status.
func ValidStatus(s string) bool {
	return IsActiveStatus(s) || s == StatusDelivered || s == StatusCancelled
}

// Driver is the routing view of a driver: vehicle and last known position.
type Driver struct {
	ID          string      `json:"id"`
	TenantID    string      `json:"tenantId"`
	Name        string      `json:"name,omitempty"`
	VehicleType VehicleType `json:"vehicleType"`
	Position    *Coordinate `json:"position,omitempty"`
	PositionAt  *time.Time  `json:"positionAt,omitempty"`
}

// AssignmentIn assigns an order to a driver.
type AssignmentIn struct {
	OrderID         string  `json:"orderId" validate:"required"`
	OrderNumber     string  `json:"orderNumber,omitempty"`
	Status          string  `json:"status,omitempty" validate:"omitempty,oneof=driver_assigned picked_up in_transit arrived"`
	PickupLat       float64 `json:"pickupLatitude"`
	PickupLng       float64 `json:"pickupLongitude"`
	PickupAddress   string  `json:"pickupAddress,omitempty"`
	MerchantName    string  `json:"merchantName,omitempty"`
	DeliveryLat     float64 `json:"deliveryLatitude"`
	DeliveryLng     float64 `json:"deliveryLongitude"`
	DeliveryAddress string  `json:"deliveryAddress,omitempty"`
	CustomerName    string  `json:"customerName,omitempty"`
}

// Assignment is an order currently held by a driver.
type Assignment struct {
	AssignmentIn
	TenantID   string    `json:"tenantId"`
	DriverID   string    `json:"driverId"`
	AssignedAt time.Time `json:"assignedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Stops expands an assignment into the locations still to visit.
func (a Assignment) Stops() []Location {
	var out []Location
	if !IsCollected(a.Status) {
		out = append(out, Location{
			ID: a.OrderID + ":pickup", Lat: a.PickupLat, Lng: a.PickupLng, Kind: KindPickup,
			OrderID: a.OrderID, Address: a.PickupAddress, OrderNumber: a.OrderNumber, MerchantName: a.MerchantName,
		})
	}
	out = append(out, Location{
		ID: a.OrderID + ":delivery", Lat: a.DeliveryLat, Lng: a.DeliveryLng, Kind: KindDelivery,
		OrderID: a.OrderID, Address: a.DeliveryAddress, OrderNumber: a.OrderNumber, CustomerName: a.CustomerName,
	})
	return out
}

type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url" validate:"required,url"`
	Events   []string `json:"events" validate:"required,min=1,dive,oneof=route.updated route.optimized"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
