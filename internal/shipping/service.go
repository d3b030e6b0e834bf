package shipping

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"gift-marketplace/internal/logger"
	"gift-marketplace/internal/models"
)

// ErrUnknownCity means the delivery city matched no courier zone even after
// refreshing the zone directory.
var ErrUnknownCity = errors.New("no courier zone serves this city")

// quoteTTL bounds how stale a memoized quote can get. Courier rates change
// rarely, but a checkout must never reuse an hours-old price.
const quoteTTL = 60 * time.Second

type Courier interface {
	Rate(ctx context.Context, zoneCode string, weightKg float64, pieces int) (float64, error)
	Zones(ctx context.Context) ([]Zone, error)
	Track(ctx context.Context, trackingNumber string) (*TrackingEvent, error)
	CreateShipment(ctx context.Context, req ConsignmentRequest) (*Consignment, error)
}

type Store interface {
	GetZoneByCity(ctx context.Context, city string) (*models.ShippingZone, error)
	ListZones(ctx context.Context) ([]models.ShippingZone, error)
	ReplaceZones(ctx context.Context, zones []models.ShippingZone) error
	CreateShipment(ctx context.Context, shipment models.Shipment) error
}

// Service answers shipping-rate questions for checkout. Zones are cached in
// the database and refreshed from the courier on a miss; quotes are memoized
// in redis so a buyer refreshing the checkout page does not hammer the SOAP
// endpoint.
type Service struct {
	courier Courier
	store   Store
	redis   *redis.Client
	logger  *logger.Logger
}

func NewService(courier Courier, store Store, rdb *redis.Client, log *logger.Logger) *Service {
	return &Service{courier: courier, store: store, redis: rdb, logger: log}
}

// quoteKey buckets the memo by city, weight in grams and piece count.
func quoteKey(city string, weightKg float64, pieces int) string {
	return fmt.Sprintf("shipquote:%s:%d:%d", city, int(weightKg*1000), pieces)
}

// Quote returns the delivery charge for a consignment to a city.
func (s *Service) Quote(ctx context.Context, city string, weightKg float64, pieces int) (float64, error) {
	key := quoteKey(city, weightKg, pieces)
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, key).Result(); err == nil {
			if rate, err := strconv.ParseFloat(cached, 64); err == nil {
				return rate, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn("SHIPPING", fmt.Sprintf("redis quote lookup failed: %v", err))
		}
	}

	zone, err := s.resolveZone(ctx, city)
	if err != nil {
		return 0, err
	}

	rate, err := s.courier.Rate(ctx, zone.ZoneCode, weightKg, pieces)
	if err != nil {
		return 0, err
	}
	rate = models.Round2(rate)

	if s.redis != nil {
		if err := s.redis.Set(ctx, key, fmt.Sprintf("%.2f", rate), quoteTTL).Err(); err != nil {
			s.logger.Warn("SHIPPING", fmt.Sprintf("redis quote memo failed: %v", err))
		}
	}
	return rate, nil
}

// Zones lists the cached courier zones, refreshing from the courier if the
// cache is empty.
func (s *Service) Zones(ctx context.Context) ([]models.ShippingZone, error) {
	zones, err := s.store.ListZones(ctx)
	if err != nil {
		return nil, err
	}
	if len(zones) > 0 {
		return zones, nil
	}
	if err := s.refreshZones(ctx); err != nil {
		return nil, err
	}
	return s.store.ListZones(ctx)
}

// Track returns the latest courier event for a tracking number.
func (s *Service) Track(ctx context.Context, trackingNumber string) (*TrackingEvent, error) {
	return s.courier.Track(ctx, trackingNumber)
}

// CreateShipment books the shippable part of a paid order with the courier
// and records the consignment. Orders with no shippable items book nothing.
func (s *Service) CreateShipment(ctx context.Context, ord models.Order, items []models.OrderItem) (*models.Shipment, error) {
	weightKg := 0.0
	pieces := 0
	for _, item := range items {
		if !item.Shippable {
			continue
		}
		weightKg += item.WeightKg * float64(item.Quantity)
		pieces += item.Quantity
	}
	if pieces == 0 {
		return nil, nil
	}

	consignment, err := s.courier.CreateShipment(ctx, ConsignmentRequest{
		Reference:     ord.OrderCode,
		RecipientName: ord.BuyerName,
		Street:        ord.ShippingStreet,
		City:          ord.ShippingCity,
		WeightKg:      weightKg,
		Pieces:        pieces,
	})
	if err != nil {
		return nil, err
	}

	shipment := models.Shipment{
		ID:             uuid.NewString(),
		OrderID:        ord.ID,
		TrackingNumber: consignment.TrackingNumber,
		TrackingURL:    consignment.TrackingURL,
		Status:         "created",
	}
	if err := s.store.CreateShipment(ctx, shipment); err != nil {
		return nil, err
	}
	s.logger.Info("SHIPPING", fmt.Sprintf("booked consignment %s for order %s (%d pieces, %.3f kg)",
		consignment.TrackingNumber, ord.OrderCode, pieces, weightKg))
	return &shipment, nil
}

// resolveZone looks the city up in the cached directory, refreshing the
// directory from the courier on a miss before giving up.
func (s *Service) resolveZone(ctx context.Context, city string) (*models.ShippingZone, error) {
	zone, err := s.store.GetZoneByCity(ctx, city)
	if err != nil {
		return nil, err
	}
	if zone != nil {
		return zone, nil
	}

	if err := s.refreshZones(ctx); err != nil {
		return nil, err
	}
	zone, err = s.store.GetZoneByCity(ctx, city)
	if err != nil {
		return nil, err
	}
	if zone == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCity, city)
	}
	return zone, nil
}

func (s *Service) refreshZones(ctx context.Context) error {
	fetched, err := s.courier.Zones(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh courier zones: %w", err)
	}
	zones := make([]models.ShippingZone, 0, len(fetched))
	for _, z := range fetched {
		zones = append(zones, models.ShippingZone{
			ID:          uuid.NewString(),
			CountryCode: z.CountryCode,
			ZoneCode:    z.Code,
			ZoneName:    z.Name,
		})
	}
	if err := s.store.ReplaceZones(ctx, zones); err != nil {
		return err
	}
	s.logger.Info("SHIPPING", fmt.Sprintf("refreshed %d courier zones", len(zones)))
	return nil
}
