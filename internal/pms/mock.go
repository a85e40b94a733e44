package pms

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// room is a unit of mock inventory.
type room struct {
	ID            string
	Name          string
	Description   string
	PricePerNight int64
	MaxGuests     int
	Amenities     []string
	Available     int
}

// MockClient is an in-memory reservation backend used for development and
// tests. Bookings are idempotent per request token and availability is
// decremented on creation, so sold-out races are reproducible.
type MockClient struct {
	mu       sync.Mutex
	rooms    []room
	bookings map[string]BookingConfirmation
	seq      int
	now      func() time.Time
}

// NewMockClient seeds the demo inventory.
func NewMockClient() *MockClient {
	return &MockClient{
		rooms: []room{
			{
				ID:            "room_101",
				Name:          "Standard Room",
				Description:   "Cozy room with a queen bed and city view",
				PricePerNight: 15000,
				MaxGuests:     2,
				Amenities:     []string{"WiFi", "TV", "Air Conditioning", "Mini Fridge"},
				Available:     5,
			},
			{
				ID:            "room_201",
				Name:          "Deluxe Suite",
				Description:   "Spacious suite with a king bed and separate living area",
				PricePerNight: 25000,
				MaxGuests:     3,
				Amenities:     []string{"WiFi", "TV", "Air Conditioning", "Mini Bar", "Balcony", "Room Service"},
				Available:     3,
			},
			{
				ID:            "room_301",
				Name:          "Presidential Suite",
				Description:   "Top-floor suite with panoramic views and butler service",
				PricePerNight: 50000,
				MaxGuests:     4,
				Amenities:     []string{"WiFi", "TV", "Air Conditioning", "Full Bar", "Jacuzzi", "Butler Service", "Private Terrace"},
				Available:     1,
			},
		},
		bookings: make(map[string]BookingConfirmation),
		now:      time.Now,
	}
}

var _ Client = (*MockClient)(nil)

// CheckAvailability returns offers for rooms that fit the party size and
// still have inventory, in fixed inventory order.
func (c *MockClient) CheckAvailability(ctx context.Context, req AvailabilityRequest) ([]RoomOffer, error) {
	checkIn, checkOut, err := parseStay(req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, err
	}
	if req.GuestCount < 1 {
		return nil, fmt.Errorf("%w: guest count must be at least 1", ErrInvalid)
	}

	nights := Nights(checkIn, checkOut)

	c.mu.Lock()
	defer c.mu.Unlock()

	var offers []RoomOffer
	for _, r := range c.rooms {
		if r.MaxGuests < req.GuestCount || r.Available <= 0 {
			continue
		}
		offers = append(offers, RoomOffer{
			RoomID:         r.ID,
			Name:           r.Name,
			Description:    r.Description,
			PricePerNight:  r.PricePerNight,
			TotalPrice:     r.PricePerNight * int64(nights),
			MaxGuests:      r.MaxGuests,
			Amenities:      append([]string(nil), r.Amenities...),
			AvailableCount: r.Available,
		})
	}
	return offers, nil
}

// CreateBooking reserves a room. A repeated call with the same request
// token returns the original confirmation without touching inventory.
func (c *MockClient) CreateBooking(ctx context.Context, req BookingRequest) (*BookingConfirmation, error) {
	checkIn, checkOut, err := parseStay(req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, err
	}
	if req.RoomID == "" || req.RequestToken == "" {
		return nil, fmt.Errorf("%w: room id and request token required", ErrInvalid)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.bookings[req.RequestToken]; ok {
		conf := existing
		return &conf, nil
	}

	var target *room
	for i := range c.rooms {
		if c.rooms[i].ID == req.RoomID {
			target = &c.rooms[i]
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%w: unknown room %s", ErrInvalid, req.RoomID)
	}
	if target.Available <= 0 {
		return nil, ErrRoomNoLongerAvailable
	}

	target.Available--
	c.seq++

	conf := BookingConfirmation{
		ConfirmationNumber: fmt.Sprintf("CONF-%s-%04d", c.now().UTC().Format("20060102"), c.seq),
		RoomID:             req.RoomID,
		CheckIn:            req.CheckIn,
		CheckOut:           req.CheckOut,
		GuestCount:         req.GuestCount,
		GuestName:          req.Guest.Name,
		TotalPrice:         target.PricePerNight * int64(Nights(checkIn, checkOut)),
	}
	c.bookings[req.RequestToken] = conf

	out := conf
	return &out, nil
}

// SetAvailability overrides remaining inventory for a room. Used by tests
// and the demo seeding path to stage sold-out scenarios.
func (c *MockClient) SetAvailability(roomID string, available int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.rooms {
		if c.rooms[i].ID == roomID {
			c.rooms[i].Available = available
			return
		}
	}
}

func parseStay(checkIn, checkOut string) (time.Time, time.Time, error) {
	in, err := time.Parse(DateLayout, checkIn)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: bad check-in date %q", ErrInvalid, checkIn)
	}
	out, err := time.Parse(DateLayout, checkOut)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: bad check-out date %q", ErrInvalid, checkOut)
	}
	if !out.After(in) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: check-out must be after check-in", ErrInvalid)
	}
	return in, out, nil
}
