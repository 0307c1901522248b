package server

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	reservation "github.com/chimerakang/reservation-go"
)

// ReservationRequest is the body of create and upsert.
type ReservationRequest struct {
	RoomID          string    `json:"room_id"`
	From            Timestamp `json:"from"`
	To              Timestamp `json:"to"`
	CustomerName    string    `json:"customer_name"`
	CustomerEmail   string    `json:"customer_email"`
	PartySize       int       `json:"party_size"`
	SpecialRequests *string   `json:"special_requests,omitempty"`
}

// Fields converts the request into domain fields.
func (r ReservationRequest) Fields() reservation.Fields {
	return reservation.Fields{
		RoomID:          strings.TrimSpace(r.RoomID),
		From:            time.Time(r.From),
		To:              time.Time(r.To),
		CustomerName:    strings.TrimSpace(r.CustomerName),
		CustomerEmail:   strings.TrimSpace(r.CustomerEmail),
		PartySize:       r.PartySize,
		SpecialRequests: r.SpecialRequests,
	}
}

// ReservationResponse is the JSON form of a reservation.
type ReservationResponse struct {
	ID              string  `json:"id"`
	RoomID          string  `json:"room_id"`
	From            string  `json:"from"`
	To              string  `json:"to"`
	CustomerName    string  `json:"customer_name"`
	CustomerEmail   string  `json:"customer_email"`
	PartySize       int     `json:"party_size"`
	SpecialRequests *string `json:"special_requests"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
	DeletedAt       *string `json:"deleted_at"`
}

// ListResponse wraps a reservation listing.
type ListResponse struct {
	Reservations []ReservationResponse `json:"reservations"`
}

// TokenResponse is returned by the token endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func toResponse(r reservation.Reservation) ReservationResponse {
	resp := ReservationResponse{
		ID:              r.ID,
		RoomID:          r.RoomID,
		From:            formatTime(r.From),
		To:              formatTime(r.To),
		CustomerName:    r.CustomerName,
		CustomerEmail:   r.CustomerEmail,
		PartySize:       r.PartySize,
		SpecialRequests: r.SpecialRequests,
		Status:          string(r.Status),
		CreatedAt:       formatTime(r.CreatedAt),
		UpdatedAt:       formatTime(r.UpdatedAt),
	}
	if r.DeletedAt != nil {
		formatted := formatTime(*r.DeletedAt)
		resp.DeletedAt = &formatted
	}
	return resp
}

func toListResponse(list []reservation.Reservation) ListResponse {
	resp := ListResponse{Reservations: make([]ReservationResponse, 0, len(list))}
	for _, r := range list {
		resp.Reservations = append(resp.Reservations, toResponse(r))
	}
	return resp
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Timestamp accepts RFC 3339 date-times and plain dates (midnight UTC).
type Timestamp time.Time

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = Timestamp(parsed.UTC())
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(formatTime(time.Time(t)))
}
