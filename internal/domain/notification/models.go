package notification

import (
	"errors"
	"time"
)

// Route values carried in the data payload so the app can deep-link.
const (
	RouteStatements = "statements"
)

var validDeviceTypes = map[string]struct{}{
	"ios":     {},
	"android": {},
}

var (
	ErrInvalidDeviceType = errors.New("device type must be 'ios' or 'android'")
	ErrInvalidToken      = errors.New("device token is required")
	ErrInvalidUser       = errors.New("valid user ID is required")
)

// DeviceToken represents a registered FCM device token
type DeviceToken struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"userId"`
	Token      string    `json:"token"`
	DeviceType string    `json:"deviceType"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsed   time.Time `json:"lastUsed"`
}

// CreateDeviceTokenParams contains parameters for registering a device
type CreateDeviceTokenParams struct {
	UserID     int64
	Token      string
	DeviceType string
}

func (p CreateDeviceTokenParams) Validate() error {
	if p.UserID <= 0 {
		return ErrInvalidUser
	}
	if p.Token == "" {
		return ErrInvalidToken
	}
	if !IsValidDeviceType(p.DeviceType) {
		return ErrInvalidDeviceType
	}
	return nil
}

func IsValidDeviceType(dt string) bool {
	_, ok := validDeviceTypes[dt]
	return ok
}

// FileProcessed is what the user is told when a statement finishes processing.
type FileProcessed struct {
	UserID            int64
	FileID            string
	Processed         int
	Duplicates        int
	InternalTransfers int
	Failed            bool
}
