package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"ledgerline/internal/domain/notification"
)

// DeviceRegistrar stores push tokens for the authenticated user.
type DeviceRegistrar interface {
	RegisterDevice(ctx context.Context, params notification.CreateDeviceTokenParams) (*notification.DeviceToken, error)
}

type RegisterDeviceRequest struct {
	Token      string `json:"token" validate:"required"`
	DeviceType string `json:"deviceType" validate:"omitempty,oneof=ios android"`
}

type NotificationHandler struct {
	devices DeviceRegistrar
	logger  zerolog.Logger
}

func NewNotificationHandler(devices DeviceRegistrar, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{devices: devices, logger: logger}
}

// HandleRegisterDevice handles POST /api/devices
func (h *NotificationHandler) HandleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	req, ok := decodeAndValidate[RegisterDeviceRequest](w, r, CodeInvalidRequest)
	if !ok {
		return
	}

	deviceType := req.DeviceType
	if deviceType == "" {
		deviceType = "android"
	}

	token, err := h.devices.RegisterDevice(r.Context(), notification.CreateDeviceTokenParams{
		UserID:     userID,
		Token:      req.Token,
		DeviceType: deviceType,
	})
	if err != nil {
		switch {
		case errors.Is(err, notification.ErrInvalidDeviceType),
			errors.Is(err, notification.ErrInvalidToken),
			errors.Is(err, notification.ErrInvalidUser):
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		default:
			requestLogger(r, h.logger).Error().Err(err).Int64("user_id", userID).Msg("failed to register device")
			writeError(w, http.StatusInternalServerError, CodeInternal, "Failed to register device")
		}
		return
	}

	writeData(w, http.StatusCreated, token)
}
