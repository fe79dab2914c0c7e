package notification

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"ledgerline/internal/shared/messages"
)

// Service registers devices and pushes statement updates to them.
type Service struct {
	repo      Repository
	messenger Messenger
	messages  *messages.Messages
	logger    zerolog.Logger
}

// NewService creates a new notification service. messenger may be nil, in
// which case notifications are only logged.
func NewService(repo Repository, messenger Messenger, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		messenger: messenger,
		messages:  messages.Default(),
		logger:    logger.With().Str("component", "notification").Logger(),
	}
}

// SetMessages replaces the notification copy.
func (s *Service) SetMessages(m *messages.Messages) {
	if m != nil {
		s.messages = m
	}
}

// RegisterDevice registers a device token for the authenticated user.
// If the token already belongs to another user, it is reassigned.
func (s *Service) RegisterDevice(ctx context.Context, params CreateDeviceTokenParams) (*DeviceToken, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return s.repo.UpsertDeviceToken(ctx, params)
}

// SendToUser pushes a notification to every active device of the user.
// Having no devices is not an error.
func (s *Service) SendToUser(ctx context.Context, userID int64, title, body string, data map[string]string) error {
	if userID <= 0 {
		return ErrInvalidUser
	}

	tokens, err := s.repo.GetActiveTokensByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load device tokens: %w", err)
	}
	if len(tokens) == 0 {
		s.logger.Debug().Int64("user_id", userID).Msg("no active device tokens")
		return nil
	}
	if s.messenger == nil {
		s.logger.Debug().Int64("user_id", userID).Str("title", title).Msg("push disabled, notification dropped")
		return nil
	}

	tokenStrings := make([]string, len(tokens))
	for i, t := range tokens {
		tokenStrings[i] = t.Token
	}
	return s.messenger.SendMulticast(ctx, tokenStrings, title, body, data)
}

// NotifyFileProcessed tells the user how their statement upload went.
func (s *Service) NotifyFileProcessed(ctx context.Context, ev FileProcessed) error {
	text := s.messages.FileProcessed
	switch {
	case ev.Failed:
		text = s.messages.FileFailed
	case ev.InternalTransfers > 0:
		text = s.messages.FileProcessedTransfers
	}
	msg := text.Render(map[string]string{
		"processed":  strconv.Itoa(ev.Processed),
		"duplicates": strconv.Itoa(ev.Duplicates),
		"transfers":  strconv.Itoa(ev.InternalTransfers),
	})

	return s.SendToUser(ctx, ev.UserID, msg.Title, msg.Body, map[string]string{
		"route":   RouteStatements,
		"file_id": ev.FileID,
	})
}
