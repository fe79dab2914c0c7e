package listener

import (
	"context"
	"encoding/json"
	"fmt"

	"ledgerline/internal/infrastructure/postgres"
)

// Publisher announces parsed statements on a NOTIFY channel.
type Publisher struct {
	db      *postgres.DB
	channel string
}

func NewPublisher(db *postgres.DB, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{db: db, channel: channel}
}

func (p *Publisher) PublishParsed(ctx context.Context, fileID string, userID int64) error {
	payload, err := json.Marshal(StatementParsed{FileID: fileID, UserID: userID})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, p.channel, string(payload)); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}
