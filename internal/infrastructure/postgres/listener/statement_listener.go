package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

const (
	DefaultChannel    = "statement_parsed"
	reconnectInterval = 5 * time.Second
	pingInterval      = 90 * time.Second
)

// StatementParsed is the NOTIFY payload announcing a file whose raw rows are stored.
type StatementParsed struct {
	FileID string `json:"file_id"`
	UserID int64  `json:"user_id"`
}

func (p StatementParsed) validate() error {
	if p.FileID == "" {
		return fmt.Errorf("missing file_id")
	}
	if p.UserID <= 0 {
		return fmt.Errorf("missing user_id")
	}
	return nil
}

// Handler receives each well-formed notification. It must not block for long;
// the listener calls it inline.
type Handler func(ctx context.Context, ev StatementParsed)

// StatementListener listens for parsed-statement notifications and hands them
// to a Handler.
type StatementListener struct {
	connStr    string
	channel    string
	handler    Handler
	logger     zerolog.Logger
	shutdownCh chan struct{}
	done       chan struct{}
}

func NewStatementListener(connStr, channel string, handler Handler, logger zerolog.Logger) *StatementListener {
	if channel == "" {
		channel = DefaultChannel
	}
	return &StatementListener{
		connStr:    connStr,
		channel:    channel,
		handler:    handler,
		logger:     logger.With().Str("component", "statement_listener").Str("channel", channel).Logger(),
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start begins listening in a background goroutine.
func (l *StatementListener) Start(ctx context.Context) {
	go l.listen(ctx)
	l.logger.Info().Msg("statement listener started")
}

// Stop shuts the listener down and waits for it to exit.
func (l *StatementListener) Stop() {
	close(l.shutdownCh)
	<-l.done
	l.logger.Info().Msg("statement listener stopped")
}

func (l *StatementListener) listen(ctx context.Context) {
	defer close(l.done)

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		default:
			l.connectAndListen(ctx)
		}

		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(reconnectInterval):
			l.logger.Info().Msg("reconnecting to postgres for notifications")
		}
	}
}

func (l *StatementListener) connectAndListen(ctx context.Context) {
	pl := pq.NewListener(l.connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			l.logger.Info().Msg("connected to notification channel")
		case pq.ListenerEventDisconnected:
			l.logger.Warn().Err(err).Msg("disconnected from notification channel")
		case pq.ListenerEventReconnected:
			l.logger.Info().Msg("reconnected to notification channel")
		case pq.ListenerEventConnectionAttemptFailed:
			l.logger.Error().Err(err).Msg("notification connection attempt failed")
		}
	})
	defer pl.Close()

	if err := pl.Listen(l.channel); err != nil {
		l.logger.Error().Err(err).Msg("failed to listen on channel")
		return
	}

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case n := <-pl.Notify:
			if n == nil {
				// Connection lost; pq re-establishes it and delivers nil once.
				return
			}
			l.handleNotification(ctx, n)
		case <-time.After(pingInterval):
			go func() {
				if err := pl.Ping(); err != nil {
					l.logger.Warn().Err(err).Msg("listener ping failed")
				}
			}()
		}
	}
}

func (l *StatementListener) handleNotification(ctx context.Context, n *pq.Notification) {
	ev, err := ParsePayload(n.Extra)
	if err != nil {
		l.logger.Error().Err(err).Str("payload", n.Extra).Msg("failed to parse notification payload")
		return
	}

	l.logger.Debug().Str("file_id", ev.FileID).Int64("user_id", ev.UserID).Msg("statement parsed notification")
	l.handler(ctx, ev)
}

// ParsePayload decodes and validates a NOTIFY payload.
func ParsePayload(payload string) (StatementParsed, error) {
	var ev StatementParsed
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return StatementParsed{}, fmt.Errorf("failed to decode payload: %w", err)
	}
	if err := ev.validate(); err != nil {
		return StatementParsed{}, err
	}
	return ev, nil
}
