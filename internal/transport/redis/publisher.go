package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/rocketscienceinc/tictactoe-board/internal/entity"
	"github.com/rocketscienceinc/tictactoe-board/internal/tictactoe"
	"github.com/rocketscienceinc/tictactoe-board/internal/viewmodel"
)

// Publisher fans board snapshots out to a Redis channel per session.
// Nothing is written to keys, the snapshots only live on the channel.
type Publisher struct {
	logger *slog.Logger
	client *redis.Client
	prefix string
}

func NewPublisher(logger *slog.Logger, client *redis.Client, prefix string) *Publisher {
	return &Publisher{
		logger: logger.With("component", "redis_publisher"),
		client: client,
		prefix: prefix,
	}
}

// Channel - returns the channel the snapshots of a session are published to.
func (that *Publisher) Channel(sessionID string) string {
	return that.prefix + ":" + sessionID
}

// Publish - sends the view of the board to the session's channel.
func (that *Publisher) Publish(ctx context.Context, sessionID string, board entity.Board) error {
	data, err := viewmodel.Marshal(board)
	if err != nil {
		return err
	}

	if err = that.client.Publish(ctx, that.Channel(sessionID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish board: %w", err)
	}

	return nil
}

// Observer - adapts Publish to the controller; failures are logged and never reach the game.
func (that *Publisher) Observer(ctx context.Context, sessionID string) tictactoe.Observer {
	log := that.logger.With("method", "Observer", "session", sessionID)

	return func(board entity.Board) {
		if err := that.Publish(ctx, sessionID, board); err != nil {
			log.Error("could not publish board", "error", err)
		}
	}
}
