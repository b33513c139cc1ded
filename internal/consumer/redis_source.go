package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	rediscommon "lifesignal-sync/common/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisStreamSource Redis Streams 消费者组
type RedisStreamSource struct {
	redisClient  *redis.Client
	logger       *zap.Logger
	stream       string
	groupName    string
	consumerName string
	batchSize    int64
	block        time.Duration
}

// NewRedisStreamSource 创建
func NewRedisStreamSource(
	redisClient *redis.Client,
	logger *zap.Logger,
	stream string,
	groupName string,
	consumerName string,
	batchSize int64,
	block time.Duration,
) *RedisStreamSource {
	return &RedisStreamSource{
		redisClient:  redisClient,
		logger:       logger,
		stream:       stream,
		groupName:    groupName,
		consumerName: consumerName,
		batchSize:    batchSize,
		block:        block,
	}
}

func (s *RedisStreamSource) Name() string {
	return "redis-stream:" + s.stream
}

// Run 消费消息（带指数退避）
func (s *RedisStreamSource) Run(ctx context.Context, deliver DeliverFunc) error {
	if err := rediscommon.CreateConsumerGroup(ctx, s.redisClient, s.stream, s.groupName); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := s.consume(ctx, deliver); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("Failed to consume updates",
				zap.Error(err),
				zap.Duration("backoff", backoffDuration),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoffDuration):
				backoffDuration *= 2
				if backoffDuration > maxBackoff {
					backoffDuration = maxBackoff
				}
			}
			continue
		}
		backoffDuration = time.Second
	}
}

func (s *RedisStreamSource) consume(ctx context.Context, deliver DeliverFunc) error {
	messages, err := rediscommon.ReadFromStream(ctx, s.redisClient, s.stream, s.groupName, s.consumerName, s.batchSize, s.block)
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}
	if len(messages) == 0 && s.block <= 0 {
		// 非阻塞读取时避免空转
		select {
		case <-ctx.Done():
		case <-time.After(100 * time.Millisecond):
		}
		return nil
	}

	for _, msg := range messages {
		update, err := parseStreamMessage(msg)
		if err == nil {
			err = deliver(ctx, update)
		}
		if err != nil {
			// 继续处理下一条，不确认失败的消息
			s.logger.Error("Failed to process update",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			continue
		}
		if err := rediscommon.AckMessage(ctx, s.redisClient, s.stream, s.groupName, msg.ID); err != nil {
			s.logger.Warn("Failed to ack message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func parseStreamMessage(msg rediscommon.StreamMessage) (ContactUpdate, error) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return ContactUpdate{}, fmt.Errorf("message %s has no data field", msg.ID)
	}
	var update ContactUpdate
	if err := json.Unmarshal([]byte(data), &update); err != nil {
		return ContactUpdate{}, fmt.Errorf("failed to unmarshal update: %w", err)
	}
	return update, nil
}
