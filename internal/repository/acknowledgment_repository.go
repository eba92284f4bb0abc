package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// AcknowledgmentRepository tracks when each viewer last opened a request's
// activity stream. Marks are last-write-wins; a missing mark means the viewer
// never acknowledged the request.
type AcknowledgmentRepository interface {
	Get(ctx context.Context, viewerID, requestID string) (time.Time, bool, error)
	Set(ctx context.Context, viewerID, requestID string, at time.Time) error
	DeleteByRequest(ctx context.Context, requestID string) error
}

type acknowledgmentRepository struct {
	client *redis.Client
}

// NewAcknowledgmentRepository returns a Redis-backed implementation. Marks
// are stored per request in a hash keyed by viewer, so the administrative
// delete can drop all of a request's marks in one call.
func NewAcknowledgmentRepository(client *redis.Client) AcknowledgmentRepository {
	return &acknowledgmentRepository{client: client}
}

func ackKey(requestID string) string {
	return fmt.Sprintf("ack:%s", requestID)
}

func (r *acknowledgmentRepository) Get(ctx context.Context, viewerID, requestID string) (time.Time, bool, error) {
	val, err := r.client.HGet(ctx, ackKey(requestID), viewerID).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	nanos, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(0, nanos).UTC(), true, nil
}

func (r *acknowledgmentRepository) Set(ctx context.Context, viewerID, requestID string, at time.Time) error {
	return r.client.HSet(ctx, ackKey(requestID), viewerID, strconv.FormatInt(at.UnixNano(), 10)).Err()
}

func (r *acknowledgmentRepository) DeleteByRequest(ctx context.Context, requestID string) error {
	return r.client.Del(ctx, ackKey(requestID)).Err()
}
