// Package presence is the heartbeat-based registry of who currently has a
// document open. A participant is online while their last heartbeat is
// younger than the presence window; there is no leave operation, silence
// is the leave.
package presence

import (
	"context"
	"strconv"
	"time"

	"minutepad/pkg/metrics"

	redis "github.com/redis/go-redis/v9"
)

type Tracker struct {
	rdb    *redis.Client
	window time.Duration
}

func NewTracker(rdb *redis.Client, window time.Duration) *Tracker {
	return &Tracker{rdb: rdb, window: window}
}

// Heartbeat upserts the participant's expiry. Driven by the client on a
// fixed cadence while the document view is open.
func (t *Tracker) Heartbeat(ctx context.Context, docID, participantID string) error {
	expireAt := time.Now().Add(t.window).Unix()
	tx := t.rdb.TxPipeline()
	tx.ZAdd(ctx, roomKey(docID), redis.Z{Score: float64(expireAt), Member: participantID})
	// Let an abandoned room's key age out of redis entirely.
	tx.Expire(ctx, roomKey(docID), 2*t.window)
	if _, err := tx.Exec(ctx); err != nil {
		return err
	}
	metrics.Heartbeats.Inc()
	return nil
}

// cleanupScript drops members whose expiry has passed before the read.
// Score = expireAt (unix seconds); expireAt <= now is expired.
var cleanupScript = redis.NewScript(`
	redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
	return redis.call("ZCARD", KEYS[1])
`)

// ListOnline returns the participants whose heartbeat is inside the
// window. Never nil on success.
func (t *Tracker) ListOnline(ctx context.Context, docID string) ([]string, error) {
	now := time.Now().Unix()

	if _, err := cleanupScript.Run(ctx, t.rdb, []string{roomKey(docID)}, now).Result(); err != nil && err != redis.Nil {
		return nil, err
	}

	members, err := t.rdb.ZRangeByScore(ctx, roomKey(docID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now, 10),
		Max: "+inf",
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	if members == nil {
		members = []string{}
	}
	return members, nil
}
