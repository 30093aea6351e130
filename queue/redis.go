package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// DefaultQueue is the list tasks are pushed onto
const DefaultQueue = "foiatracker:tasks"

// Redis pushes tasks onto a Redis list with LPUSH and pops them from the other end with BRPOP
type Redis struct {
	rdb         *redis.Client
	queueName   string
	pollTimeout time.Duration
}

var _ Enqueuer = &Redis{}

// NewRedis returns a Redis queue using the given list
func NewRedis(rdb *redis.Client, queueName string) *Redis {
	return &Redis{
		rdb:         rdb,
		queueName:   queueName,
		pollTimeout: 5 * time.Second,
	}
}

// Enqueue pushes a task onto the queue
func (q *Redis) Enqueue(ctx context.Context, name string, args interface{}) error {
	t, err := NewTask(name, args)
	if err != nil {
		return err
	}

	b, err := json.Marshal(t)
	if err != nil {
		return errors.Wrap(err, "queue: failed to marshal task")
	}

	if err := q.rdb.LPush(ctx, q.queueName, b).Err(); err != nil {
		return errors.Wrap(err, "queue: redis LPUSH")
	}

	log.WithField("task", name).WithField("id", t.ID).Info("Queue: enqueued task")
	return nil
}

// Work pops tasks and runs them through mux until ctx is cancelled. Tasks that fail are pushed onto
// the queue's failed list for inspection.
func (q *Redis) Work(ctx context.Context, mux *Mux) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		res, err := q.rdb.BRPop(ctx, q.pollTimeout, q.queueName).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "queue: redis BRPOP")
		}

		// BRPOP answers with the list name followed by the value
		raw := res[1]

		var t Task
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			log.WithError(err).Error("Queue: dropping malformed task")
			continue
		}

		if err := mux.Run(ctx, t); err != nil {
			log.WithField("task", t.Name).WithField("id", t.ID).WithError(err).Error("Queue: task failed")

			if err := q.rdb.LPush(ctx, q.failedQueue(), raw).Err(); err != nil {
				log.WithError(err).Error("Queue: failed to record failed task")
			}
		}
	}
}

// Ping checks the Redis connection
func (q *Redis) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return q.rdb.Ping(ctx).Err()
}

func (q *Redis) failedQueue() string {
	return q.queueName + ":failed"
}
