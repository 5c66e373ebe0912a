// Package intake receives dubbing requests through a Redis list. A set of
// seen URL/language keys keeps a video from being queued twice.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noricha-vr/twitter-video-translator/internal/fetch"
	"github.com/noricha-vr/twitter-video-translator/pkg/log"
)

// Request is the JSON document pushed onto the queue.
type Request struct {
	URL           string `json:"url"`
	Target        string `json:"target,omitempty"`
	Voice         string `json:"voice,omitempty"`
	SkipSynthesis bool   `json:"skip_synthesis,omitempty"`
}

func (r Request) key() string {
	return r.URL + "|" + strings.ToLower(r.Target)
}

// commands is the part of redis.Cmdable the intake uses.
type commands interface {
	Ping(ctx context.Context) *redis.StatusCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...any) *redis.IntCmd
	SCard(ctx context.Context, key string) *redis.IntCmd
	RPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
}

type Intake struct {
	client  commands
	queue   string
	seenSet string
	close   func() error
}

// Connect dials Redis and checks the connection.
func Connect(ctx context.Context, addr, password string, db int, queue, seenSet string) (*Intake, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	in := New(client, queue, seenSet)
	in.close = client.Close
	return in, nil
}

func New(client commands, queue, seenSet string) *Intake {
	return &Intake{client: client, queue: queue, seenSet: seenSet}
}

// Submit validates the URL and queues the request. It returns false when
// the same URL and language were submitted before.
func (in *Intake) Submit(ctx context.Context, req Request) (bool, error) {
	url, err := fetch.Validate(req.URL)
	if err != nil {
		return false, err
	}
	req.URL = url

	added, err := in.client.SAdd(ctx, in.seenSet, req.key()).Result()
	if err != nil {
		return false, fmt.Errorf("error adding to seen set: %w", err)
	}
	if added == 0 {
		return false, nil
	}

	data, err := json.Marshal(req)
	if err != nil {
		return false, fmt.Errorf("failed to marshal request: %w", err)
	}
	if err := in.client.RPush(ctx, in.queue, string(data)).Err(); err != nil {
		// let a later submit try again
		_ = in.client.SRem(ctx, in.seenSet, req.key()).Err()
		return false, fmt.Errorf("error adding to queue: %w", err)
	}
	return true, nil
}

// Next blocks up to timeout for a request. ok is false when none arrived.
// Malformed entries are logged and dropped.
func (in *Intake) Next(ctx context.Context, timeout time.Duration) (req Request, ok bool, err error) {
	res, err := in.client.BLPop(ctx, timeout, in.queue).Result()
	if errors.Is(err, redis.Nil) {
		return Request{}, false, nil
	}
	if err != nil {
		return Request{}, false, fmt.Errorf("error reading queue: %w", err)
	}
	// BLPOP replies with [key, value]
	if len(res) != 2 {
		return Request{}, false, fmt.Errorf("unexpected BLPOP reply of %d items", len(res))
	}
	if err := json.Unmarshal([]byte(res[1]), &req); err != nil || req.URL == "" {
		log.Warn("Dropping malformed intake entry %q: %v", res[1], err)
		return Request{}, false, nil
	}
	return req, true, nil
}

// Forget removes a request from the seen set so it can be submitted again,
// e.g. after its job failed.
func (in *Intake) Forget(ctx context.Context, req Request) error {
	return in.client.SRem(ctx, in.seenSet, req.key()).Err()
}

// Stats returns the queue length and the number of seen keys.
func (in *Intake) Stats(ctx context.Context) (queued, seen int64, err error) {
	if queued, err = in.client.LLen(ctx, in.queue).Result(); err != nil {
		return 0, 0, fmt.Errorf("error getting queue length: %w", err)
	}
	if seen, err = in.client.SCard(ctx, in.seenSet).Result(); err != nil {
		return 0, 0, fmt.Errorf("error getting seen count: %w", err)
	}
	return queued, seen, nil
}

// Pump hands every request to handle until ctx ends. Read errors are
// retried after a pause.
func (in *Intake) Pump(ctx context.Context, poll time.Duration, handle func(Request)) error {
	if poll <= 0 {
		poll = 5 * time.Second
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		req, ok, err := in.Next(ctx, poll)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("Intake read failed: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(poll):
			}
			continue
		}
		if ok {
			handle(req)
		}
	}
}

func (in *Intake) Close() error {
	if in.close == nil {
		return nil
	}
	return in.close()
}
