package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/fortuna/moneta/internal/game"
	"github.com/redis/go-redis/v9"
)

func TestPublishFailsWithoutServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	p := NewRedisStreamPublisher(client)
	ctx := context.Background()

	obs := game.NewObservation(game.Identity{Date: "2025-12-09", Away: "SAC", Home: "LAL"}, time.Now())
	if err := p.PublishObservation(ctx, "run-1", obs); err == nil {
		t.Error("PublishObservation() error = nil, want connection failure")
	}
	if err := p.PublishRun(ctx, &game.RunReport{RunID: "run-1"}); err == nil {
		t.Error("PublishRun() error = nil, want connection failure")
	}
}
