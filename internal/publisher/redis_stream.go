package publisher

import (
	"context"
	"encoding/json"

	"github.com/fortuna/moneta/internal/game"
	"github.com/redis/go-redis/v9"
)

const (
	// ObservationStream receives one message per processed game
	ObservationStream = "moneyline.observations.basketball_nba"

	// RunStream receives one message per completed run
	RunStream = "moneyline.runs.basketball_nba"

	// streamMaxLen caps each stream so an idle consumer cannot grow it forever
	streamMaxLen = 10000
)

// RedisStreamPublisher publishes observations to Redis streams
type RedisStreamPublisher struct {
	client *redis.Client
}

// NewRedisStreamPublisher creates a new Redis stream publisher from existing client
func NewRedisStreamPublisher(client *redis.Client) *RedisStreamPublisher {
	return &RedisStreamPublisher{
		client: client,
	}
}

// PublishObservation adds one game result to the observation stream
func (rsp *RedisStreamPublisher) PublishObservation(ctx context.Context, runID string, obs *game.Observation) error {
	data, err := json.Marshal(obs)
	if err != nil {
		return err
	}

	return rsp.client.XAdd(ctx, &redis.XAddArgs{
		Stream: ObservationStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"run_id":    runID,
			"game_id":   obs.Game.ID(),
			"success":   obs.Success,
			"final":     obs.Final,
			"data":      string(data),
			"timestamp": obs.CapturedAt.Unix(),
		},
	}).Err()
}

// PublishRun adds the run's counters to the run stream
func (rsp *RedisStreamPublisher) PublishRun(ctx context.Context, report *game.RunReport) error {
	return rsp.client.XAdd(ctx, &redis.XAddArgs{
		Stream: RunStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"run_id":        report.RunID,
			"date":          report.Date,
			"dry_run":       report.DryRun,
			"attempted":     report.Attempted,
			"succeeded":     report.Succeeded,
			"persisted":     report.Persisted,
			"skipped_final": report.SkippedFinal,
			"unrecoverable": report.Unrecoverable,
			"timestamp":     report.FinishedAt.Unix(),
		},
	}).Err()
}
