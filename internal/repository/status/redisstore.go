package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coursevault/coursevault/internal/common"
	"github.com/coursevault/coursevault/internal/entity"
	"github.com/redis/go-redis/v9"
)

const (
	keyAssignments  = "cv:assign"   // HASH. course key -> assignment json
	keyOutcomePfx   = "cv:outcome:" // HASH per course. asset type -> outcome json
	outcomeScanSize = 1000
)

// redisStore keeps both tables in redis hashes. HSET gives the per-record
// atomic upsert the resume contract needs; everything else is plain reads.
type redisStore struct {
	cl  *redis.Client
	log *slog.Logger
}

func NewRedisStore(cl *redis.Client, log *slog.Logger) (*redisStore, error) {
	if _, err := cl.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("%w: redis unreachable: %v", common.ErrStatusStoreCorrupt, err)
	}

	return &redisStore{
		cl:  cl,
		log: log.With(slog.String("item", "RedisStatusStore")),
	}, nil
}

func (s *redisStore) Assignment(ctx context.Context, courseKey string) (entity.DiskAssignment, error) {
	val, err := s.cl.HGet(ctx, keyAssignments, normKey(courseKey)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return entity.DiskAssignment{}, common.ErrAssignmentNotFound
		}

		return entity.DiskAssignment{}, fmt.Errorf("cannot get assignment for %s: %w", courseKey, err)
	}

	var a entity.DiskAssignment
	if err := json.Unmarshal([]byte(val), &a); err != nil {
		return entity.DiskAssignment{}, fmt.Errorf("%w: assignment record for %s: %v", common.ErrStatusStoreCorrupt, courseKey, err)
	}

	return a, nil
}

func (s *redisStore) Assignments(ctx context.Context) (map[string]entity.DiskAssignment, error) {
	vals, err := s.cl.HGetAll(ctx, keyAssignments).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot get assignment table: %w", err)
	}

	out := make(map[string]entity.DiskAssignment, len(vals))
	for key, val := range vals {
		var a entity.DiskAssignment
		if err := json.Unmarshal([]byte(val), &a); err != nil {
			return nil, fmt.Errorf("%w: assignment record for %s: %v", common.ErrStatusStoreCorrupt, key, err)
		}
		out[key] = a
	}

	return out, nil
}

func (s *redisStore) SaveAssignment(ctx context.Context, a entity.DiskAssignment) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("cannot encode assignment: %w", err)
	}

	if err := s.cl.HSet(ctx, keyAssignments, normKey(a.Course), string(data)).Err(); err != nil {
		return fmt.Errorf("cannot save assignment for %s: %w", a.Course, err)
	}

	return nil
}

func (s *redisStore) Outcomes(ctx context.Context, courseKey string) (map[entity.AssetType]entity.TransferOutcome, error) {
	vals, err := s.cl.HGetAll(ctx, outcomeKey(courseKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot get outcomes for %s: %w", courseKey, err)
	}

	return decodeOutcomeRow(courseKey, vals)
}

func (s *redisStore) AllOutcomes(ctx context.Context) (map[string]map[entity.AssetType]entity.TransferOutcome, error) {
	out := make(map[string]map[entity.AssetType]entity.TransferOutcome)

	var cursor uint64
	for {
		keys, next, err := s.cl.Scan(ctx, cursor, keyOutcomePfx+"*", outcomeScanSize).Result()
		if err != nil {
			return nil, fmt.Errorf("error scanning outcome keys: %w", err)
		}

		for _, key := range keys {
			courseKey := strings.TrimPrefix(key, keyOutcomePfx)

			vals, err := s.cl.HGetAll(ctx, key).Result()
			if err != nil {
				return nil, fmt.Errorf("cannot get outcomes for %s: %w", courseKey, err)
			}

			row, err := decodeOutcomeRow(courseKey, vals)
			if err != nil {
				return nil, err
			}
			out[courseKey] = row
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return out, nil
}

func (s *redisStore) SaveOutcome(ctx context.Context, o entity.TransferOutcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("cannot encode outcome: %w", err)
	}

	if err := s.cl.HSet(ctx, outcomeKey(o.Course), string(o.Asset), string(data)).Err(); err != nil {
		return fmt.Errorf("cannot save outcome for %s/%s: %w", o.Course, o.Asset, err)
	}

	return nil
}

func decodeOutcomeRow(courseKey string, vals map[string]string) (map[entity.AssetType]entity.TransferOutcome, error) {
	row := make(map[entity.AssetType]entity.TransferOutcome, len(vals))
	for field, val := range vals {
		var o entity.TransferOutcome
		if err := json.Unmarshal([]byte(val), &o); err != nil {
			return nil, fmt.Errorf("%w: outcome record for %s/%s: %v", common.ErrStatusStoreCorrupt, courseKey, field, err)
		}
		row[entity.AssetType(field)] = o
	}

	return row, nil
}

func outcomeKey(courseKey string) string {
	return keyOutcomePfx + normKey(courseKey)
}
