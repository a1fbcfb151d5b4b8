package nodestate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ffcentral/loadingbay"
	"ffcentral/navigation"
	"ffcentral/pairing"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func deviceKey(kind, serial string) string {
	return fmt.Sprintf("ffcentral:%s:%s", kind, serial)
}

func deviceSetKey(kind string) string {
	return fmt.Sprintf("ffcentral:%s", kind)
}

const (
	blocksKey  = "ffcentral:blocks"
	baysKey    = "ffcentral:bays"
	updatedKey = "ffcentral:updated_at"

	kindFts    = "fts"
	kindModule = "module"
)

// Ping checks that the server is reachable.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// setDevices replaces every device of kind with records, keyed by serial.
func (r *RedisStore) setDevices(ctx context.Context, kind string, records map[string]any) error {
	existing, err := r.client.SMembers(ctx, deviceSetKey(kind)).Result()
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	for _, serial := range existing {
		if _, ok := records[serial]; !ok {
			pipe.Del(ctx, deviceKey(kind, serial))
			pipe.SRem(ctx, deviceSetKey(kind), serial)
		}
	}
	for serial, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		pipe.Set(ctx, deviceKey(kind, serial), data, 0)
		pipe.SAdd(ctx, deviceSetKey(kind), serial)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func getDevices[T any](ctx context.Context, r *RedisStore, kind string) ([]T, error) {
	serials, err := r.client.SMembers(ctx, deviceSetKey(kind)).Result()
	if err != nil {
		return nil, err
	}
	if len(serials) == 0 {
		return nil, nil
	}
	keys := make([]string, len(serials))
	for i, s := range serials {
		keys[i] = deviceKey(kind, s)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var rec T
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *RedisStore) SetFts(ctx context.Context, records []pairing.FtsRecord) error {
	m := make(map[string]any, len(records))
	for _, rec := range records {
		m[rec.SerialNumber] = rec
	}
	return r.setDevices(ctx, kindFts, m)
}

func (r *RedisStore) GetFts(ctx context.Context) ([]pairing.FtsRecord, error) {
	return getDevices[pairing.FtsRecord](ctx, r, kindFts)
}

func (r *RedisStore) SetModules(ctx context.Context, records []pairing.ModuleRecord) error {
	m := make(map[string]any, len(records))
	for _, rec := range records {
		m[rec.SerialNumber] = rec
	}
	return r.setDevices(ctx, kindModule, m)
}

func (r *RedisStore) GetModules(ctx context.Context) ([]pairing.ModuleRecord, error) {
	return getDevices[pairing.ModuleRecord](ctx, r, kindModule)
}

func (r *RedisStore) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, 0).Err()
}

// getJSON decodes key into v and reports whether the key existed.
func (r *RedisStore) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, v)
}

func (r *RedisStore) SetBlocks(ctx context.Context, blocks []navigation.NodeBlock) error {
	return r.setJSON(ctx, blocksKey, blocks)
}

func (r *RedisStore) GetBlocks(ctx context.Context) ([]navigation.NodeBlock, bool, error) {
	var blocks []navigation.NodeBlock
	ok, err := r.getJSON(ctx, blocksKey, &blocks)
	return blocks, ok, err
}

func (r *RedisStore) SetBays(ctx context.Context, bays map[string]map[loadingbay.Bay]string) error {
	return r.setJSON(ctx, baysKey, bays)
}

func (r *RedisStore) GetBays(ctx context.Context) (map[string]map[loadingbay.Bay]string, bool, error) {
	var bays map[string]map[loadingbay.Bay]string
	ok, err := r.getJSON(ctx, baysKey, &bays)
	return bays, ok, err
}

func (r *RedisStore) SetUpdatedAt(ctx context.Context, t time.Time) error {
	return r.client.Set(ctx, updatedKey, t.UTC().Format(time.RFC3339Nano), 0).Err()
}

// FlushAll removes every mirrored key.
func (r *RedisStore) FlushAll(ctx context.Context) error {
	for _, kind := range []string{kindFts, kindModule} {
		serials, err := r.client.SMembers(ctx, deviceSetKey(kind)).Result()
		if err != nil {
			return err
		}
		for _, s := range serials {
			r.client.Del(ctx, deviceKey(kind, s))
		}
		r.client.Del(ctx, deviceSetKey(kind))
	}
	return r.client.Del(ctx, blocksKey, baysKey, updatedKey).Err()
}
