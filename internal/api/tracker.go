package api

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// DriverLocation is the latest known position of a driver's vehicle.
type DriverLocation struct {
	VehicleID string  `json:"vehicleId"`
	DriverID  string  `json:"driverId,omitempty"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	TS        string  `json:"ts"`
}

// LocationTracker stores last-seen vehicle positions. Entries expire;
// a vehicle that stops reporting drops out of listings.
type LocationTracker interface {
	Upsert(ctx context.Context, loc DriverLocation) error
	Get(ctx context.Context, vehicleID string) (DriverLocation, bool, error)
	List(ctx context.Context) ([]DriverLocation, error)
}

func trackerTTL() time.Duration {
	if v := os.Getenv("DRIVER_LOC_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return 5 * time.Minute
}

type memEntry struct {
	loc     DriverLocation
	expires time.Time
}

// MemoryTracker is the single-replica tracker.
type MemoryTracker struct {
	mu  sync.Mutex
	m   map[string]memEntry
	ttl time.Duration
	now func() time.Time
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{m: map[string]memEntry{}, ttl: trackerTTL(), now: time.Now}
}

func (t *MemoryTracker) Upsert(ctx context.Context, loc DriverLocation) error {
	if loc.VehicleID == "" {
		return nil
	}
	t.mu.Lock()
	t.m[loc.VehicleID] = memEntry{loc: loc, expires: t.now().Add(t.ttl)}
	t.mu.Unlock()
	return nil
}

func (t *MemoryTracker) Get(ctx context.Context, vehicleID string) (DriverLocation, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.m[vehicleID]
	if !ok || t.now().After(e.expires) {
		delete(t.m, vehicleID)
		return DriverLocation{}, false, nil
	}
	return e.loc, true, nil
}

func (t *MemoryTracker) List(ctx context.Context) ([]DriverLocation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	out := []DriverLocation{}
	for k, e := range t.m {
		if now.After(e.expires) {
			delete(t.m, k)
			continue
		}
		out = append(out, e.loc)
	}
	return out, nil
}

// RedisTracker shares positions across replicas; expiry rides on key TTL.
type RedisTracker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisTracker() (*RedisTracker, error) {
	opt, err := redis.ParseURL(os.Getenv("REDIS_URL"))
	if err != nil {
		return nil, err
	}
	return &RedisTracker{rdb: redis.NewClient(opt), ttl: trackerTTL()}, nil
}

// NewRedisTrackerWithClient is used by tests to point at a fake server.
func NewRedisTrackerWithClient(rdb *redis.Client, ttl time.Duration) *RedisTracker {
	return &RedisTracker{rdb: rdb, ttl: ttl}
}

const trackerKeyPrefix = "driverloc:"

func (t *RedisTracker) Upsert(ctx context.Context, loc DriverLocation) error {
	if loc.VehicleID == "" {
		return nil
	}
	data, err := json.Marshal(loc)
	if err != nil {
		return err
	}
	return t.rdb.Set(ctx, trackerKeyPrefix+loc.VehicleID, data, t.ttl).Err()
}

func (t *RedisTracker) Get(ctx context.Context, vehicleID string) (DriverLocation, bool, error) {
	data, err := t.rdb.Get(ctx, trackerKeyPrefix+vehicleID).Bytes()
	if err == redis.Nil {
		return DriverLocation{}, false, nil
	}
	if err != nil {
		return DriverLocation{}, false, err
	}
	var loc DriverLocation
	if err := json.Unmarshal(data, &loc); err != nil {
		return DriverLocation{}, false, err
	}
	return loc, true, nil
}

func (t *RedisTracker) List(ctx context.Context) ([]DriverLocation, error) {
	out := []DriverLocation{}
	iter := t.rdb.Scan(ctx, 0, trackerKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := t.rdb.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var loc DriverLocation
		if err := json.Unmarshal(data, &loc); err == nil {
			out = append(out, loc)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
