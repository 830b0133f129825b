package services

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// LiveCache mirrors the newest fix per team into Redis so map dashboards
// can read positions without touching Postgres: a GEO set per tenant plus a
// pub/sub channel per tenant for push consumers. Entirely optional; every
// write is fire-and-forget.
type LiveCache struct {
	rdb           *redis.Client
	lastTTL       time.Duration
	geoKeyPrefix  string
	channelPrefix string
}

// NewLiveCacheFromEnv returns nil (disabled) when REDIS_ADDR is unset
func NewLiveCacheFromEnv() (*LiveCache, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil, nil
	}
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	ttl := 48 * time.Hour
	if v, err := strconv.Atoi(os.Getenv("LAST_POSITION_TTL_SEC")); err == nil && v > 0 {
		ttl = time.Duration(v) * time.Second
	}

	return &LiveCache{
		rdb:           rdb,
		lastTTL:       ttl,
		geoKeyPrefix:  "teams:last:",
		channelPrefix: "locations:",
	}, nil
}

// Publish mirrors one fix into the tenant's GEO set, stores the full
// payload under a TTL'd key, and notifies subscribers. Errors are logged
// and swallowed; the primary write already succeeded.
func (c *LiveCache) Publish(ctx context.Context, tenantID, teamID string, lat, lng float64, payload interface{}) {
	if c == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("⚠️  Live cache marshal failed for team %s: %v", teamID, err)
		return
	}

	pipe := c.rdb.Pipeline()
	pipe.GeoAdd(ctx, c.geoKeyPrefix+tenantID, &redis.GeoLocation{
		Name:      teamID,
		Latitude:  lat,
		Longitude: lng,
	})
	pipe.Set(ctx, c.geoKeyPrefix+tenantID+":"+teamID, data, c.lastTTL)
	pipe.Publish(ctx, c.channelPrefix+tenantID, data)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("⚠️  Live cache publish failed for team %s: %v", teamID, err)
	}
}

// NearbyTeams returns team ids within radiusKm of a point, nearest first
func (c *LiveCache) NearbyTeams(ctx context.Context, tenantID string, lat, lng, radiusKm float64) ([]string, error) {
	if c == nil {
		return nil, nil
	}
	locs, err := c.rdb.GeoSearchLocation(ctx, c.geoKeyPrefix+tenantID, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Latitude:   lat,
			Longitude:  lng,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(locs))
	for _, l := range locs {
		ids = append(ids, l.Name)
	}
	return ids, nil
}

// Close releases the Redis connection
func (c *LiveCache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
