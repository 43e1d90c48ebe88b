package geocode

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aanand-mishra/attendance-api/internal/geo"
	"github.com/aanand-mishra/attendance-api/internal/storage"
)

// Cached puts a storage.PlaceCache in front of another Reverser. Keys are
// the coordinate rounded to six decimals (about 10 cm). Cache errors are
// logged and the lookup falls through to the inner reverser.
type Cached struct {
	Inner Reverser
	Cache storage.PlaceCache
}

// CacheKey is the cache key for c.
func CacheKey(c geo.Coordinate) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

// Reverse implements Reverser.
func (r *Cached) Reverse(ctx context.Context, c geo.Coordinate) (string, error) {
	key := CacheKey(c)

	name, ok, err := r.Cache.GetPlace(ctx, key)
	if err != nil {
		slog.Warn("geocode cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	if ok {
		return name, nil
	}

	name, err = r.Inner.Reverse(ctx, c)
	if err != nil {
		return "", err
	}

	if err := r.Cache.PutPlace(ctx, key, name); err != nil {
		slog.Warn("geocode cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	return name, nil
}
