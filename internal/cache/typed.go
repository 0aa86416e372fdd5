package cache

import (
	"context"
	"encoding/json"
	"fmt"

	tiercache "github.com/eugener/tiercache/internal"
)

// GetAs looks up key and decodes the cached JSON into T.
func GetAs[T any](ctx context.Context, s *Service, key string) (T, bool, error) {
	var zero T
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return zero, ok, err
	}
	v, err := decode[T](key, raw)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// GetOrSetAs is GetOrSet with a typed fetcher and result.
func GetOrSetAs[T any](ctx context.Context, s *Service, key string, fetch func(context.Context) (T, error)) (T, error) {
	raw, err := s.GetOrSet(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return decode[T](key, raw)
}

func decode[T any](key string, raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: decode %q: %w", tiercache.ErrSerialization, key, err)
	}
	return v, nil
}
