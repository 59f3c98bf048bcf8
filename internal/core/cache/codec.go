package cache

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
)

// Encode marshals a cached value.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode cache payload: %w", err)
	}
	return data, nil
}

// Decode unmarshals a cached payload into v.
func Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode cache payload: %w", err)
	}
	return nil
}

// Load is the typed form of GetOrFetch. fetch runs only on a miss and its
// value is encoded and written through both tiers. The bool reports a cache hit.
// A cached payload that no longer decodes is invalidated and refetched.
func Load[T any](ctx context.Context, c *Cache, key string, policy Policy, fetch func(ctx context.Context) (T, error)) (T, bool, error) {
	var zero T

	loader := func(ctx context.Context) ([]byte, error) {
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return Encode(value)
	}

	payload, hit, err := c.GetOrFetch(ctx, key, policy, loader)
	if err != nil {
		return zero, false, err
	}

	var value T
	if err := Decode(payload, &value); err != nil {
		if !hit {
			return zero, false, err
		}
		_ = c.Invalidate(ctx, key)
		payload, _, err = c.GetOrFetch(ctx, key, policy, loader)
		if err != nil {
			return zero, false, err
		}
		if err := Decode(payload, &value); err != nil {
			return zero, false, err
		}
		return value, false, nil
	}
	return value, hit, nil
}
