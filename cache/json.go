package cache

import (
	"context"
	"encoding/json"
	"fmt"
)

// JSON stores JSON-encoded values in a Cache without expiry. Callers own
// key lifecycle and remove entries with Del when they go stale.
type JSON struct {
	c Cache
}

// NewJSON wraps c.
func NewJSON(c Cache) *JSON {
	return &JSON{c: c}
}

// Set encodes data and stores it under key.
func (j *JSON) Set(ctx context.Context, key string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("cache: encode %q: %w", key, err)
	}
	return j.c.Set(ctx, key, string(b), 0)
}

// Get decodes the value under key. A missing key yields an empty list.
func (j *JSON) Get(ctx context.Context, key string) (any, error) {
	var out any
	found, err := j.GetInto(ctx, key, &out)
	if err != nil {
		return nil, err
	}
	if !found {
		return []any{}, nil
	}
	return out, nil
}

// GetStrings decodes a list of strings. A missing key yields an empty list.
func (j *JSON) GetStrings(ctx context.Context, key string) ([]string, error) {
	out := []string{}
	if _, err := j.GetInto(ctx, key, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetInto decodes the value under key into dst and reports whether it existed.
func (j *JSON) GetInto(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := j.c.Get(ctx, key)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("cache: decode %q: %w", key, err)
	}
	return true, nil
}

// Del removes keys.
func (j *JSON) Del(ctx context.Context, keys ...string) error {
	return j.c.Del(ctx, keys...)
}
