package api

import (
	"context"
	"encoding/json"
	"errors"

	"huddle/cmd/internal/viewcache"
)

// cachedView serves key from the view cache, or renders it with load and stores the
// result. The fill is skipped when the key was invalidated while load ran. Cache
// failures degrade to a direct read.
func (h *Handler) cachedView(ctx context.Context, key string, load func() (any, error)) ([]byte, error) {
	fill := false
	var gen int64
	if h.cache != nil {
		b, err := h.cache.Get(ctx, key)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, viewcache.ErrMiss) {
			h.log.Warn("api.cache.get_fail", "key", key, "err", err)
		}

		gen, err = h.cache.Generation(ctx, key)
		if err != nil {
			h.log.Warn("api.cache.generation_fail", "key", key, "err", err)
		} else {
			fill = true
		}
	}

	v, err := load()
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	// json.Encoder output ends with a newline; keep cached bodies identical.
	b = append(b, '\n')

	if fill {
		stored, err := h.cache.SetIfCurrent(ctx, key, gen, b, h.cfg.CacheTTL)
		switch {
		case err != nil:
			h.log.Warn("api.cache.set_fail", "key", key, "err", err)
		case !stored:
			h.log.Debug("api.cache.fill_skipped", "key", key)
		}
	}
	return b, nil
}
