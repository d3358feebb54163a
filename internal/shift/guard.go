package shift

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Guard enforces the one-active-shift-per-cashier rule across devices using a
// Redis key per (branch, user). The local aggregate enforces the same rule in
// memory; the guard covers reloads and second terminals.
type Guard struct {
	R *redis.Client
}

func guardKey(branchID, userID string) string {
	return fmt.Sprintf("pos:shift:active:%s:%s", branchID, userID)
}

// Acquire marks the cashier as holding an active shift. Returns
// ErrAlreadyActive when another active shift is already registered.
func (g Guard) Acquire(ctx context.Context, branchID, userID, shiftID string) error {
	if g.R == nil {
		return errors.New("shift guard: redis client not configured")
	}
	ok, err := g.R.SetNX(ctx, guardKey(branchID, userID), shiftID, 0).Result()
	if err != nil {
		return fmt.Errorf("shift guard: %w", err)
	}
	if !ok {
		return ErrAlreadyActive
	}
	return nil
}

// Holder returns the shift id currently registered for the cashier, or empty
// when no shift is active.
func (g Guard) Holder(ctx context.Context, branchID, userID string) (string, error) {
	if g.R == nil {
		return "", errors.New("shift guard: redis client not configured")
	}
	id, err := g.R.Get(ctx, guardKey(branchID, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("shift guard: %w", err)
	}
	return id, nil
}

// Release clears the registration after the shift is closed. Only the holder
// of the recorded shift id may release.
func (g Guard) Release(ctx context.Context, branchID, userID, shiftID string) error {
	if g.R == nil {
		return errors.New("shift guard: redis client not configured")
	}
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`
	if err := g.R.Eval(ctx, script, []string{guardKey(branchID, userID)}, shiftID).Err(); err != nil {
		return fmt.Errorf("shift guard: %w", err)
	}
	return nil
}
