package services

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// RetryPolicy bounds how long a per-table operation may keep retrying after
// losing a version race.
type RetryPolicy struct {
	MaxAttempts int
	Timeout     time.Duration
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Timeout:     3 * time.Second,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    200 * time.Millisecond,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = def.MaxDelay
		if p.MaxDelay < p.BaseDelay {
			p.MaxDelay = p.BaseDelay
		}
	}
	return p
}

// Do runs op until it succeeds, fails with an error other than a lost race,
// or the attempt budget or deadline is spent. Exhaustion is reported as
// ErrConflict.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	p = p.withDefaults()
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	delay := p.BaseDelay
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = op(ctx)
		if err == nil || !errors.Is(err, ErrConflict) || IsRefusal(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := delay/2 + time.Duration(rand.Int63n(int64(delay/2)+1))
		select {
		case <-ctx.Done():
			return errors.Wrapf(ErrConflict, "gave up after %d attempts: %v", attempt, ctx.Err())
		case <-time.After(wait):
		}
		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return errors.Wrapf(ErrConflict, "gave up after %d attempts: %v", p.MaxAttempts, err)
}

// runInTx executes fn in one transaction per attempt. A failed attempt is
// rolled back completely before the next one starts from a fresh read.
func runInTx(ctx context.Context, db *gorm.DB, policy RetryPolicy, fn func(tx *gorm.DB) error) error {
	return policy.Do(ctx, func(ctx context.Context) error {
		return translateStorageError(db.WithContext(ctx).Transaction(fn))
	})
}
