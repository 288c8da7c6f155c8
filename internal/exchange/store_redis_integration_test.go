//go:build integration

package exchange_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"boostnet/internal/exchange"
	"boostnet/pkg/platform/sentinel"
	"boostnet/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *exchange.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = exchange.NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

// TestConsumeOnceSingleWinner verifies that GETDEL gives the value to
// exactly one of many concurrent consumers against a real Redis.
func (s *RedisStoreSuite) TestConsumeOnceSingleWinner() {
	ctx := context.Background()

	ok, err := s.store.SetIfAbsent(ctx, "challenge", "payload", time.Minute)
	s.Require().NoError(err)
	s.Require().True(ok)

	const goroutines = 20
	var wg sync.WaitGroup
	var winners atomic.Int32

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.store.ConsumeOnce(ctx, "challenge"); err == nil {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), winners.Load(), "exactly one consumer should win")
}

// TestDecrementSingleUse verifies the Lua decrement admits one redemption on
// a single-use counter under concurrency.
func (s *RedisStoreSuite) TestDecrementSingleUse() {
	ctx := context.Background()

	ok, err := s.store.SetIfAbsent(ctx, "uses", "1", time.Minute)
	s.Require().NoError(err)
	s.Require().True(ok)

	const goroutines = 20
	var wg sync.WaitGroup
	var winners atomic.Int32

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if n, err := s.store.Decrement(ctx, "uses"); err == nil && n >= 0 {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), winners.Load())
}

// TestDecrementMissingKeyDoesNotCreate checks that decrementing an absent key
// reports not-found instead of materializing it at -1.
func (s *RedisStoreSuite) TestDecrementMissingKeyDoesNotCreate() {
	ctx := context.Background()

	_, err := s.store.Decrement(ctx, "absent")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.Get(ctx, "absent")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestTTL verifies expiry against real Redis.
func (s *RedisStoreSuite) TestTTL() {
	ctx := context.Background()

	ok, err := s.store.SetIfAbsent(ctx, "short", "v", time.Second)
	s.Require().NoError(err)
	s.Require().True(ok)

	_, err = s.store.Get(ctx, "short")
	s.Require().NoError(err)

	time.Sleep(1500 * time.Millisecond)

	_, err = s.store.Get(ctx, "short")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
