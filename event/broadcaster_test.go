package event

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/dshills/courier/key"
	"github.com/dshills/courier/routing"
)

type fileSaved struct{ path string }

type bufferClosed struct{ id int }

func TestBroadcastPriorityOrder(t *testing.T) {
	b := New()

	var order []string
	for _, reg := range []struct {
		name     string
		priority int
	}{
		{"low", 0},
		{"high", 10},
		{"mid", 5},
	} {
		reg := reg
		_, err := b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
			order = append(order, reg.name)
			return nil
		}, routing.WithPriority(reg.priority))
		require.NoError(t, err)
	}

	require.NoError(t, b.Broadcast(context.Background(), fileSaved{}))
	assert.Equal(t, []string{"high", "mid", "low"}, order)
}

func TestBroadcastStableTiebreak(t *testing.T) {
	b := New()

	var order []string
	sub := func(name string, priority int) {
		_, err := b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
			order = append(order, name)
			return nil
		}, routing.WithPriority(priority))
		require.NoError(t, err)
	}
	sub("a", 5)
	sub("b", 5)
	sub("top", 9)
	sub("c", 5)

	require.NoError(t, b.Broadcast(context.Background(), fileSaved{}))
	assert.Equal(t, []string{"top", "a", "b", "c"}, order)
}

func TestBroadcastDeliversPayload(t *testing.T) {
	b := New()

	var got string
	_, err := b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
		got = evt.(fileSaved).path
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Broadcast(context.Background(), fileSaved{path: "main.go"}))
	assert.Equal(t, "main.go", got)
}

func TestOneShotRemovedAfterRound(t *testing.T) {
	b := New()

	calls := 0
	_, err := b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
		calls++
		return nil
	}, routing.WithOnce())
	require.NoError(t, err)

	require.NoError(t, b.Broadcast(context.Background(), fileSaved{}))
	require.NoError(t, b.Broadcast(context.Background(), fileSaved{}))

	assert.Equal(t, 1, calls)
	assert.Zero(t, b.Count(fileSaved{}))
}

func TestOneShotKeptWhenListenerFails(t *testing.T) {
	b := New()

	_, err := b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
		return errors.New("boom")
	}, routing.WithOnce())
	require.NoError(t, err)

	require.Error(t, b.Broadcast(context.Background(), fileSaved{}))
	assert.Equal(t, 1, b.Count(fileSaved{}))
}

func TestOneShotRemovedEvenWhenRoundAborts(t *testing.T) {
	b := New()

	_, err := b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
		return nil
	}, routing.WithOnce(), routing.WithPriority(10))
	require.NoError(t, err)
	_, err = b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
		return errors.New("boom")
	}, routing.WithPriority(5))
	require.NoError(t, err)
	skipped := false
	_, err = b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
		skipped = true
		return nil
	}, routing.WithPriority(0))
	require.NoError(t, err)

	require.Error(t, b.Broadcast(context.Background(), fileSaved{}))

	// The one-shot fired before the abort, so only the failer and the
	// never-reached listener remain.
	assert.False(t, skipped)
	assert.Equal(t, 2, b.Count(fileSaved{}))
}

func TestOwnerDeathCleansUpSubscription(t *testing.T) {
	b := New()

	tok := routing.NewToken()
	calls := 0
	_, err := b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
		calls++
		return nil
	}, routing.WithOwner(tok))
	require.NoError(t, err)

	require.NoError(t, b.Broadcast(context.Background(), fileSaved{}))
	tok.Revoke()
	require.NoError(t, b.Broadcast(context.Background(), fileSaved{}))

	assert.Equal(t, 1, calls)
	assert.Zero(t, b.Count(fileSaved{}))
}

func TestOwnerDeathMidRoundSkipsListener(t *testing.T) {
	b := New()

	tok := routing.NewToken()
	var order []string
	_, err := b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
		order = append(order, "first")
		tok.Revoke()
		return nil
	}, routing.WithPriority(10))
	require.NoError(t, err)
	_, err = b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
		order = append(order, "second")
		return nil
	}, routing.WithOwner(tok))
	require.NoError(t, err)

	require.NoError(t, b.Broadcast(context.Background(), fileSaved{}))
	assert.Equal(t, []string{"first"}, order)
}

func TestBroadcastVeto(t *testing.T) {
	b := New()
	b.Registry().SetMetricsEnabled(true)

	invoked := false
	_, err := b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
		invoked = true
		return nil
	})
	require.NoError(t, err)

	_, err = b.Registry().AddBefore(func(ctx context.Context, k key.Key, msg any) bool {
		return false
	}, 0)
	require.NoError(t, err)

	afterCalls := 0
	var afterErr error
	_, err = b.Registry().AddAfter(func(ctx context.Context, k key.Key, msg any, result any, err error) {
		afterCalls++
		afterErr = err
	}, 0)
	require.NoError(t, err)

	err = b.Broadcast(context.Background(), fileSaved{})

	assert.ErrorIs(t, err, ErrCancelled)
	assert.False(t, invoked)
	assert.Equal(t, 1, afterCalls)
	assert.ErrorIs(t, afterErr, ErrCancelled)
	assert.Empty(t, b.Registry().Metrics().All())
}

func TestAfterHooksRunWithZeroSubscribers(t *testing.T) {
	b := New()

	calls := 0
	var outcome error
	for i := 0; i < 2; i++ {
		_, err := b.Registry().AddAfter(func(ctx context.Context, k key.Key, msg any, result any, err error) {
			calls++
			outcome = err
		}, 0)
		require.NoError(t, err)
	}

	require.NoError(t, b.Broadcast(context.Background(), fileSaved{}))

	assert.Equal(t, 2, calls)
	assert.NoError(t, outcome)
}

func TestSnapshotSafetyMidRound(t *testing.T) {
	b := New()

	var delivered []string
	_, err := b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
		delivered = append(delivered, "one")
		return nil
	}, routing.WithPriority(30))
	require.NoError(t, err)

	var id2, id3 uint64
	id2, err = b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
		delivered = append(delivered, "two")
		b.Unsubscribe(fileSaved{}, id2)
		b.Unsubscribe(fileSaved{}, id3)
		return nil
	}, routing.WithPriority(20))
	require.NoError(t, err)
	id3, err = b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
		delivered = append(delivered, "three")
		return nil
	}, routing.WithPriority(10))
	require.NoError(t, err)

	// Unsubscribing mid-round must not disturb the in-flight snapshot.
	require.NoError(t, b.Broadcast(context.Background(), fileSaved{}))
	assert.Equal(t, []string{"one", "two", "three"}, delivered)

	require.NoError(t, b.Broadcast(context.Background(), fileSaved{}))
	assert.Equal(t, []string{"one", "two", "three", "one"}, delivered)
	assert.Equal(t, 1, b.Count(fileSaved{}))
}

func TestBroadcastFailLoudByDefault(t *testing.T) {
	b := New()
	errBoom := errors.New("boom")

	var order []string
	_, err := b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
		order = append(order, "ok")
		return nil
	}, routing.WithPriority(10))
	require.NoError(t, err)
	failerID, err := b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
		order = append(order, "fail")
		return errBoom
	}, routing.WithPriority(5))
	require.NoError(t, err)
	_, err = b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
		order = append(order, "never")
		return nil
	}, routing.WithPriority(0))
	require.NoError(t, err)

	err = b.Broadcast(context.Background(), fileSaved{})

	require.Error(t, err)
	assert.Equal(t, []string{"ok", "fail"}, order)
	assert.ErrorIs(t, err, errBoom)

	var lerr *ListenerError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, failerID, lerr.ID)
	assert.Equal(t, key.Of[fileSaved](), lerr.Key)
}

func TestBroadcastErrorIsolation(t *testing.T) {
	b := New(WithErrorIsolation())
	errOne := errors.New("one")
	errTwo := errors.New("two")

	var order []string
	_, err := b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
		order = append(order, "fail1")
		return errOne
	}, routing.WithPriority(10))
	require.NoError(t, err)
	_, err = b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
		order = append(order, "ok")
		return nil
	}, routing.WithPriority(5))
	require.NoError(t, err)
	_, err = b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
		order = append(order, "fail2")
		return errTwo
	}, routing.WithPriority(0))
	require.NoError(t, err)

	err = b.Broadcast(context.Background(), fileSaved{})

	require.Error(t, err)
	assert.Equal(t, []string{"fail1", "ok", "fail2"}, order)
	assert.Len(t, multierr.Errors(err), 2)
	assert.ErrorIs(t, err, errOne)
	assert.ErrorIs(t, err, errTwo)
}

func TestFilterSkipPreservesOneShot(t *testing.T) {
	b := New()

	calls := 0
	_, err := b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
		calls++
		return nil
	},
		routing.WithOnce(),
		routing.WithFilter(func(evt any) bool {
			return evt.(fileSaved).path != ""
		}),
	)
	require.NoError(t, err)

	require.NoError(t, b.Broadcast(context.Background(), fileSaved{}))
	assert.Zero(t, calls)
	assert.Equal(t, 1, b.Count(fileSaved{}))

	require.NoError(t, b.Broadcast(context.Background(), fileSaved{path: "main.go"}))
	assert.Equal(t, 1, calls)
	assert.Zero(t, b.Count(fileSaved{}))
}

func TestSubscribeTyped(t *testing.T) {
	b := New()

	var got string
	_, err := SubscribeTyped(b, func(ctx context.Context, evt fileSaved) error {
		got = evt.path
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Broadcast(context.Background(), fileSaved{path: "a.go"}))
	assert.Equal(t, "a.go", got)
}

func TestSubscribeTypedIgnoresOtherPayloads(t *testing.T) {
	b := New()

	calls := 0
	_, err := SubscribeTyped(b, func(ctx context.Context, evt fileSaved) error {
		calls++
		return nil
	}, routing.WithOnce())
	require.NoError(t, err)

	// A pointer resolves to the same key but is not a fileSaved value; the
	// type filter skips it without consuming the one-shot.
	require.NoError(t, b.Broadcast(context.Background(), &fileSaved{}))
	assert.Zero(t, calls)
	assert.Equal(t, 1, b.Count(fileSaved{}))

	require.NoError(t, b.Broadcast(context.Background(), fileSaved{}))
	assert.Equal(t, 1, calls)
	assert.Zero(t, b.Count(fileSaved{}))
}

func TestSubscribeTypedNilFunc(t *testing.T) {
	b := New()
	_, err := SubscribeTyped[fileSaved](b, nil)
	assert.ErrorIs(t, err, routing.ErrInvalidHandler)
}

func TestBroadcastRecoversPanic(t *testing.T) {
	b := New()

	_, err := b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
		panic("kaboom")
	})
	require.NoError(t, err)

	err = b.Broadcast(context.Background(), fileSaved{})

	require.Error(t, err)
	assert.ErrorIs(t, err, routing.ErrHandlerPanic)

	var lerr *ListenerError
	require.ErrorAs(t, err, &lerr)

	var perr *routing.PanicError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "kaboom", perr.Value)
}

func TestBroadcastPanicPropagatesWhenDisabled(t *testing.T) {
	b := New(WithPanicRecovery(false))

	_, err := b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
		panic("kaboom")
	})
	require.NoError(t, err)

	assert.Panics(t, func() {
		_ = b.Broadcast(context.Background(), fileSaved{})
	})
}

func TestBroadcastAndWait(t *testing.T) {
	b := New()

	calls := 0
	_, err := b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
		calls++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.BroadcastAndWait(context.Background(), fileSaved{}))
	assert.Equal(t, 1, calls)
}

func TestBroadcastNilEvent(t *testing.T) {
	b := New()

	called := false
	_, err := b.Registry().AddAfter(func(ctx context.Context, k key.Key, msg any, result any, err error) {
		called = true
	}, 0)
	require.NoError(t, err)

	err = b.Broadcast(context.Background(), nil)

	assert.ErrorIs(t, err, ErrUnresolvedKey)
	assert.False(t, called)
}

func TestBroadcastMetricsCoverWholeRound(t *testing.T) {
	b := New()
	b.Registry().SetMetricsEnabled(true)

	for i := 0; i < 2; i++ {
		_, err := b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
			time.Sleep(time.Millisecond)
			return nil
		})
		require.NoError(t, err)
	}

	require.NoError(t, b.Broadcast(context.Background(), fileSaved{}))

	km, ok := b.Registry().Metrics().Get(key.Of[fileSaved]())
	require.True(t, ok)
	assert.Equal(t, uint64(1), km.Count)
	assert.GreaterOrEqual(t, km.Total, 2*time.Millisecond)
}

func TestBroadcastMetricsRecordEmptyRounds(t *testing.T) {
	b := New()
	b.Registry().SetMetricsEnabled(true)

	require.NoError(t, b.Broadcast(context.Background(), bufferClosed{}))

	km, ok := b.Registry().Metrics().Get(key.Of[bufferClosed]())
	require.True(t, ok)
	assert.Equal(t, uint64(1), km.Count)
}

func TestUnsubscribe(t *testing.T) {
	b := New()

	id, err := b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
		return nil
	})
	require.NoError(t, err)

	assert.True(t, b.Unsubscribe(fileSaved{}, id))
	assert.False(t, b.Unsubscribe(fileSaved{}, id))
	assert.Zero(t, b.Count(fileSaved{}))
}

func TestUnsubscribeListener(t *testing.T) {
	b := New()

	l := ListenerFunc(func(ctx context.Context, evt any) error { return nil })
	_, err := b.Subscribe(fileSaved{}, l)
	require.NoError(t, err)
	_, err = b.Subscribe(fileSaved{}, l)
	require.NoError(t, err)

	assert.Equal(t, 2, b.UnsubscribeListener(fileSaved{}, l))
	assert.Zero(t, b.Count(fileSaved{}))
}

func TestClear(t *testing.T) {
	b := New()

	_, err := b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error { return nil })
	require.NoError(t, err)
	_, err = b.SubscribeFunc(bufferClosed{}, func(ctx context.Context, evt any) error { return nil })
	require.NoError(t, err)

	b.Clear(fileSaved{})

	assert.Zero(t, b.Count(fileSaved{}))
	assert.Equal(t, 1, b.Count(bufferClosed{}))
}

func TestBroadcastContextReachesListener(t *testing.T) {
	type ctxKey struct{}
	b := New()

	var got any
	_, err := b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
		got = ctx.Value(ctxKey{})
		return nil
	})
	require.NoError(t, err)

	ctx := context.WithValue(context.Background(), ctxKey{}, "v")
	require.NoError(t, b.Broadcast(ctx, fileSaved{}))
	assert.Equal(t, "v", got)
}

func TestConcurrentSubscribeAndBroadcast(t *testing.T) {
	b := New()

	var hits atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, err := b.SubscribeFunc(fileSaved{}, func(ctx context.Context, evt any) error {
					hits.Add(1)
					return nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.NoError(t, b.Broadcast(context.Background(), fileSaved{}))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, b.Count(fileSaved{}))

	before := hits.Load()
	require.NoError(t, b.Broadcast(context.Background(), fileSaved{}))
	assert.Equal(t, before+200, hits.Load())
}
