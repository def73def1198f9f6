package courier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/dshills/courier/command"
	"github.com/dshills/courier/key"
	"github.com/dshills/courier/routing"
)

type openBuffer struct{ name string }

type bufferOpened struct{ name string }

func TestFacadeRoutesBothDisciplines(t *testing.T) {
	c := New()

	_, err := command.RegisterTyped(c.Commands(), func(ctx context.Context, cmd openBuffer) (any, error) {
		return "opened:" + cmd.name, nil
	})
	require.NoError(t, err)

	var seen string
	_, err = c.Events().SubscribeFunc(bufferOpened{}, func(ctx context.Context, evt any) error {
		seen = evt.(bufferOpened).name
		return nil
	})
	require.NoError(t, err)

	res, err := c.Dispatch(context.Background(), openBuffer{name: "main.go"})
	require.NoError(t, err)
	assert.Equal(t, "opened:main.go", res)

	require.NoError(t, c.Broadcast(context.Background(), bufferOpened{name: "main.go"}))
	assert.Equal(t, "main.go", seen)
}

func TestFacadeSharesResolver(t *testing.T) {
	// A resolver that routes everything to one key, proving the override
	// reaches both disciplines.
	fixed := resolverFunc(func(v any) key.Key {
		if v == nil {
			return ""
		}
		return key.Key("fixed")
	})
	c := New(func(o *Options) { o.Resolver = fixed })

	_, err := c.Commands().RegisterFunc("anything", func(ctx context.Context, cmd any) (any, error) {
		return "hit", nil
	})
	require.NoError(t, err)

	res, err := c.Dispatch(context.Background(), openBuffer{})
	require.NoError(t, err)
	assert.Equal(t, "hit", res)

	calls := 0
	_, err = c.Events().SubscribeFunc(struct{}{}, func(ctx context.Context, evt any) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, c.Broadcast(context.Background(), bufferOpened{}))
	assert.Equal(t, 1, calls)
}

func TestFacadeIsolationOption(t *testing.T) {
	c := New(func(o *Options) { o.IsolateListenerErrors = true })

	errBoom := errors.New("boom")
	reached := false
	_, err := c.Events().SubscribeFunc(bufferOpened{}, func(ctx context.Context, evt any) error {
		return errBoom
	}, routing.WithPriority(10))
	require.NoError(t, err)
	_, err = c.Events().SubscribeFunc(bufferOpened{}, func(ctx context.Context, evt any) error {
		reached = true
		return nil
	})
	require.NoError(t, err)

	err = c.Broadcast(context.Background(), bufferOpened{})

	assert.True(t, reached)
	assert.Len(t, multierr.Errors(err), 1)
	assert.ErrorIs(t, err, errBoom)
}

func TestFacadePanicPolicy(t *testing.T) {
	c := New(func(o *Options) { o.RecoverPanics = false })

	_, err := c.Commands().RegisterFunc(openBuffer{}, func(ctx context.Context, cmd any) (any, error) {
		panic("kaboom")
	})
	require.NoError(t, err)

	assert.Panics(t, func() {
		_, _ = c.Dispatch(context.Background(), openBuffer{})
	})
}

// resolverFunc adapts a function to key.Resolver for tests.
type resolverFunc func(v any) key.Key

func (f resolverFunc) Resolve(v any) key.Key { return f(v) }
