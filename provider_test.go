package solvent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderModes(t *testing.T) {
	t.Parallel()

	key := NewKey("Port")

	tests := []struct {
		name     string
		provider *Provider
		mode     Mode
		async    bool
		resource bool
	}{
		{"static", Static(key, 8080), SyncValue, false, false},
		{"value", Value(key, func(Deps) (int, error) { return 8080, nil }), SyncValue, false, false},
		{"resource", Resource(key, func(Deps) (int, ReleaseFunc, error) { return 8080, nil, nil }), SyncResource, false, true},
		{"async value", AsyncValue(key, func(context.Context, Deps) (int, error) { return 8080, nil }), ModeAsyncValue, true, false},
		{"async resource", AsyncResource(key, func(context.Context, Deps) (int, ReleaseFunc, error) { return 8080, nil, nil }), ModeAsyncResource, true, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.mode, tt.provider.Mode())
			assert.Equal(t, tt.async, tt.provider.Mode().IsAsync())
			assert.Equal(t, tt.resource, tt.provider.Mode().IsResource())
			assert.Same(t, key, tt.provider.Provides())
		})
	}
}

func TestProviderRequiresSelf(t *testing.T) {
	t.Parallel()

	handlers := NewKey("Handlers")
	logger := NewKey("Logger")

	plain := Value(handlers, func(Deps) ([]string, error) { return nil, nil }, logger)
	accumulator := Value(handlers, func(d Deps) ([]string, error) {
		return append(Get[[]string](d, handlers), "next"), nil
	}, handlers, logger)

	assert.False(t, plain.requiresSelf())
	assert.True(t, accumulator.requiresSelf())
}

func TestProviderValidate(t *testing.T) {
	t.Parallel()

	t.Run("union key cannot be provided", func(t *testing.T) {
		t.Parallel()

		u := UnionKey("Either", NewKey("A"), NewKey("B"))
		p := Static(u, "x")

		err := p.validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnionProvided)
	})

	t.Run("unbound generic provider is rejected", func(t *testing.T) {
		t.Parallel()

		p := Generic[string](func(...any) *Key { return nil },
			func(Deps, ...any) (string, error) { return "", nil })

		err := p.validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnboundProvider)
	})
}

func TestProviderBind(t *testing.T) {
	t.Parallel()

	tableKeys := map[string]*Key{
		"users":  NewKey("Table[users]"),
		"orders": NewKey("Table[orders]"),
	}

	table := Generic[string](
		func(args ...any) *Key { return tableKeys[args[0].(string)] },
		func(_ Deps, args ...any) (string, error) {
			return "SELECT * FROM " + args[0].(string), nil
		},
	)

	users := table.Bind("users")
	orders := table.Bind("orders")

	assert.Same(t, tableKeys["users"], users.Provides())
	assert.Same(t, tableKeys["orders"], orders.Provides())
	assert.NotEqual(t, users.id, orders.id)

	v, _, err := users.acquire(context.Background(), Deps{}, users.args)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users", v)
}

func TestProviderFor(t *testing.T) {
	t.Parallel()

	base := NewKey("Cache")
	narrow := NewKey("RequestCache")

	p := Static(base, "shared")
	q := p.For(narrow)

	assert.Same(t, base, p.Provides())
	assert.Same(t, narrow, q.Provides())
	assert.Panics(t, func() { p.For(nil) })
}

func TestTupleProvider(t *testing.T) {
	t.Parallel()

	host, port := NewKey("Host"), NewKey("Port")
	addr := TupleKey("Addr", host, port)

	t.Run("rejects non-tuple keys", func(t *testing.T) {
		t.Parallel()

		assert.Panics(t, func() {
			Tuple(NewKey("Plain"), func(Deps) ([]any, error) { return nil, nil })
		})
	})

	t.Run("rejects wrong arity at acquire time", func(t *testing.T) {
		t.Parallel()

		p := Tuple(addr, func(Deps) ([]any, error) {
			return []any{"localhost"}, nil
		})

		_, _, err := p.acquire(context.Background(), Deps{}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "returned 1 values, want 2")
	})
}

func TestOnceRelease(t *testing.T) {
	t.Parallel()

	calls := 0
	release := onceRelease(func(context.Context) error {
		calls++
		return errors.New("boom")
	})

	err1 := release(context.Background())
	err2 := release(context.Background())

	assert.EqualError(t, err1, "boom")
	assert.NoError(t, err2)
	assert.Equal(t, 1, calls)

	assert.Nil(t, onceRelease(nil))
}
