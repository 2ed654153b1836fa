package solvent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/solventdi/solvent/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineUseAtomicity(t *testing.T) {
	t.Parallel()

	good := NewKey("Good")
	union := UnionKey("Bad", NewKey("X"), NewKey("Y"))

	e := New()
	defer e.Close()

	err := e.Use(
		Static(good, 1),
		Static(union, 2), // invalid: unions cannot be provided
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnionProvided)
	assert.Empty(t, e.Registry().candidates(good), "failed Use leaves nothing behind")
}

func TestEngineActivationPops(t *testing.T) {
	t.Parallel()

	recipient := NewKey("Recipient")
	greeting := NewKey("Greeting")

	e := New()
	defer e.Close()
	require.NoError(t, e.Use(
		Static(recipient, "Alice"),
		Value(greeting, func(d Deps) (string, error) {
			return "Hello " + Get[string](d, recipient), nil
		}, recipient),
	))

	site := NewSite(func(d Deps) (string, error) {
		return Get[string](d, greeting), nil
	}, greeting)

	scope := e.NewScope()
	defer scope.Close()

	v, err := site.Call(scope)
	require.NoError(t, err)
	assert.Equal(t, "Hello Alice", v)

	act, err := e.Activate(Static(recipient, "Bob"))
	require.NoError(t, err)

	v, err = site.Call(scope)
	require.NoError(t, err)
	assert.Equal(t, "Hello Bob", v)

	act.Close()
	act.Close() // idempotent

	v, err = site.Call(scope)
	require.NoError(t, err)
	assert.Equal(t, "Hello Alice", v, "closing the activation restores the shadowed provider")
}

func TestEngineRemove(t *testing.T) {
	t.Parallel()

	recipient := NewKey("Recipient")

	e := New()
	defer e.Close()
	require.NoError(t, e.Use(Static(recipient, "Alice")))

	scope := e.NewScope()
	defer scope.Close()

	site := NewSite(func(d Deps) (string, error) {
		return Get[string](d, recipient), nil
	}, recipient)

	_, err := site.Call(scope)
	require.NoError(t, err)

	require.NoError(t, e.Remove(recipient))

	fresh := e.NewScope()
	defer fresh.Close()
	_, err = site.Call(fresh)
	assert.True(t, IsMissingProvider(err))
}

func TestEngineSolutionCache(t *testing.T) {
	t.Parallel()

	config := NewKey("Config")
	db := NewKey("DB")

	e := New()
	defer e.Close()
	require.NoError(t, e.Use(
		Static(config, "cfg"),
		Value(db, func(Deps) (string, error) { return "db", nil }, config),
	))

	scope := e.NewScope()
	defer scope.Close()

	first, err := e.solve([]*Key{db}, true, scope.Lookup)
	require.NoError(t, err)

	again, err := e.solve([]*Key{db}, true, scope.Lookup)
	require.NoError(t, err)
	assert.Same(t, first, again, "unchanged registry reuses the plan")

	// Any registry mutation invalidates the cache.
	require.NoError(t, e.Use(Static(config, "cfg2")))
	third, err := e.solve([]*Key{db}, true, scope.Lookup)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestEngineSolveRevalidatesAmbientReliance(t *testing.T) {
	t.Parallel()

	config := NewKey("Config")
	db := NewKey("DB")

	e := New()
	defer e.Close()
	require.NoError(t, e.Use(Value(db, func(Deps) (string, error) { return "db", nil }, config)))

	seeded := e.NewScope(WithValue(config, "cfg"))
	defer seeded.Close()

	sol, err := e.solve([]*Key{db}, true, seeded.Lookup)
	require.NoError(t, err)
	assert.Equal(t, []*Key{config}, sol.ambient)

	// A scope without the seed cannot reuse that plan.
	bare := e.NewScope()
	defer bare.Close()

	_, err = e.solve([]*Key{db}, true, bare.Lookup)
	require.Error(t, err)
	assert.True(t, IsMissingProvider(err))
}

func TestEngineExecuteSkipsResolvedSteps(t *testing.T) {
	t.Parallel()

	rec := &testutil.Recorder{}
	config := NewKey("Config")
	db := NewKey("DB")

	e := New()
	defer e.Close()
	require.NoError(t, e.Use(
		Value(config, func(Deps) (string, error) {
			rec.Record("config")
			return "cfg", nil
		}),
		Value(db, func(Deps) (string, error) {
			rec.Record("db")
			return "db", nil
		}, config),
	))

	scope := e.NewScope()
	defer scope.Close()
	require.NoError(t, scope.Share(config))

	site := NewSite(func(d Deps) (string, error) {
		return Get[string](d, db), nil
	}, db)

	_, err := site.Call(scope)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Count("config"), "a value already in scope is not re-acquired")
	assert.Equal(t, 1, rec.Count("db"))
}

func TestEngineAcquire(t *testing.T) {
	t.Parallel()

	rec := &testutil.Recorder{}
	conn := NewKey("Conn")

	e := New()
	defer e.Close()
	require.NoError(t, e.Use(Resource(conn, func(Deps) (string, ReleaseFunc, error) {
		rec.Record("open")
		return "conn", func(context.Context) error {
			rec.Record("close")
			return nil
		}, nil
	})))

	scope := e.NewScope()
	defer scope.Close()

	v, release, err := e.Acquire(scope, conn)
	require.NoError(t, err)
	assert.Equal(t, "conn", v)
	assert.Equal(t, []string{"open"}, rec.Events())

	require.NoError(t, release(context.Background()))
	require.NoError(t, release(context.Background()))
	assert.Equal(t, 1, rec.Count("close"))

	// Acquire is fresh: a value already shared in the scope is ignored.
	require.NoError(t, scope.Share(conn))
	rec.Reset()

	_, release2, err := e.Acquire(scope, conn)
	require.NoError(t, err)
	assert.Equal(t, []string{"open"}, rec.Events())
	require.NoError(t, release2(context.Background()))
}

func TestEngineCloseClosesScopes(t *testing.T) {
	t.Parallel()

	rec := &testutil.Recorder{}
	conn := NewKey("Conn")

	e := New()
	require.NoError(t, e.Use(Resource(conn, func(Deps) (string, ReleaseFunc, error) {
		return "conn", func(context.Context) error {
			rec.Record("close")
			return nil
		}, nil
	})))

	s1 := e.NewScope()
	require.NoError(t, s1.Share(conn))
	s2 := e.NewScope()
	require.NoError(t, s2.Share(conn))

	require.NoError(t, e.Close())
	assert.Equal(t, 2, rec.Count("close"))
	assert.True(t, e.IsClosed())

	assert.ErrorIs(t, e.Use(Static(NewKey("X"), 1)), ErrEngineClosed)
	_, err := e.Activate(Static(NewKey("Y"), 2))
	assert.ErrorIs(t, err, ErrEngineClosed)
	assert.Panics(t, func() { e.NewScope() })
	assert.NoError(t, e.Close(), "closing twice is a no-op")
}

func TestEngineCallbacks(t *testing.T) {
	t.Parallel()

	config := NewKey("Config")
	missing := NewKey("Missing")

	var resolved []*Key
	var failed []*Key
	var states []CallState

	e := New(
		WithResolvedCallback(func(key *Key, _ any, d time.Duration) {
			resolved = append(resolved, key)
			assert.GreaterOrEqual(t, d, time.Duration(0))
		}),
		WithErrorCallback(func(key *Key, err error) {
			failed = append(failed, key)
			assert.Error(t, err)
		}),
		WithStateObserver(func(s CallState) {
			states = append(states, s)
		}),
	)
	defer e.Close()
	require.NoError(t, e.Use(Static(config, "cfg")))

	scope := e.NewScope()
	defer scope.Close()

	okSite := NewSite(func(d Deps) (string, error) {
		return Get[string](d, config), nil
	}, config)
	_, err := okSite.Call(scope)
	require.NoError(t, err)

	assert.Equal(t, []*Key{config}, resolved)
	assert.Equal(t, []CallState{StateResolving, StateInvoking, StateReleasing, StateDone}, states)

	states = nil
	badSite := NewSite(func(d Deps) (string, error) { return "", nil }, missing)
	_, err = badSite.Call(scope)
	require.Error(t, err)
	assert.Equal(t, []*Key{missing}, failed)
	assert.Equal(t, CallState(StateFailed), states[len(states)-1])
}

func TestEngineUseSet(t *testing.T) {
	t.Parallel()

	recipient := NewKey("Recipient")
	greeting := NewKey("Greeting")

	base := NewSet("greetings",
		Static(recipient, "World"),
		Value(greeting, func(d Deps) (string, error) {
			return "Hello " + Get[string](d, recipient), nil
		}, recipient),
	)
	prod := base.With(Static(recipient, "Alice"))

	assert.Equal(t, "greetings", prod.Name())
	assert.Len(t, base.Providers(), 2, "With does not mutate the original")

	e := New()
	defer e.Close()
	require.NoError(t, e.UseSet(prod))

	scope := e.NewScope()
	defer scope.Close()

	site := NewSite(func(d Deps) (string, error) {
		return Get[string](d, greeting), nil
	}, greeting)

	v, err := site.Call(scope)
	require.NoError(t, err)
	assert.Equal(t, "Hello Alice", v)
}

func TestEngineProviderFailureReleasesEarlierResources(t *testing.T) {
	t.Parallel()

	rec := &testutil.Recorder{}
	conn := NewKey("Conn")
	svc := NewKey("Svc")

	e := New()
	defer e.Close()
	require.NoError(t, e.Use(
		Resource(conn, func(Deps) (string, ReleaseFunc, error) {
			rec.Record("open")
			return "conn", func(context.Context) error {
				rec.Record("close")
				return nil
			}, nil
		}),
		Value(svc, func(Deps) (string, error) {
			return "", errors.New("boom")
		}, conn),
	))

	scope := e.NewScope()
	defer scope.Close()

	site := NewSite(func(d Deps) (string, error) {
		return Get[string](d, svc), nil
	}, svc)

	_, err := site.Call(scope)
	require.Error(t, err)

	var perr *ProviderExecutionError
	require.ErrorAs(t, err, &perr)
	assert.Same(t, svc, perr.Key)
	assert.Equal(t, []string{"open", "close"}, rec.Events(), "resources acquired before the failure are released")
}
