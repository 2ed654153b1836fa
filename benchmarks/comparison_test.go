// Package benchmarks provides comparative benchmarks between solvent and
// other DI libraries.
//
// Run benchmarks with: go test -bench=. -benchmem ./benchmarks/
package benchmarks

import (
	"testing"

	"github.com/samber/do/v2"
	"go.uber.org/dig"

	"github.com/solventdi/solvent"
)

// Shared service shapes: a four-level chain with a diamond at the bottom.

type Logger struct{ Name string }

func NewLogger() *Logger { return &Logger{Name: "logger"} }

type Config struct{ Value string }

func NewConfig() *Config { return &Config{Value: "config"} }

type Database struct {
	Logger *Logger
	Config *Config
}

func NewDatabase(logger *Logger, config *Config) *Database {
	return &Database{Logger: logger, Config: config}
}

type UserService struct {
	Logger   *Logger
	Config   *Config
	Database *Database
}

func NewUserService(logger *Logger, config *Config, db *Database) *UserService {
	return &UserService{Logger: logger, Config: config, Database: db}
}

// solvent keys

var (
	loggerKey  = solvent.NewKey("Logger")
	configKey  = solvent.NewKey("Config")
	dbKey      = solvent.NewKey("Database")
	serviceKey = solvent.NewKey("UserService")
)

func newSolventEngine(b *testing.B) *solvent.Engine {
	b.Helper()
	e := solvent.New()
	err := e.Use(
		solvent.Value(loggerKey, func(solvent.Deps) (*Logger, error) { return NewLogger(), nil }),
		solvent.Value(configKey, func(solvent.Deps) (*Config, error) { return NewConfig(), nil }),
		solvent.Value(dbKey, func(d solvent.Deps) (*Database, error) {
			return NewDatabase(solvent.Get[*Logger](d, loggerKey), solvent.Get[*Config](d, configKey)), nil
		}, loggerKey, configKey),
		solvent.Value(serviceKey, func(d solvent.Deps) (*UserService, error) {
			return NewUserService(
				solvent.Get[*Logger](d, loggerKey),
				solvent.Get[*Config](d, configKey),
				solvent.Get[*Database](d, dbKey),
			), nil
		}, loggerKey, configKey, dbKey),
	)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = e.Close() })
	return e
}

func BenchmarkResolveChain_Solvent(b *testing.B) {
	e := newSolventEngine(b)
	site := solvent.NewSite(func(d solvent.Deps) (*UserService, error) {
		return solvent.Get[*UserService](d, serviceKey), nil
	}, serviceKey)

	scope := e.NewScope()
	defer scope.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := site.Call(scope); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkResolveChain_SolventShared(b *testing.B) {
	e := newSolventEngine(b)
	site := solvent.NewSite(func(d solvent.Deps) (*UserService, error) {
		return solvent.Get[*UserService](d, serviceKey), nil
	}, serviceKey).Shared()

	scope := e.NewScope()
	defer scope.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := site.Call(scope); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkResolveChain_Dig(b *testing.B) {
	c := dig.New()
	for _, ctor := range []any{NewLogger, NewConfig, NewDatabase, NewUserService} {
		if err := c.Provide(ctor); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := c.Invoke(func(*UserService) {}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkResolveChain_SamberDo(b *testing.B) {
	injector := do.New()
	do.Provide(injector, func(do.Injector) (*Logger, error) { return NewLogger(), nil })
	do.Provide(injector, func(do.Injector) (*Config, error) { return NewConfig(), nil })
	do.Provide(injector, func(i do.Injector) (*Database, error) {
		return NewDatabase(do.MustInvoke[*Logger](i), do.MustInvoke[*Config](i)), nil
	})
	do.Provide(injector, func(i do.Injector) (*UserService, error) {
		return NewUserService(do.MustInvoke[*Logger](i), do.MustInvoke[*Config](i), do.MustInvoke[*Database](i)), nil
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := do.Invoke[*UserService](injector); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkScopeOpenClose_Solvent(b *testing.B) {
	e := newSolventEngine(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		scope := e.NewScope()
		if err := scope.Share(serviceKey); err != nil {
			b.Fatal(err)
		}
		if err := scope.Close(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSolvePlanCacheHit_Solvent(b *testing.B) {
	e := newSolventEngine(b)
	scope := e.NewScope()
	defer scope.Close()

	site := solvent.NewSite(func(d solvent.Deps) (*UserService, error) {
		return solvent.Get[*UserService](d, serviceKey), nil
	}, serviceKey)

	if _, err := site.Call(scope); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := site.Call(scope); err != nil {
			b.Fatal(err)
		}
	}
}
