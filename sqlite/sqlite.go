// Package sqlite provides SQLite-backed resource providers.
//
// Database handles and transactions are natural scope-bound resources:
// the connection provider opens a *sql.DB released when its scope closes,
// and the transaction provider begins a *sql.Tx that commits on a clean
// release and has rolled back on any earlier exit.
package sqlite

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/mattn/go-sqlite3"

	"github.com/solventdi/solvent"
)

// Keys for the providers in this package. Applications that need several
// databases in one engine can mint their own keys and use the provider
// factories directly.
var (
	// DB resolves to a *sql.DB.
	DB = solvent.NewKey("sqlite.DB")
	// Tx resolves to a *sql.Tx scoped to the frame that resolved it.
	Tx = solvent.NewKey("sqlite.Tx")
	// DSN is the data source name consumed by the DB provider.
	DSN = solvent.NewKey("sqlite.DSN")
)

// Providers returns a set wiring DSN -> DB -> Tx with the given data
// source name.
func Providers(dsn string) *solvent.Set {
	return solvent.NewSet("sqlite",
		solvent.Static(DSN, dsn),
		DBProvider(DB, DSN),
		TxProvider(Tx, DB),
	)
}

// DBProvider creates a provider that opens a SQLite database for the
// resolving scope and closes it when the scope does. dsnKey must resolve
// to the data source name string.
func DBProvider(key, dsnKey *solvent.Key) *solvent.Provider {
	return solvent.Resource(key, func(d solvent.Deps) (*sql.DB, solvent.ReleaseFunc, error) {
		db, err := sql.Open("sqlite3", solvent.Get[string](d, dsnKey))
		if err != nil {
			return nil, nil, err
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return db, func(context.Context) error {
			return db.Close()
		}, nil
	}, dsnKey)
}

// TxProvider creates a provider that begins a transaction on the database
// under dbKey. The transaction commits when the frame that resolved it
// releases cleanly; if anything rolled it back first (including the
// application itself), the commit failure is swallowed and the rollback
// stands.
func TxProvider(key, dbKey *solvent.Key) *solvent.Provider {
	return solvent.AsyncResource(key, func(ctx context.Context, d solvent.Deps) (*sql.Tx, solvent.ReleaseFunc, error) {
		db := solvent.Get[*sql.DB](d, dbKey)
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return nil, nil, err
		}
		return tx, func(context.Context) error {
			err := tx.Commit()
			if errors.Is(err, sql.ErrTxDone) {
				return nil
			}
			return err
		}, nil
	}, dbKey)
}
