// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"context"
	"database/sql"
	"slices"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/canonical/sqlmapper/internal/config"
)

// opener opens the database named by dsn and returns a function releasing
// it.
type opener func(ctx context.Context, dsn string) (*sql.DB, func() error, error)

// openers holds the supported drivers by name. Drivers needing native
// libraries register themselves from files behind build tags.
var openers = map[string]opener{
	// cgo SQLite.
	"sqlite3": sqlOpener("sqlite3"),
	// Pure Go SQLite.
	"sqlite": sqlOpener("sqlite"),
}

func sqlOpener(driver string) opener {
	return func(ctx context.Context, dsn string) (*sql.DB, func() error, error) {
		db, err := sql.Open(driver, dsn)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "cannot open %s database", driver)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, errors.Wrapf(err, "cannot open %s database", driver)
		}
		return db, db.Close, nil
	}
}

func openDB(ctx context.Context, ds config.DataSource) (*sql.DB, func() error, error) {
	open, ok := openers[ds.Driver]
	if !ok {
		names := make([]string, 0, len(openers))
		for name := range openers {
			names = append(names, name)
		}
		slices.Sort(names)
		return nil, nil, errors.Errorf("unsupported driver %q, use one of %s", ds.Driver, strings.Join(names, ", "))
	}
	return open(ctx, ds.DSN)
}
