// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

//go:build libdqlite

package main

import (
	"context"
	"database/sql"
	"net/url"
	"strings"

	"github.com/canonical/go-dqlite/app"
	"github.com/pkg/errors"
)

func init() {
	openers["dqlite"] = openDqlite
}

// openDqlite starts a dqlite node and opens a database on it. The DSN has the
// form dqlite://ADDRESS/DATABASE?dir=DIR&cluster=ADDR,ADDR where dir holds the
// node state and cluster lists nodes to join.
func openDqlite(ctx context.Context, dsn string) (*sql.DB, func() error, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, nil, errors.Wrap(err, "cannot parse dqlite data source")
	}
	if u.Scheme != "dqlite" || u.Host == "" {
		return nil, nil, errors.Errorf("cannot parse dqlite data source %q: want dqlite://ADDRESS/DATABASE", dsn)
	}
	database := strings.TrimPrefix(u.Path, "/")
	if database == "" {
		return nil, nil, errors.Errorf("cannot parse dqlite data source %q: no database", dsn)
	}
	dir := u.Query().Get("dir")
	if dir == "" {
		return nil, nil, errors.Errorf("cannot parse dqlite data source %q: no dir", dsn)
	}

	options := []app.Option{app.WithAddress(u.Host)}
	if cluster := u.Query().Get("cluster"); cluster != "" {
		options = append(options, app.WithCluster(strings.Split(cluster, ",")))
	}
	node, err := app.New(dir, options...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "cannot start dqlite node")
	}
	if err := node.Ready(ctx); err != nil {
		node.Close()
		return nil, nil, errors.Wrap(err, "cannot start dqlite node")
	}
	db, err := node.Open(ctx, database)
	if err != nil {
		node.Close()
		return nil, nil, errors.Wrap(err, "cannot open dqlite database")
	}
	release := func() error {
		if err := db.Close(); err != nil {
			node.Close()
			return err
		}
		return node.Close()
	}
	return db, release, nil
}
