// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlmapper

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"
)

// This file contains a wrapper sql.Driver over the SQLite driver which counts
// the prepared statements created and closed on each database, so tests can
// check that statements are reused and released.

// openedStmts and closedStmts count the prepared statements created and closed,
// indexed by database name. The mutex must be locked when accessing them.
var openedStmts = map[string]int{}
var closedStmts = map[string]int{}
var stmtCountMutex sync.Mutex

type countingDriver struct {
	driver.Driver
}

type countingConn struct {
	dbName string
	*sqlite3.SQLiteConn
}

type countingStmt struct {
	dbName string
	*sqlite3.SQLiteStmt
}

func (s *countingStmt) Close() error {
	stmtCountMutex.Lock()
	closedStmts[s.dbName]++
	stmtCountMutex.Unlock()
	return s.SQLiteStmt.Close()
}

func (c *countingConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	s, err := c.SQLiteConn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	sm, ok := s.(*sqlite3.SQLiteStmt)
	if !ok {
		panic(fmt.Sprintf("internal error: base driver is not SQLite, got %T", s))
	}
	stmtCountMutex.Lock()
	openedStmts[c.dbName]++
	stmtCountMutex.Unlock()
	return &countingStmt{SQLiteStmt: sm, dbName: c.dbName}, nil
}

func (c *countingConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// dbNameTag is the DSN attribute naming the database for the counters.
const dbNameTag = "dbName"

// Open expects the DSN to name the database with the dbNameTag attribute.
func (d *countingDriver) Open(name string) (driver.Conn, error) {
	var dbName string
	if _, parameters, ok := strings.Cut(name, "?"); ok {
		for _, p := range strings.Split(parameters, "&") {
			if v, ok := strings.CutPrefix(p, dbNameTag+"="); ok {
				dbName = v
			}
		}
	}
	if dbName == "" {
		panic("internal error: dbName is not found in the db DSN")
	}
	baseConn, err := d.Driver.Open(name)
	if err != nil {
		return nil, err
	}
	conn, ok := baseConn.(*sqlite3.SQLiteConn)
	if !ok {
		panic("internal error: base driver is not SQLite")
	}
	return &countingConn{SQLiteConn: conn, dbName: dbName}, nil
}

func stmtCounts(dbName string) (opened, closed int) {
	stmtCountMutex.Lock()
	defer stmtCountMutex.Unlock()
	return openedStmts[dbName], closedStmts[dbName]
}

func init() {
	sql.Register("sqlite3_counted", &countingDriver{
		&sqlite3.SQLiteDriver{},
	})
}
