// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlmapper

import (
	"context"
	"database/sql"
	"sync"

	. "gopkg.in/check.v1"

	"github.com/canonical/sqlmapper/internal/node"
)

type ExecutorSuite struct{}

var _ = Suite(&ExecutorSuite{})

func openCounted(c *C) (*sql.DB, string) {
	name := c.TestName()
	db, err := sql.Open("sqlite3_counted", "file:"+name+"?mode=memory&"+dbNameTag+"="+name)
	c.Assert(err, IsNil)
	db.SetMaxOpenConns(1)
	_, err = db.Exec("CREATE TABLE person (id integer primary key, name text, team text)")
	c.Assert(err, IsNil)
	return db, name
}

func (s *ExecutorSuite) TestStatementsAreReused(c *C) {
	db, name := openCounted(c)
	defer db.Close()
	e := NewDBExecutor(db)
	ctx := context.Background()

	for _, n := range []string{"fred", "mark", "mary"} {
		_, err := e.Exec(ctx, "INSERT INTO person (name) VALUES (:name)", []any{sql.Named("name", n)})
		c.Assert(err, IsNil)
	}
	rows, err := e.Query(ctx, "SELECT id, name FROM person WHERE id > ?", []any{1})
	c.Assert(err, IsNil)
	c.Assert(rows, HasLen, 2)
	c.Assert(rows[0].Columns, DeepEquals, []string{"id", "name"})
	c.Assert(rows[0].Map(), DeepEquals, map[string]any{"id": int64(2), "name": "mark"})

	_, err = e.Query(ctx, "SELECT id, name FROM person WHERE id > ?", []any{0})
	c.Assert(err, IsNil)

	opened, closed := stmtCounts(name)
	c.Assert(opened, Equals, 2)
	c.Assert(closed, Equals, 0)

	c.Assert(e.Close(), IsNil)
	opened, closed = stmtCounts(name)
	c.Assert(closed, Equals, opened)
	c.Assert(e.stmts, HasLen, 0)
}

func (s *ExecutorSuite) TestConcurrentPrepare(c *C) {
	db, name := openCounted(c)
	defer db.Close()
	e := NewDBExecutor(db)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Query(context.Background(), "SELECT count(*) FROM person", nil)
			c.Check(err, IsNil)
		}()
	}
	wg.Wait()
	c.Assert(e.stmts, HasLen, 1)

	// Statements prepared by goroutines that lost the race are closed.
	c.Assert(e.Close(), IsNil)
	opened, closed := stmtCounts(name)
	c.Assert(closed, Equals, opened)
}

func (s *ExecutorSuite) TestErrors(c *C) {
	db, _ := openCounted(c)
	defer db.Close()
	e := NewDBExecutor(db)

	_, err := e.Query(context.Background(), "SELECT nothing FROM nowhere", nil)
	c.Assert(err, ErrorMatches, "cannot prepare statement: no such table: nowhere")
	_, err = e.Exec(context.Background(), "INSERT INTO person (id) VALUES (1), (1)", nil)
	c.Assert(err, ErrorMatches, "cannot run statement: UNIQUE constraint failed: person.id")
}

func (s *ExecutorSuite) TestBindArgs(c *C) {
	params := node.NewParams()
	params.Set(":name_0", "fred")
	params.Set(":id_1", 7)

	c.Assert(bindArgs(params, ":"), DeepEquals, []any{sql.Named("name_0", "fred"), sql.Named("id_1", 7)})

	positional := node.NewParams()
	positional.Set("name_0", "fred")
	positional.Set("id_1", 7)
	c.Assert(bindArgs(positional, ""), DeepEquals, []any{"fred", 7})
}
