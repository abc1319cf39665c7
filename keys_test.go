// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlmapper_test

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"
	. "gopkg.in/check.v1"

	"github.com/canonical/sqlmapper"
	"github.com/canonical/sqlmapper/internal/logging"
)

type KeySuite struct{}

var _ = Suite(&KeySuite{})

// fakeExecutor records the statements it runs. Queries answer with a single
// row holding key and execs report lastID as the generated id.
type fakeExecutor struct {
	key    any
	lastID int64
	// probe describes the parameter at the time of each call.
	probe func() string
	calls []string
}

func (f *fakeExecutor) record(kind, query string) {
	call := kind + " " + query
	if f.probe != nil {
		call += " [" + f.probe() + "]"
	}
	f.calls = append(f.calls, call)
}

func (f *fakeExecutor) Query(_ context.Context, query string, _ []any) ([]sqlmapper.Row, error) {
	f.record("query", query)
	return []sqlmapper.Row{{Columns: []string{"key"}, Values: []any{f.key}}}, nil
}

func (f *fakeExecutor) Exec(_ context.Context, query string, _ []any) (sql.Result, error) {
	f.record("exec", query)
	return fakeResult(f.lastID), nil
}

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return int64(r), nil }
func (r fakeResult) RowsAffected() (int64, error) { return 1, nil }

const itemMapper = `
<mapper namespace="item">
	<insert id="before">
		<selectKey keyProperty="id" order="before" resultType="int">SELECT next_id FROM seq</selectKey>
		INSERT INTO item (id, name) VALUES (${id}, #{name})
	</insert>
	<insert id="after">
		INSERT INTO item (name) VALUES (#{name})
		<selectKey keyProperty="id" order="after" resultType="int">SELECT last_id FROM seq WHERE name = #{name}</selectKey>
	</insert>
	<insert id="native" useGeneratedKeys="true" keyProperty="id">INSERT INTO item (name) VALUES (#{name})</insert>
	<insert id="plain">INSERT INTO item (name) VALUES (#{name})</insert>
</mapper>
`

type item struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

func newItemMapper(c *C, e sqlmapper.Executor) *sqlmapper.Mapper {
	m := sqlmapper.New(sqlmapper.WithExecutor(e), sqlmapper.WithLogger(logging.Discard()))
	c.Assert(m.LoadBytes([]byte(itemMapper)), IsNil)
	return m
}

func (s *KeySuite) TestKeyBefore(c *C) {
	param := map[string]any{"name": "bolt"}
	e := &fakeExecutor{key: "41", probe: func() string { return fmt.Sprintf("id=%v", param["id"]) }}
	m := newItemMapper(c, e)

	_, err := m.Insert(context.Background(), "item.before", param)
	c.Assert(err, IsNil)
	c.Assert(e.calls, DeepEquals, []string{
		"query SELECT next_id FROM seq [id=<nil>]",
		"exec INSERT INTO item (id, name) VALUES (41, :name_0) [id=41]",
	})
	c.Assert(param["id"], Equals, int64(41))
}

func (s *KeySuite) TestKeyAfter(c *C) {
	param := &item{Name: "nut"}
	e := &fakeExecutor{key: int64(7), probe: func() string { return fmt.Sprintf("id=%d", param.ID) }}
	m := newItemMapper(c, e)

	_, err := m.Insert(context.Background(), "item.after", param)
	c.Assert(err, IsNil)
	c.Assert(e.calls, DeepEquals, []string{
		"exec INSERT INTO item (name) VALUES (:name_0) [id=0]",
		"query SELECT last_id FROM seq WHERE name = :name_0 [id=0]",
	})
	c.Assert(param.ID, Equals, int64(7))
}

func (s *KeySuite) TestKeyNative(c *C) {
	param := &item{Name: "washer"}
	e := &fakeExecutor{lastID: 12, probe: func() string { return fmt.Sprintf("id=%d", param.ID) }}
	m := newItemMapper(c, e)

	res, err := m.Insert(context.Background(), "item.native", param)
	c.Assert(err, IsNil)
	c.Assert(e.calls, DeepEquals, []string{
		"exec INSERT INTO item (name) VALUES (:name_0) [id=0]",
	})
	c.Assert(param.ID, Equals, int64(12))
	affected, err := res.RowsAffected()
	c.Assert(err, IsNil)
	c.Assert(affected, Equals, int64(1))
}

func (s *KeySuite) TestKeyNone(c *C) {
	param := map[string]any{"name": "screw"}
	e := &fakeExecutor{lastID: 3}
	m := newItemMapper(c, e)

	_, err := m.Insert(context.Background(), "item.plain", param)
	c.Assert(err, IsNil)
	c.Assert(e.calls, DeepEquals, []string{"exec INSERT INTO item (name) VALUES (:name_0)"})
	_, ok := param["id"]
	c.Assert(ok, Equals, false)
}

func (s *KeySuite) TestKeyTargetNotAssignable(c *C) {
	e := &fakeExecutor{lastID: 3}
	m := newItemMapper(c, e)

	_, err := m.Insert(context.Background(), "item.native", item{Name: "pin"})
	c.Assert(err, ErrorMatches, `insert "item.native": cannot store generated key "id": .*`)
}

func (s *KeySuite) TestKeyConversionError(c *C) {
	e := &fakeExecutor{key: "next"}
	m := newItemMapper(c, e)

	_, err := m.Insert(context.Background(), "item.before", map[string]any{"name": "pin"})
	c.Assert(err, ErrorMatches, `selectKey of insert "item.before": cannot convert to int: "next" is not a number`)
	c.Assert(e.calls, HasLen, 1)
}

func (s *KeySuite) TestUnknownInsert(c *C) {
	m := newItemMapper(c, &fakeExecutor{})
	_, err := m.Insert(context.Background(), "item.missing", nil)
	c.Assert(errors.Is(err, sqlmapper.ErrNotFound), Equals, true)
	c.Assert(err, ErrorMatches, `cannot find insert statement "item.missing"`)
}

func (s *KeySuite) TestNoExecutor(c *C) {
	m := sqlmapper.New(sqlmapper.WithLogger(logging.Discard()))
	c.Assert(m.LoadBytes([]byte(itemMapper)), IsNil)
	_, err := m.Insert(context.Background(), "item.plain", nil)
	c.Assert(err, Equals, sqlmapper.ErrNoExecutor)
}
