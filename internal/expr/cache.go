// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of compiled expressions kept by default.
const DefaultCacheSize = 4096

var compiled atomic.Pointer[lru.Cache[string, *Expr]]

func init() {
	SetCacheSize(DefaultCacheSize)
}

// SetCacheSize replaces the process wide cache of compiled expressions with an
// empty one holding at most size entries. A size below one disables caching.
func SetCacheSize(size int) {
	if size < 1 {
		compiled.Store(nil)
		return
	}
	c, err := lru.New[string, *Expr](size)
	if err != nil {
		panic(err)
	}
	compiled.Store(c)
}

// CacheLen returns the number of cached compiled expressions.
func CacheLen() int {
	if c := compiled.Load(); c != nil {
		return c.Len()
	}
	return 0
}

// Compile parses source into an Expr. Successful compilations are cached, so
// compiling the same source twice returns the same *Expr. Failures are not
// cached.
func Compile(source string) (*Expr, error) {
	c := compiled.Load()
	if c != nil {
		if e, ok := c.Get(source); ok {
			return e, nil
		}
	}
	e, err := parse(source)
	if err != nil {
		return nil, err
	}
	if c != nil {
		// A concurrent compile of the same source may have won the race. Keep
		// the first one so that callers always share a single instance.
		if prev, ok, _ := c.PeekOrAdd(source, e); ok {
			return prev, nil
		}
	}
	return e, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(source string) *Expr {
	e, err := Compile(source)
	if err != nil {
		panic(err)
	}
	return e
}
