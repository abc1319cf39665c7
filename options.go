// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlmapper

import (
	"log/slog"
	"reflect"
	"time"

	"github.com/canonical/sqlmapper/internal/expr"
	"github.com/canonical/sqlmapper/internal/metrics"
	"github.com/canonical/sqlmapper/internal/node"
)

// MethodFilter decides whether expressions may call the method name on a
// value of a type.
type MethodFilter = expr.MethodFilter

// AllowAllMethods lets expressions call any exported method.
var AllowAllMethods MethodFilter = expr.AllowAllMethods

// DenyAllMethods forbids method calls in expressions. The built in functions
// remain available.
var DenyAllMethods MethodFilter = expr.DenyAllMethods

// AllowMethods lets expressions call only the named methods. Names are
// matched case-insensitively.
func AllowMethods(names ...string) MethodFilter {
	return expr.AllowMethods(names...)
}

// DefaultParamPrefix starts bind parameter names unless configured otherwise.
const DefaultParamPrefix = node.DefaultParamPrefix

// Option configures a Mapper.
type Option func(*options)

type options struct {
	executor     Executor
	logger       *slog.Logger
	metrics      *metrics.Metrics
	cacheDir     string
	compilerTime time.Time
	paramPrefix  string
	methods      MethodFilter
	debounce     time.Duration
	types        map[string]reflect.Type
}

func defaultOptions() *options {
	return &options{
		paramPrefix: DefaultParamPrefix,
		types:       make(map[string]reflect.Type),
	}
}

// WithExecutor sets the executor statements run on.
func WithExecutor(e Executor) Option {
	return func(o *options) { o.executor = e }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records renders, executions, cache outcomes and reloads.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithCacheDir keeps compiled mappers in dir so that later loads of an
// unchanged document skip compiling it.
func WithCacheDir(dir string) Option {
	return func(o *options) { o.cacheDir = dir }
}

// WithCompilerTime invalidates cached mappers written before t. The default
// is the modification time of the running executable.
func WithCompilerTime(t time.Time) Option {
	return func(o *options) { o.compilerTime = t }
}

// WithParamPrefix sets the prefix of bind parameter names in rendered SQL.
// The empty prefix selects positional "?" parameters.
func WithParamPrefix(prefix string) Option {
	return func(o *options) { o.paramPrefix = prefix }
}

// WithMethods restricts the methods expressions may call. The default allows
// all of them.
func WithMethods(f MethodFilter) Option {
	return func(o *options) { o.methods = f }
}

// WithWatchDebounce sets how long Watch waits for changes to settle.
func WithWatchDebounce(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

// WithResultType lets select statements declare resultType name to have
// rows scanned into new values of the type of sample, a struct or map.
func WithResultType(name string, sample any) Option {
	return func(o *options) {
		t := reflect.TypeOf(sample)
		for t != nil && t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		o.types[name] = t
	}
}
