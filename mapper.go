// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlmapper

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/canonical/sqlmapper/internal/compile"
	"github.com/canonical/sqlmapper/internal/logging"
	"github.com/canonical/sqlmapper/internal/mapcache"
	"github.com/canonical/sqlmapper/internal/markup"
	"github.com/canonical/sqlmapper/internal/metrics"
	"github.com/canonical/sqlmapper/internal/node"
	"github.com/canonical/sqlmapper/internal/registry"
	"github.com/canonical/sqlmapper/internal/watch"
)

// Category is the kind of statement an id is registered under.
type Category = registry.Category

const (
	CategoryFragment = registry.CategoryFragment
	CategorySelect   = registry.CategorySelect
	CategoryInsert   = registry.CategoryInsert
	CategoryUpdate   = registry.CategoryUpdate
	CategoryDelete   = registry.CategoryDelete
)

// Params are the bind parameters of a rendered statement, in the order they
// appear in the SQL text.
type Params = node.Params

// Mapper holds the statements of a set of mapper documents and runs them.
//
// Statements are looked up and rendered without locking: every load builds
// a new registry and swaps it in whole.
type Mapper struct {
	executor Executor
	logger   *slog.Logger
	metrics  *metrics.Metrics
	cache    *mapcache.Cache
	policy   mapcache.Policy
	debounce time.Duration
	types    map[string]reflect.Type

	// mu serializes loads.
	mu sync.Mutex
	// sources holds the registry compiled from each document, keyed by
	// source, and order the sources in first load order.
	sources map[string]*registry.Registry
	order   []string
	// files lists the absolute paths of the loaded files.
	files []string

	reg atomic.Pointer[registry.Registry]
}

// New returns a Mapper with no statements.
func New(opts ...Option) *Mapper {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	m := &Mapper{
		executor: o.executor,
		logger:   o.logger,
		metrics:  o.metrics,
		policy:   mapcache.Policy{ParamPrefix: o.paramPrefix, Methods: o.methods},
		debounce: o.debounce,
		types:    o.types,
		sources:  make(map[string]*registry.Registry),
	}
	cacheOpts := mapcache.Options{
		Dir:          o.cacheDir,
		Policy:       m.policy,
		CompilerTime: o.compilerTime,
		Logger:       o.logger,
	}
	if o.metrics != nil {
		cacheOpts.Recorder = o.metrics
	}
	m.cache = mapcache.New(cacheOpts)
	m.reg.Store(m.newRegistry())
	return m
}

func (m *Mapper) newRegistry() *registry.Registry {
	r := registry.New()
	r.SetParamPrefix(m.policy.ParamPrefix)
	r.SetMethods(m.policy.Methods)
	return r
}

func (m *Mapper) registry() *registry.Registry {
	return m.reg.Load()
}

// Load compiles the mapper document at path, or restores it from the cache
// directory, and registers its statements. Loading a document again replaces
// every statement it registered before.
func (m *Mapper) Load(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrapf(err, "cannot load mapper %s", path)
	}
	reg, hit, err := m.cache.Load(abs)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.files, abs) {
		m.files = append(m.files, abs)
	}
	m.replace("file:"+abs, reg)
	m.logger.Info("mapper loaded",
		"source", abs,
		"statements", reg.Len(),
		"cached", hit,
	)
	return nil
}

// LoadBytes compiles a mapper document held in memory and registers its
// statements. Documents are told apart by namespace: loading a document with
// the namespace of an earlier one replaces its statements.
func (m *Mapper) LoadBytes(data []byte) error {
	root, err := markup.Parse(bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "cannot load mapper")
	}
	reg, err := compile.Document(root)
	if err != nil {
		return err
	}
	namespace, _ := root.Attr("namespace")
	namespace = strings.TrimSpace(namespace)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.replace("namespace:"+namespace, reg)
	m.logger.Info("mapper loaded",
		"namespace", namespace,
		"statements", reg.Len(),
	)
	return nil
}

// replace records the registry of source and swaps in a registry merging
// every source. Statements of later sources win over earlier ones with the
// same id. The mutex must be held.
func (m *Mapper) replace(source string, reg *registry.Registry) {
	if _, ok := m.sources[source]; !ok {
		m.order = append(m.order, source)
	}
	m.sources[source] = reg
	merged := m.newRegistry()
	for _, s := range m.order {
		merged.Merge(m.sources[s])
	}
	m.reg.Store(merged)
	m.metrics.SetStatements(merged.Len())
}

// IDs returns the qualified ids of the statements registered under category.
func (m *Mapper) IDs(category Category) []string {
	return m.registry().IDs(category)
}

// SQL renders the statement registered under category and id against param.
// It returns the SQL text and its bind parameters without running it.
func (m *Mapper) SQL(category Category, id string, param any) (string, *Params, error) {
	start := time.Now()
	sql, params, err := m.registry().Render(category, id, param)
	m.metrics.ObserveRender(string(category), time.Since(start), err)
	return sql, params, err
}

// ClearCache removes every compiled mapper from the cache directory and
// returns how many were removed.
func (m *Mapper) ClearCache() (int, error) {
	return m.cache.Clear()
}

// Watch reloads loaded mapper files when they change, until ctx is done.
// A document that fails to reload keeps its previous statements.
func (m *Mapper) Watch(ctx context.Context) error {
	m.mu.Lock()
	files := slices.Clone(m.files)
	m.mu.Unlock()

	w, err := watch.New(files, m.debounce, m.logger)
	if err != nil {
		return err
	}
	return w.Run(ctx, func(paths []string) {
		for _, p := range paths {
			err := m.Load(p)
			m.metrics.ObserveReload(err)
			if err != nil {
				m.logger.Error("cannot reload mapper", "source", p, "error", err)
			}
		}
	})
}

// call runs fn as one statement call: it gets a correlation id carried by
// ctx, is logged and is measured.
func (m *Mapper) call(ctx context.Context, category Category, id string, fn func(ctx context.Context, reg *registry.Registry) error) error {
	if m.executor == nil {
		return ErrNoExecutor
	}
	callID := uuid.NewString()
	ctx = logging.WithCallID(ctx, callID)
	logger := m.logger.With(
		"call_id", callID,
		"category", string(category),
		"statement", id,
	)
	logger.DebugContext(ctx, "statement started")
	start := time.Now()
	err := fn(ctx, m.registry())
	elapsed := time.Since(start)
	m.metrics.ObserveExec(string(category), elapsed, err)
	if err != nil {
		logger.DebugContext(ctx, "statement failed", "error", err)
		return err
	}
	logger.DebugContext(ctx, "statement completed", "duration", elapsed)
	return nil
}

// render renders n, registered as id, and returns the SQL text with the
// executor arguments for its bind parameters.
func (m *Mapper) render(ctx context.Context, reg *registry.Registry, category Category, id string, n node.Node, param any) (string, []any, error) {
	start := time.Now()
	sql, params, err := reg.RenderNode(n, param)
	m.metrics.ObserveRender(string(category), time.Since(start), err)
	if err != nil {
		return "", nil, errors.Wrapf(err, "cannot render %s statement %q", category, id)
	}
	m.logger.DebugContext(ctx, "statement rendered",
		"call_id", logging.CallID(ctx),
		"statement", id,
		"sql", sql,
		"params", params.String(),
	)
	return sql, bindArgs(params, reg.ParamPrefix()), nil
}
