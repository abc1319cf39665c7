// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package mapcache loads mapper documents through an on-disk cache of their
// compiled form.
//
// An artifact is named after a hash of the absolute source path and a stamp,
// the later of the source modification time and the compiler time. A
// matching artifact is restored without reading the markup. Otherwise the
// source is compiled and a new artifact replaces those written for earlier
// stamps of the same source. Failing to write an artifact is logged and does
// not fail the load.
package mapcache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/canonical/sqlmapper/internal/atomicfile"
	"github.com/canonical/sqlmapper/internal/compile"
	"github.com/canonical/sqlmapper/internal/expr"
	"github.com/canonical/sqlmapper/internal/node"
	"github.com/canonical/sqlmapper/internal/registry"
)

// FormatVersion changes whenever the artifact layout does.
const FormatVersion = 1

// Artifact is the serialized form of a compiled mapper.
type Artifact struct {
	Format     int          `yaml:"format"`
	Source     string       `yaml:"source"`
	Stamp      int64        `yaml:"stamp"`
	Statements []*node.Wire `yaml:"statements"`
}

// Policy is the registry wide configuration applied to every registry the
// cache returns, whether compiled or restored.
type Policy struct {
	ParamPrefix string
	Methods     expr.MethodFilter
}

// DefaultPolicy uses named parameters with the default prefix and allows
// every method call.
func DefaultPolicy() Policy {
	return Policy{ParamPrefix: node.DefaultParamPrefix}
}

func (p Policy) apply(r *registry.Registry) {
	r.SetParamPrefix(p.ParamPrefix)
	r.SetMethods(p.Methods)
}

// Recorder observes cache outcomes.
type Recorder interface {
	CacheHit()
	CacheMiss()
	CacheWriteFailed()
}

type nopRecorder struct{}

func (nopRecorder) CacheHit()         {}
func (nopRecorder) CacheMiss()        {}
func (nopRecorder) CacheWriteFailed() {}

// Options configure a Cache.
type Options struct {
	// Dir holds the artifacts. When empty every load compiles afresh.
	Dir    string
	Policy Policy
	// CompilerTime invalidates artifacts written before it. When zero the
	// modification time of the running executable is used.
	CompilerTime time.Time
	Logger       *slog.Logger
	Recorder     Recorder
}

// Cache loads compiled mappers. Loads of the same source are serialized;
// loads of different sources run concurrently.
type Cache struct {
	dir          string
	policy       Policy
	compilerTime time.Time
	logger       *slog.Logger
	recorder     Recorder

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a Cache configured by opts.
func New(opts Options) *Cache {
	c := &Cache{
		dir:          opts.Dir,
		policy:       opts.Policy,
		compilerTime: opts.CompilerTime,
		logger:       opts.Logger,
		recorder:     opts.Recorder,
		locks:        make(map[string]*sync.Mutex),
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.recorder == nil {
		c.recorder = nopRecorder{}
	}
	if c.compilerTime.IsZero() {
		c.compilerTime = executableTime()
	}
	return c
}

func executableTime() time.Time {
	exe, err := os.Executable()
	if err != nil {
		return time.Time{}
	}
	st, err := os.Stat(exe)
	if err != nil {
		return time.Time{}
	}
	return st.ModTime()
}

// Dir returns the artifact directory.
func (c *Cache) Dir() string {
	return c.dir
}

func (c *Cache) lock(path string) func() {
	c.mu.Lock()
	l, ok := c.locks[path]
	if !ok {
		l = &sync.Mutex{}
		c.locks[path] = l
	}
	c.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Load returns the compiled registry of the mapper document at path. The
// boolean reports whether it was restored from an artifact.
func (c *Cache) Load(path string) (*registry.Registry, bool, error) {
	abs, err := canonicalPath(path)
	if err != nil {
		return nil, false, errors.Wrapf(err, "cannot load mapper %s", path)
	}
	if c.dir == "" {
		reg, err := c.compileFile(abs)
		return reg, false, err
	}

	unlock := c.lock(abs)
	defer unlock()

	st, err := os.Stat(abs)
	if err != nil {
		return nil, false, errors.Wrapf(err, "cannot load mapper %s", path)
	}
	stamp := st.ModTime()
	if c.compilerTime.After(stamp) {
		stamp = c.compilerTime
	}
	artifactPath := c.artifactPath(abs, stamp)

	if reg, err := c.restore(artifactPath, abs, stamp); err == nil {
		c.recorder.CacheHit()
		return reg, true, nil
	} else if !os.IsNotExist(errors.Cause(err)) {
		c.logger.Warn("ignoring unreadable mapper cache artifact",
			"artifact", artifactPath,
			"error", err,
		)
	}
	c.recorder.CacheMiss()

	reg, err := c.compileFile(abs)
	if err != nil {
		return nil, false, err
	}
	if err := c.write(artifactPath, abs, stamp, reg); err != nil {
		c.recorder.CacheWriteFailed()
		c.logger.Warn("cannot write mapper cache artifact",
			"artifact", artifactPath,
			"error", err,
		)
	}
	return reg, false, nil
}

func (c *Cache) compileFile(path string) (*registry.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot load mapper %s", path)
	}
	reg, err := compile.Bytes(data)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot load mapper %s", path)
	}
	c.policy.apply(reg)
	return reg, nil
}

// prefix returns the start of the names of every artifact of source.
func (c *Cache) prefix(source string) string {
	return filepath.Join(c.dir, fmt.Sprintf("mapper-%016x-", xxhash.Sum64String(source)))
}

func (c *Cache) artifactPath(source string, stamp time.Time) string {
	return c.prefix(source) + "v" + strconv.Itoa(FormatVersion) + "-" + strconv.FormatInt(stamp.UnixNano(), 10) + ".yaml"
}

func (c *Cache) restore(artifactPath, source string, stamp time.Time) (*registry.Registry, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, err
	}
	var a Artifact
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, errors.Wrap(err, "cannot decode artifact")
	}
	if a.Format != FormatVersion || a.Source != source || a.Stamp != stamp.UnixNano() {
		return nil, errors.Errorf("artifact does not match %s", source)
	}
	return Restore(&a, c.policy)
}

// Restore rebuilds the registry held by an artifact and applies policy to
// it.
func Restore(a *Artifact, policy Policy) (*registry.Registry, error) {
	reg := registry.New()
	policy.apply(reg)
	for _, w := range a.Statements {
		n, err := node.FromWire(w)
		if err != nil {
			return nil, errors.Wrap(err, "cannot restore artifact")
		}
		st, ok := n.(node.Statement)
		if !ok {
			return nil, errors.Errorf("cannot restore artifact: %s is not a statement", n.Kind())
		}
		if err := reg.Add(st); err != nil {
			return nil, errors.Wrap(err, "cannot restore artifact")
		}
	}
	return reg, nil
}

// NewArtifact serializes reg.
func NewArtifact(source string, stamp time.Time, reg *registry.Registry) *Artifact {
	a := &Artifact{Format: FormatVersion, Source: source, Stamp: stamp.UnixNano()}
	for _, st := range reg.Statements() {
		a.Statements = append(a.Statements, node.ToWire(st))
	}
	return a
}

func (c *Cache) write(artifactPath, source string, stamp time.Time, reg *registry.Registry) error {
	data, err := yaml.Marshal(NewArtifact(source, stamp, reg))
	if err != nil {
		return errors.Wrap(err, "cannot encode artifact")
	}
	stale, err := filepath.Glob(c.prefix(source) + "*.yaml")
	if err != nil {
		return errors.WithStack(err)
	}
	for _, s := range stale {
		if s == artifactPath {
			continue
		}
		if err := os.Remove(s); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("cannot remove stale mapper cache artifact", "artifact", s, "error", err)
		}
	}
	return atomicfile.Create(artifactPath, data)
}

// Clear removes every artifact from the cache directory, along with the
// temporary files of interrupted writes, and returns how many artifacts were
// removed.
func (c *Cache) Clear() (int, error) {
	if c.dir == "" {
		return 0, nil
	}
	matches, err := filepath.Glob(filepath.Join(c.dir, "mapper-*.yaml"))
	if err != nil {
		return 0, errors.WithStack(err)
	}
	removed := 0
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, errors.Wrap(err, "cannot clear mapper cache")
		}
		removed++
	}
	if _, err := atomicfile.CleanTemp(c.dir); err != nil {
		return removed, errors.Wrap(err, "cannot clear mapper cache")
	}
	return removed, nil
}

func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}
	return abs, nil
}
