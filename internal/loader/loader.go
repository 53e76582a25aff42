// Package loader prepares a form for a session in the background: it
// compiles the definition, locks and restores the instance, and decides
// where the session resumes.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/roach88/formwalk/internal/compiler"
	"github.com/roach88/formwalk/internal/instance"
	"github.com/roach88/formwalk/internal/ir"
	"github.com/roach88/formwalk/internal/lockfile"
	"github.com/roach88/formwalk/internal/model"
	"github.com/roach88/formwalk/internal/savepoint"
)

// Origin tells where a loaded instance's answers came from.
type Origin int

const (
	OriginBlank Origin = iota
	OriginInstance
	OriginSavepoint
)

func (o Origin) String() string {
	switch o {
	case OriginInstance:
		return "instance"
	case OriginSavepoint:
		return "savepoint"
	default:
		return "blank"
	}
}

// Request describes the form to load.
type Request struct {
	FormPath string
	// InstancePath is the instance to resume. Empty starts a new instance.
	InstancePath string
	InstancesDir string
	CacheDir     string
	Choices      model.ChoiceSource
	// NewID returns the identifier of a new instance.
	NewID func() string
	// Now stamps the directory of a new instance.
	Now func() time.Time
	// AllowBackwards false resumes at the last recorded index.
	AllowBackwards bool
	// Owner is written into the lock file.
	Owner string
}

// Form is a loaded form ready to hand to a session.
type Form struct {
	Def           *ir.FormDef
	Model         *model.Model
	FormHash      string
	FormPath      string
	InstancePath  string
	SavepointPath string
	IndexPath     string
	StartIndex    ir.FormIndex
	Origin        Origin
	Lock          *lockfile.Lock
}

// Close releases the instance lock.
func (f *Form) Close() error { return f.Lock.Release() }

// ValidationFailedError reports a form definition that compiled but failed
// validation.
type ValidationFailedError struct {
	Path   string
	Errors []compiler.ValidationError
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("%s: %d validation error(s), first: %v", e.Path, len(e.Errors), e.Errors[0])
}

// Compiled is a validated form definition and its content hash.
type Compiled struct {
	Def  *ir.FormDef
	Hash string
}

// Loader loads forms. Compiled definitions are cached by source hash and
// shared between sessions; they are never mutated.
type Loader struct {
	forms *cache.Cache
}

// Option configures a Loader.
type Option func(*options)

type options struct {
	ttl time.Duration
}

// WithCacheTTL sets how long a compiled definition stays cached.
func WithCacheTTL(d time.Duration) Option {
	return func(o *options) { o.ttl = d }
}

// New returns a Loader.
func New(opts ...Option) *Loader {
	o := options{ttl: time.Hour}
	for _, opt := range opts {
		opt(&o)
	}
	return &Loader{forms: cache.New(o.ttl, 10*time.Minute)}
}

// Task is a load running in the background.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	form   *Form
	err    error
}

// Start begins loading req. Cancellation is checked between steps; a load
// cancelled after it took the instance lock releases it.
func (l *Loader) Start(ctx context.Context, req Request) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer cancel()
		t.form, t.err = l.Load(ctx, req)
	}()
	return t
}

// Done is closed when the task finishes.
func (t *Task) Done() <-chan struct{} { return t.done }

// Cancel asks the task to stop.
func (t *Task) Cancel() { t.cancel() }

// Wait blocks until the task finishes and returns its result.
func (t *Task) Wait() (*Form, error) {
	<-t.done
	return t.form, t.err
}

// Load runs the load on the calling goroutine.
func (l *Loader) Load(ctx context.Context, req Request) (*Form, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := l.Compile(req.FormPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	instPath := req.InstancePath
	if instPath == "" {
		now := time.Now
		if req.Now != nil {
			now = req.Now
		}
		instPath = freshInstancePath(req, now())
	}
	f := &Form{
		Def:           c.Def,
		FormHash:      c.Hash,
		FormPath:      req.FormPath,
		InstancePath:  instPath,
		SavepointPath: instance.SavepointPath(req.CacheDir, req.FormPath, instPath),
		IndexPath:     instance.IndexPath(req.CacheDir, req.FormPath, instPath),
	}

	f.Lock, err = lockfile.Acquire(instance.LockPath(req.CacheDir, instPath), req.Owner)
	if err != nil {
		return nil, err
	}
	if err := l.restore(ctx, req, f); err != nil {
		_ = f.Lock.Release()
		return nil, err
	}
	slog.Info("form loaded",
		"form", c.Def.ID,
		"instance", instPath,
		"origin", f.Origin.String(),
		"index", f.StartIndex.String())
	return f, nil
}

func (l *Loader) restore(ctx context.Context, req Request, f *Form) error {
	var opts []model.Option
	if req.Choices != nil {
		opts = append(opts, model.WithChoiceSource(req.Choices))
	}
	m, err := model.New(f.Def, opts...)
	if err != nil {
		return err
	}
	f.Model = m

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(f.InstancePath); err == nil {
		data, _, err := instance.Read(f.InstancePath)
		if err != nil {
			return err
		}
		if err := m.Import(data); err != nil {
			return fmt.Errorf("import %s: %w", f.InstancePath, err)
		}
		f.Origin = OriginInstance
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	sp, err := savepoint.LoadIfNewer(f.SavepointPath, f.InstancePath)
	if err != nil {
		slog.Warn("ignoring unreadable savepoint", "path", f.SavepointPath, "error", err)
		sp = nil
	}
	if sp != nil {
		if err := m.Import(sp.Data); err != nil {
			slog.Warn("ignoring incompatible savepoint", "path", sp.Path, "error", err)
		} else {
			f.Origin = OriginSavepoint
			f.StartIndex = sp.Index
		}
	}

	if !req.AllowBackwards {
		idx, ok, err := savepoint.ReadLastVisitedIndex(f.IndexPath)
		if err != nil {
			slog.Warn("ignoring unreadable index file", "path", f.IndexPath, "error", err)
		} else if ok {
			f.StartIndex = idx
		}
	}
	if !f.StartIndex.IsBeginning() && !f.StartIndex.IsEnd() && !m.Exists(f.StartIndex) {
		slog.Warn("resume index no longer resolves", "index", f.StartIndex.String())
		f.StartIndex = ir.BeginningOfForm
	}

	if m.InstanceID() == "" && req.NewID != nil {
		m.SetInstanceID("uuid:" + req.NewID())
	}
	return nil
}

// Compile returns the definition at path, compiling and validating it on
// first use.
func (l *Loader) Compile(path string) (*Compiled, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key := ir.SourceHash(src)
	if v, ok := l.forms.Get(key); ok {
		return v.(*Compiled), nil
	}

	def, err := compiler.CompileSource(src, path)
	if err != nil {
		return nil, err
	}
	if errs := compiler.Validate(def); len(errs) > 0 {
		return nil, &ValidationFailedError{Path: path, Errors: errs}
	}
	hash, err := ir.FormHash(def)
	if err != nil {
		return nil, err
	}
	c := &Compiled{Def: def, Hash: hash}
	l.forms.Set(key, c, cache.DefaultExpiration)
	return c, nil
}

// freshInstancePath names a new instance directory stamped at or after at,
// skipping stamps whose directory or savepoint already exists.
func freshInstancePath(req Request, at time.Time) string {
	for {
		p := instance.NewInstancePath(req.InstancesDir, req.FormPath, at)
		if !exists(filepath.Dir(p)) && !exists(instance.SavepointPath(req.CacheDir, req.FormPath, p)) {
			return p
		}
		at = at.Add(time.Second)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Orphans lists savepoints of the form whose instance was never saved,
// newest first. Each can be resumed by loading its InstancePath.
func Orphans(req Request) ([]savepoint.Orphan, error) {
	return savepoint.FindOrphans(req.CacheDir, req.InstancesDir, req.FormPath)
}
