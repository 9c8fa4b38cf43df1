// Package reconcile synchronizes a schematic description into a live
// document through the host ports, keeping the identity mapping current.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"schsync/internal/fault"
	"schsync/internal/host"
	"schsync/internal/ir"
	"schsync/internal/metrics"
	"schsync/internal/schematicmap"
)

// Document is the part of a host the engine mutates.
type Document interface {
	host.Pages
	host.Primitives
	host.Pins
	host.Devices
	host.PostActions
}

// Journal records the description and resulting mapping of a run and
// returns a revision identifier.
type Journal interface {
	Record(ctx context.Context, documentID string, description []byte, mapping *schematicmap.Map) (string, error)
}

// Artifacts stores captured images and returns their location.
type Artifacts interface {
	PutCapture(ctx context.Context, documentID, fileName string, png []byte) (string, error)
}

// LockFunc acquires exclusive use of a document and returns its release.
type LockFunc func(documentID string) (unlock func())

// ProgressFunc receives a percentage that never decreases within one run.
type ProgressFunc func(percent int)

type Engine struct {
	doc       Document
	maps      *schematicmap.Store
	journal   Journal
	artifacts Artifacts
	metrics   *metrics.Metrics
	log       *slog.Logger
	now       func() time.Time
	lock      LockFunc
}

type Option func(*Engine)

func WithJournal(j Journal) Option          { return func(e *Engine) { e.journal = j } }
func WithArtifacts(a Artifacts) Option      { return func(e *Engine) { e.artifacts = a } }
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }
func WithLogger(l *slog.Logger) Option      { return func(e *Engine) { e.log = l } }
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }
func WithDocumentLock(fn LockFunc) Option   { return func(e *Engine) { e.lock = fn } }

func New(doc Document, maps *schematicmap.Store, opts ...Option) *Engine {
	e := &Engine{doc: doc, maps: maps, log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply validates raw as a JSON description and applies it.
func (e *Engine) Apply(ctx context.Context, raw []byte) (*Result, error) {
	d, err := ir.Parse(raw)
	if err != nil {
		return nil, err
	}
	return e.ApplyDescription(ctx, d, nil)
}

// ApplyDescription applies an already parsed description. progress may be nil.
func (e *Engine) ApplyDescription(ctx context.Context, d *ir.Description, progress ProgressFunc) (res *Result, err error) {
	start := e.now()
	defer func() {
		e.metrics.ObserveApply(e.now().Sub(start), fault.CodeOf(err))
	}()

	if err := ir.Validate(d); err != nil {
		return nil, err
	}
	units := d.Units
	if units == "" {
		units = ir.UnitsSch
	}
	native := d.Native()

	if d.Page.ShouldEnsure() {
		intent := host.PageIntent{}
		if d.Page != nil {
			intent = host.PageIntent{BoardName: d.Page.BoardName, SchematicName: d.Page.SchematicName, PageName: d.Page.PageName}
		}
		if err := e.doc.EnsurePage(ctx, intent); err != nil {
			return nil, err
		}
	}
	page, err := e.doc.CurrentPage(ctx)
	if err != nil {
		return nil, err
	}
	if e.lock != nil {
		defer e.lock(page.DocumentID)()
	}

	mapping, err := e.maps.Load(ctx, page.DocumentID)
	if err != nil {
		return nil, err
	}

	r := &run{
		engine:   e,
		page:     page,
		mapping:  mapping,
		result:   newResult(units),
		pins:     map[string][]host.Pin{},
		progress: newProgress(stepCount(native), progress),
	}
	r.result.Page = page
	log := e.log.With("document", page.DocumentID)

	if p := native.Page; p != nil && p.Clear {
		counts, err := r.clear(ctx, p.ClearMode)
		if err != nil {
			return nil, err
		}
		r.result.Cleared = counts
		r.mapping = schematicmap.NewMap()
	}

	r.deleteRequested(ctx, native)

	steps := []func(context.Context, *ir.Description) error{
		r.upsertComponents,
		r.upsertNetFlags,
		r.upsertNetPorts,
		r.upsertTexts,
		r.upsertWires,
		r.upsertConnections,
	}
	for _, step := range steps {
		if err := step(ctx, native); err != nil {
			log.Warn("apply aborted", "code", fault.CodeOf(err), "error", err)
			return nil, err
		}
	}

	if e.journal != nil {
		r.result.Journal = r.record(ctx, d)
	}
	if err := e.maps.Save(ctx, page.DocumentID, r.mapping); err != nil {
		log.Error("mapping save failed after document mutations", "error", err)
		return nil, err
	}

	if native.Post != nil {
		r.result.Post = r.post(ctx, native.Post)
	}
	r.progress.finish()

	for kind, entries := range r.result.Applied {
		for _, a := range entries {
			e.metrics.CountEntity(string(kind), string(a.Action))
		}
	}
	log.Info("apply complete", "entities", native.EntityCount(), "mapped", r.mapping.Len())
	return r.result, nil
}

func stepCount(d *ir.Description) int {
	n := d.Patch.DeleteCount() + d.EntityCount()
	if d.Post != nil {
		if d.Post.DRC != nil {
			n++
		}
		if d.Post.Save {
			n++
		}
		if d.Post.CapturePNG != nil {
			n++
		}
	}
	return n
}

type progress struct {
	total int
	done  int
	last  int
	fn    ProgressFunc
}

func newProgress(total int, fn ProgressFunc) *progress {
	p := &progress{total: total, fn: fn}
	p.emit(0)
	return p
}

func (p *progress) emit(pct int) {
	if p.fn == nil || pct < p.last {
		return
	}
	p.last = pct
	p.fn(pct)
}

func (p *progress) bump() {
	p.done++
	if p.total == 0 {
		return
	}
	p.emit(min(99, p.done*100/p.total))
}

func (p *progress) finish() { p.emit(100) }

// run carries the state of one apply.
type run struct {
	engine   *Engine
	page     host.Page
	mapping  *schematicmap.Map
	result   *Result
	pins     map[string][]host.Pin
	progress *progress
}

func (r *run) clear(ctx context.Context, mode ir.ClearMode) (*Counts, error) {
	doc := r.engine.doc
	if mode == ir.ClearAll {
		counts := &Counts{}
		for _, c := range []struct {
			class host.Class
			n     *int
		}{{host.ClassWire, &counts.Wires}, {host.ClassText, &counts.Texts}, {host.ClassComponent, &counts.Components}} {
			refs, err := doc.List(ctx, r.page, c.class)
			if err != nil {
				return nil, fmt.Errorf("list %s primitives: %w", c.class, err)
			}
			*c.n = len(refs)
			if len(refs) == 0 {
				continue
			}
			if err := doc.Delete(ctx, r.page, c.class, refs); err != nil {
				return nil, fmt.Errorf("clear %s primitives: %w", c.class, err)
			}
		}
		return counts, nil
	}

	m := r.mapping
	wires := append(m.Refs(ir.KindWire), m.Refs(ir.KindConnection)...)
	texts := m.Refs(ir.KindText)
	components := append(append(m.Refs(ir.KindComponent), m.Refs(ir.KindNetFlag)...), m.Refs(ir.KindNetPort)...)
	for _, batch := range []struct {
		class host.Class
		refs  []string
	}{{host.ClassWire, wires}, {host.ClassText, texts}, {host.ClassComponent, components}} {
		if len(batch.refs) > 0 {
			_ = doc.Delete(ctx, r.page, batch.class, batch.refs)
		}
	}
	return &Counts{Wires: len(wires), Texts: len(texts), Components: len(components)}, nil
}

func (r *run) deleteRequested(ctx context.Context, d *ir.Description) {
	for _, kind := range ir.Kinds {
		for _, id := range d.Deletes(kind) {
			ref, ok := r.mapping.PrimitiveID(kind, id)
			if ok {
				_ = r.engine.doc.Delete(ctx, r.page, host.ClassOf(kind), []string{ref})
				r.mapping.Remove(kind, id)
				if r.result.Deleted == nil {
					r.result.Deleted = map[ir.Kind][]string{}
				}
				r.result.Deleted[kind] = append(r.result.Deleted[kind], id)
			}
			r.progress.bump()
		}
	}
}

// dropStale deletes a primitive that is about to be replaced. Failures are
// ignored: an absent primitive is the desired state.
func (r *run) dropStale(ctx context.Context, kind ir.Kind, ref string) {
	if err := r.engine.doc.Delete(ctx, r.page, host.ClassOf(kind), []string{ref}); err != nil {
		r.engine.log.Debug("stale primitive delete failed", "kind", kind, "ref", ref, "error", err)
	}
}

func (r *run) tryModify(ctx context.Context, ref string, spec host.Primitive) bool {
	ok, err := r.engine.doc.Modify(ctx, r.page, ref, spec)
	return err == nil && ok
}

func (r *run) create(ctx context.Context, spec host.Primitive, code, msg string) (string, error) {
	ref, err := r.engine.doc.Create(ctx, r.page, spec)
	if err != nil {
		return "", fault.Wrap(code, err, msg)
	}
	if ref == "" {
		return "", fault.New(code, msg)
	}
	return ref, nil
}

func (r *run) record(ctx context.Context, d *ir.Description) *JournalInfo {
	raw, err := json.Marshal(d)
	if err != nil {
		return &JournalInfo{Error: errorInfo(err)}
	}
	commit, err := r.engine.journal.Record(ctx, r.page.DocumentID, raw, r.mapping)
	if err != nil {
		r.engine.log.Warn("journal record failed", "document", r.page.DocumentID, "error", err)
		return &JournalInfo{Error: errorInfo(err)}
	}
	return &JournalInfo{Commit: commit}
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func safeFileName(name string) string {
	return unsafeFileChars.ReplaceAllString(name, "_")
}

func (r *run) post(ctx context.Context, p *ir.Post) *PostResult {
	doc := r.engine.doc
	out := &PostResult{}

	if p.ZoomToAll {
		out.ZoomToAll = &Outcome{OK: true}
		if err := doc.ZoomToAll(ctx, r.page); err != nil {
			out.ZoomToAll = &Outcome{Error: errorInfo(err)}
		}
	}
	if p.DRC != nil {
		ok, err := doc.CheckDRC(ctx, r.page, p.DRC.Strict, p.DRC.UserInterface)
		out.DRC = &Outcome{OK: ok}
		if err != nil {
			out.DRC = &Outcome{Error: errorInfo(err)}
		}
		r.progress.bump()
	}
	if p.Save {
		ok, err := doc.Save(ctx, r.page)
		out.Save = &Outcome{OK: ok}
		if err != nil {
			out.Save = &Outcome{Error: errorInfo(err)}
		}
		r.progress.bump()
	}
	if p.CapturePNG != nil {
		out.CapturePNG = r.capture(ctx, p.CapturePNG)
		r.progress.bump()
	}
	return out
}

func (r *run) capture(ctx context.Context, opts *ir.CaptureOptions) *CaptureOutcome {
	name := opts.FileName
	if name == "" {
		name = "schsync_schematic_" + safeFileName(r.engine.now().UTC().Format(time.RFC3339)) + ".png"
	}
	req := host.CaptureRequest{SavePath: opts.SavePath, FileName: safeFileName(name), Force: opts.Force != nil && *opts.Force}

	img, err := r.engine.doc.CapturePNG(ctx, r.page, req)
	if err != nil {
		return &CaptureOutcome{FileName: req.FileName, Error: errorInfo(err)}
	}
	out := &CaptureOutcome{FileName: img.FileName, SavedTo: img.SavedTo, Bytes: len(img.PNG)}
	if r.engine.artifacts != nil && len(img.PNG) > 0 {
		loc, err := r.engine.artifacts.PutCapture(ctx, r.page.DocumentID, req.FileName, img.PNG)
		if err != nil {
			out.Error = errorInfo(err)
			return out
		}
		out.Artifact = loc
	}
	return out
}
