// Package report builds the violation report: sampled rows of every violated
// relation, annotated with view identities and the oracle's derivation.
package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/uicheck/internal/decl"
	"github.com/ppiankov/uicheck/internal/explain"
	"github.com/ppiankov/uicheck/internal/facts"
	"github.com/ppiankov/uicheck/internal/model"
	"github.com/ppiankov/uicheck/internal/tuple"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options describes one report build
type Options struct {
	Prefixes         []string // Relations are reported when their name starts with one of these
	FactsDir         string
	SpecPath         string
	OutputDir        string // Solver output, one tuple file per relation
	ReportPath       string // Defaults to OutputDir/report.json
	SampleLimit      int
	TupleExt         string
	FactsExt         string
	TextContent      bool
	IdentityTypes    []string
	ProgressInterval time.Duration
}

// OptionsFrom fills Options from the configuration for one set of inputs
func OptionsFrom(cfg *model.Config, factsDir, specPath, outputDir string) Options {
	return Options{
		Prefixes:         append([]string(nil), cfg.Report.Prefixes...),
		FactsDir:         factsDir,
		SpecPath:         specPath,
		OutputDir:        outputDir,
		ReportPath:       filepath.Join(outputDir, cfg.Report.FileName),
		SampleLimit:      cfg.Report.SampleLimit,
		TupleExt:         cfg.Report.TupleExt,
		FactsExt:         cfg.Facts.Ext,
		TextContent:      cfg.Facts.TextContent,
		IdentityTypes:    append([]string(nil), cfg.Report.IdentityTypes...),
		ProgressInterval: cfg.Report.ProgressInterval,
	}
}

// Result summarises a build
type Result struct {
	RunID       string
	ReportPath  string
	Skipped     bool // The report already existed
	Relations   int
	Entries     int
	Unexplained int // Entries whose inference is null
	Duration    time.Duration
}

// Builder produces a report.json for one solver run
type Builder struct {
	opts     Options
	open     explain.Opener
	logger   *zap.Logger
	identity map[string]struct{}
	renderer *Renderer
}

// NewBuilder creates a builder. open is called once per Build.
func NewBuilder(opts Options, open explain.Opener, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ReportPath == "" {
		opts.ReportPath = filepath.Join(opts.OutputDir, "report.json")
	}
	if opts.SampleLimit <= 0 {
		opts.SampleLimit = 10
	}
	if opts.TupleExt == "" {
		opts.TupleExt = ".csv"
	}
	if opts.FactsExt == "" {
		opts.FactsExt = ".facts"
	}
	if opts.IdentityTypes == nil {
		opts.IdentityTypes = []string{"ViewID"}
	}

	identity := make(map[string]struct{}, len(opts.IdentityTypes))
	for _, t := range opts.IdentityTypes {
		identity[t] = struct{}{}
	}

	return &Builder{
		opts:     opts,
		open:     open,
		logger:   logger,
		identity: identity,
		renderer: NewRenderer(),
	}
}

// Build writes the report unless it already exists. Nothing is written when
// Build fails.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: uuid.NewString(), ReportPath: b.opts.ReportPath}
	log := b.logger.With(zap.String("run_id", res.RunID), zap.String("output_dir", b.opts.OutputDir))

	// 1. Existing artifact wins
	if _, err := os.Stat(b.opts.ReportPath); err == nil {
		log.Info("report exists, skipping", zap.String("path", b.opts.ReportPath))
		res.Skipped = true
		return res, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat report: %w", err)
	}

	// 2. Schema
	spec, err := decl.Parse(b.opts.SpecPath)
	if err != nil {
		return nil, fmt.Errorf("parse spec: %w", err)
	}
	for _, name := range spec.Redeclared {
		log.Warn("relation declared more than once, last declaration wins", zap.String("relation", name))
	}

	// 3. Identity facts
	index, err := facts.Load(b.opts.FactsDir, spec, facts.Options{
		Ext:         b.opts.FactsExt,
		TextContent: b.opts.TextContent,
		Logger:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("load facts: %w", err)
	}

	// 4. Violated relations
	files, err := tuple.List(b.opts.OutputDir, b.opts.TupleExt)
	if err != nil {
		return nil, fmt.Errorf("list output: %w", err)
	}

	// 5. Oracle
	ex, err := b.open(ctx, b.opts.FactsDir, b.opts.SpecPath)
	if err != nil {
		return nil, fmt.Errorf("open explainer: %w", err)
	}
	closed := false
	defer func() {
		if !closed {
			_ = ex.Close()
		}
	}()

	r := &run{
		Builder:  b,
		spec:     spec,
		index:    index,
		ex:       ex,
		log:      log,
		report:   make(model.Report),
		progress: rate.Sometimes{Interval: b.opts.ProgressInterval},
	}
	for _, f := range files {
		if err := r.relation(ctx, f); err != nil {
			return nil, err
		}
	}

	// 6. Release the oracle before touching the artifact
	closed = true
	if err := ex.Close(); err != nil {
		log.Warn("close explainer", zap.Error(err))
	}

	if err := b.renderer.WriteJSON(r.report, b.opts.ReportPath); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}

	res.Relations = len(r.report)
	res.Entries = r.report.Entries()
	res.Unexplained = r.unexplained
	res.Duration = time.Since(start)
	log.Info("report written",
		zap.String("path", b.opts.ReportPath),
		zap.Int("relations", res.Relations),
		zap.Int("entries", res.Entries),
		zap.Int("unexplained", res.Unexplained),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// selected reports whether a relation name matches a configured prefix
func (b *Builder) selected(name string) bool {
	for _, p := range b.opts.Prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// run holds the state of one Build
type run struct {
	*Builder
	spec        *decl.Spec
	index       *facts.Index
	ex          explain.Explainer
	log         *zap.Logger
	report      model.Report
	progress    rate.Sometimes
	done        int
	unexplained int
}

func (r *run) relation(ctx context.Context, f tuple.File) error {
	if !r.selected(f.Relation) {
		return nil
	}
	rel, ok := r.spec.Relation(f.Relation)
	if !ok {
		r.log.Debug("relation not declared, skipping", zap.String("relation", f.Relation))
		return nil
	}

	nonEmpty, err := tuple.NonEmpty(f.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", f.Relation, err)
	}
	if !nonEmpty {
		return nil
	}

	rows, err := tuple.Head(f.Path, rel.Arity(), r.opts.SampleLimit)
	if err != nil {
		return fmt.Errorf("read %s: %w", f.Relation, err)
	}

	entries := make([]model.ViolationEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := r.entry(ctx, rel, row)
		if err != nil {
			return fmt.Errorf("relation %s: %w", f.Relation, err)
		}
		entries = append(entries, entry)

		r.done++
		r.progress.Do(func() {
			r.log.Info("explaining", zap.String("relation", f.Relation), zap.Int("entries", r.done))
		})
	}
	r.report[f.Relation] = entries
	return nil
}

func (r *run) entry(ctx context.Context, rel decl.Relation, row []string) (model.ViolationEntry, error) {
	details := make([]model.FieldDetail, len(rel.Fields))
	for i, field := range rel.Fields {
		details[i] = model.FieldDetail{
			Name:  field.Name,
			Type:  field.Type,
			Value: row[i],
			Props: r.props(field.Type, row[i]),
		}
	}

	// an unknown type is fatal before the oracle sees anything
	query, err := r.spec.Query(rel, row)
	if err != nil {
		return model.ViolationEntry{}, err
	}

	inference, err := r.ex.Explain(ctx, query)
	if err != nil {
		return model.ViolationEntry{}, fmt.Errorf("explain %s: %w", query, err)
	}
	if inference == nil {
		r.unexplained++
		r.log.Debug("explanation unavailable", zap.String("query", query))
	} else {
		delete(inference, "rules")
	}

	return model.ViolationEntry{Details: details, Inference: inference}, nil
}

// props resolves identity hints for one value. Non-identity types get an
// empty set.
func (r *run) props(typ, value string) model.IdentityProps {
	props := model.IdentityProps{}
	if _, ok := r.identity[typ]; !ok {
		return props
	}

	if name, ok := r.index.Name(value); ok {
		props[model.PropIDName] = name
	} else {
		parents := []string{}
		for _, a := range r.index.AncestorsOf(value) {
			if name, ok := r.index.Name(a); ok {
				parents = append(parents, name)
			}
		}
		props[model.PropParentIDs] = parents
	}

	if class, ok := r.index.Class(value); ok {
		props[model.PropClass] = class
	}
	if r.opts.TextContent {
		if texts := r.index.Texts(value); len(texts) > 0 {
			props[model.PropText] = texts
		}
	}
	if act, ok := r.activity(value); ok {
		props[model.PropActivity] = act
	}
	return props
}

// activity is the activity owning value's root: its own, or that of the
// nearest ancestor that is a root view
func (r *run) activity(value string) (string, bool) {
	if act, ok := r.index.Activity(value); ok {
		return act, true
	}
	for _, a := range r.index.AncestorsOf(value) {
		if act, ok := r.index.Activity(a); ok {
			return act, true
		}
	}
	return "", false
}
