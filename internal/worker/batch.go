package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/uicheck/internal/report"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// BatchJob is one report to build
type BatchJob struct {
	Name      string   `yaml:"name"`
	FactsDir  string   `yaml:"facts_dir"`
	Spec      string   `yaml:"spec"`
	OutputDir string   `yaml:"output_dir"`
	Prefixes  []string `yaml:"prefixes,omitempty"` // Overrides report.prefixes when set
}

type jobFile struct {
	Jobs []BatchJob `yaml:"jobs"`
}

// Builder builds one report
type Builder interface {
	Build(ctx context.Context) (*report.Result, error)
}

// BuilderFactory creates the Builder for a job
type BuilderFactory func(job BatchJob) Builder

// buildJob adapts a BatchJob to the pool
type buildJob struct {
	index   int
	job     BatchJob
	builder Builder
}

// Execute runs the build
func (j *buildJob) Execute(ctx context.Context) Result {
	res, err := j.builder.Build(ctx)
	return &BuildResult{Index: j.index, Job: j.job, Report: res, Error: err}
}

// BuildResult is the outcome of one BatchJob
type BuildResult struct {
	Index  int
	Job    BatchJob
	Report *report.Result
	Error  error
}

// Err returns the build error
func (r *BuildResult) Err() error {
	return r.Error
}

// BatchProcessor builds many reports concurrently. Every job gets its own
// Builder and therefore its own explain session.
type BatchProcessor struct {
	factory     BuilderFactory
	concurrency int
	logger      *zap.Logger
}

// NewBatchProcessor creates a batch processor
func NewBatchProcessor(factory BuilderFactory, concurrency int, logger *zap.Logger) *BatchProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchProcessor{
		factory:     factory,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Process builds every job and returns results in job order. A failing
// job does not stop the others.
func (b *BatchProcessor) Process(ctx context.Context, jobs []BatchJob) []*BuildResult {
	if len(jobs) == 0 {
		return []*BuildResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	work := make([]Job, len(jobs))
	for i, job := range jobs {
		work[i] = &buildJob{index: i, job: job, builder: b.factory(job)}
	}

	out := make([]*BuildResult, len(jobs))
	for _, r := range pool.Run(work) {
		br := r.(*BuildResult)
		out[br.Index] = br
	}
	// cancellation can leave jobs unstarted or their results undelivered
	for i := range out {
		if out[i] == nil {
			out[i] = &BuildResult{Index: i, Job: jobs[i], Error: fmt.Errorf("not completed: %w", context.Cause(ctx))}
		}
	}

	for _, r := range out {
		if r.Error != nil {
			b.logger.Error("build failed", zap.String("job", r.Job.Name), zap.Error(r.Error))
		}
	}
	return out
}

// ProcessFile reads jobs from a YAML file and processes them
func (b *BatchProcessor) ProcessFile(ctx context.Context, path string) ([]*BuildResult, error) {
	jobs, err := ReadJobs(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs: %w", err)
	}
	return b.Process(ctx, jobs), nil
}

// ReadJobs reads a YAML job list. Relative paths are resolved against the
// file's directory. Two jobs may not share an output directory since each
// writes its own report there.
func ReadJobs(path string) ([]BatchJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	var f jobFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	base := filepath.Dir(path)
	owner := make(map[string]string)
	for i := range f.Jobs {
		job := &f.Jobs[i]
		if job.FactsDir == "" || job.Spec == "" || job.OutputDir == "" {
			return nil, fmt.Errorf("job %d: facts_dir, spec and output_dir are required", i+1)
		}
		job.FactsDir = resolve(base, job.FactsDir)
		job.Spec = resolve(base, job.Spec)
		job.OutputDir = resolve(base, job.OutputDir)
		if job.Name == "" {
			job.Name = filepath.Base(job.OutputDir)
		}

		if prev, dup := owner[job.OutputDir]; dup {
			return nil, fmt.Errorf("job %q: output_dir %s already used by %q", job.Name, job.OutputDir, prev)
		}
		owner[job.OutputDir] = job.Name
	}
	return f.Jobs, nil
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
