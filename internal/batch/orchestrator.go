package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pgmentor/pgmentor/internal/ai"
	"github.com/pgmentor/pgmentor/internal/pipeline"
	"github.com/pgmentor/pgmentor/internal/plan"
	"github.com/pgmentor/pgmentor/internal/prompt"
	"github.com/pgmentor/pgmentor/internal/schema"
	"github.com/pgmentor/pgmentor/internal/script"
)

// Options configures a batch run.
type Options struct {
	// Connection
	ConnStr string

	// Analysis
	Type         prompt.Type
	Mode         plan.Mode
	Model        string
	APIKey       string
	TemplateName string

	// Execution
	OutputRoot string
	Workers    int
	Verbose    bool
	Progress   io.Writer
}

// Item statuses recorded in results and the manifest.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFailed   = "failed"
)

// ItemResult is the outcome for a single script.
type ItemResult struct {
	BaseName string
	Dir      string
	Status   string
	Kind     pipeline.Kind
	Err      string
	Degraded bool
	Blocks   int
	Findings int
}

// Result summarizes a completed batch run.
type Result struct {
	BatchID string
	Dir     string
	Items   []ItemResult
}

// Failed reports how many items did not complete.
func (r *Result) Failed() int {
	n := 0
	for _, item := range r.Items {
		if item.Status == StatusFailed {
			n++
		}
	}
	return n
}

// Orchestrator drives scripts through the analysis stages, isolating
// failures so one bad item never stops the batch.
type Orchestrator struct {
	opts Options
	tpl  prompt.Template

	probe    func(ctx context.Context) (plan.EngineInfo, error)
	capture  func(ctx context.Context, stmts []script.Statement) ([]plan.Fragment, error)
	collect  func(ctx context.Context, logger *zap.Logger, database string, refs []plan.ObjectReference) *schema.Document
	annotate func(ctx context.Context, promptText string) (string, error)
}

// New builds an orchestrator bound to the given prompt registry. The
// template is resolved once up front so a bad name fails before any
// database work starts.
func New(opts Options, reg *prompt.Registry) (*Orchestrator, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Progress == nil {
		opts.Progress = io.Discard
	}

	tpl, err := reg.Lookup(opts.TemplateName, opts.Type)
	if err != nil {
		return nil, err
	}

	client := ai.NewClient(opts.APIKey, opts.Model)
	o := &Orchestrator{
		opts: opts,
		tpl:  tpl,
		probe: func(ctx context.Context) (plan.EngineInfo, error) {
			return plan.Probe(ctx, opts.ConnStr)
		},
		capture: func(ctx context.Context, stmts []script.Statement) ([]plan.Fragment, error) {
			return plan.Capture(ctx, opts.ConnStr, stmts, opts.Mode)
		},
		collect: func(ctx context.Context, logger *zap.Logger, database string, refs []plan.ObjectReference) *schema.Document {
			return schema.NewCollector(opts.ConnStr, logger).Collect(ctx, database, refs)
		},
		annotate: client.Annotate,
	}
	return o, nil
}

// Run processes every input and writes all artifacts under a fresh
// timestamped directory inside OutputRoot. Item ordering in the result
// matches the input ordering regardless of worker scheduling.
func (o *Orchestrator) Run(ctx context.Context, inputs []script.Input) (*Result, error) {
	batchID := uuid.NewString()
	started := time.Now().UTC()
	dirName := fmt.Sprintf("pgmentor-%s-%s", started.Format("20060102-150405"), batchID[:8])
	dir := filepath.Join(o.opts.OutputRoot, dirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating batch directory %s: %w", dir, err)
	}

	logger, closeLog, err := newFileLogger(filepath.Join(dir, "batch.log"), o.opts.Verbose)
	if err != nil {
		return nil, err
	}
	defer closeLog()

	logger.Info("batch started",
		zap.String("batch_id", batchID),
		zap.String("analysis_type", o.opts.Type.String()),
		zap.String("plan_mode", o.opts.Mode.String()),
		zap.Int("items", len(inputs)),
		zap.Int("workers", o.opts.Workers))

	dirs := itemDirNames(inputs)
	results := make([]ItemResult, len(inputs))

	if o.opts.Workers > 1 && len(inputs) > 1 {
		var wg sync.WaitGroup
		sem := make(chan struct{}, o.opts.Workers)
		for i := range inputs {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int) {
				defer wg.Done()
				defer func() { <-sem }()
				results[i] = o.processItem(ctx, logger, dir, dirs[i], inputs[i])
			}(i)
		}
		wg.Wait()
	} else {
		for i := range inputs {
			results[i] = o.processItem(ctx, logger, dir, dirs[i], inputs[i])
		}
	}

	m := manifest{
		BatchID:  batchID,
		Created:  started,
		Finished: time.Now().UTC(),
		Type:     o.opts.Type.String(),
		Model:    o.modelName(),
	}
	if o.opts.Type == prompt.Tuning {
		m.Mode = o.opts.Mode.String()
	}
	for i, res := range results {
		mi := manifestItem{
			Name:     res.BaseName,
			Dir:      dirs[i],
			Status:   res.Status,
			Blocks:   res.Blocks,
			Findings: res.Findings,
		}
		if res.Status == StatusFailed {
			mi.ErrorKind = string(res.Kind)
			mi.Error = res.Err
		}
		m.Items = append(m.Items, mi)
	}
	if err := writeManifest(dir, m); err != nil {
		logger.Error("writing manifest failed", zap.Error(err))
	}

	result := &Result{BatchID: batchID, Dir: dir, Items: results}
	logger.Info("batch finished",
		zap.Int("items", len(results)),
		zap.Int("failed", result.Failed()))
	return result, nil
}

func (o *Orchestrator) modelName() string {
	if o.opts.Model != "" {
		return o.opts.Model
	}
	return ai.DefaultModel
}

func (o *Orchestrator) progressf(format string, args ...any) {
	fmt.Fprintf(o.opts.Progress, format, args...)
}

// itemDirNames assigns each input a directory name, suffixing repeats so
// two scripts with the same base name never share artifacts.
func itemDirNames(inputs []script.Input) []string {
	used := make(map[string]bool)
	names := make([]string, len(inputs))
	for i, in := range inputs {
		name := in.BaseName
		if name == "" {
			name = fmt.Sprintf("script-%d", i+1)
		}
		candidate := name
		for n := 2; used[candidate]; n++ {
			candidate = fmt.Sprintf("%s-%d", name, n)
		}
		used[candidate] = true
		names[i] = candidate
	}
	return names
}
