package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/pgmentor/pgmentor/internal/pipeline"
	"github.com/pgmentor/pgmentor/internal/plan"
	"github.com/pgmentor/pgmentor/internal/prompt"
	"github.com/pgmentor/pgmentor/internal/report"
	"github.com/pgmentor/pgmentor/internal/script"
)

// Artifact files written into each item directory.
const (
	planFileName      = "plan.xml"
	schemaFileName    = "schema.txt"
	promptFileName    = "prompt.txt"
	annotatedFileName = "annotated.sql"
	summaryFileName   = "summary.txt"
	itemLogFileName   = "item.log"
)

func (o *Orchestrator) processItem(ctx context.Context, batchLog *zap.Logger, batchDir, dirName string, in script.Input) ItemResult {
	res := ItemResult{BaseName: in.BaseName, Dir: dirName, Status: StatusFailed}

	itemDir := filepath.Join(batchDir, dirName)
	if err := os.MkdirAll(itemDir, 0755); err != nil {
		res.Err = err.Error()
		batchLog.Error("creating item directory failed",
			zap.String("item", in.BaseName), zap.Error(err))
		return res
	}

	logger, closeLog, err := newFileLogger(filepath.Join(itemDir, itemLogFileName), o.opts.Verbose)
	if err != nil {
		res.Err = err.Error()
		batchLog.Error("opening item log failed",
			zap.String("item", in.BaseName), zap.Error(err))
		return res
	}
	defer closeLog()

	o.progressf("[%s] processing\n", in.BaseName)
	batchLog.Info("item started", zap.String("item", in.BaseName), zap.String("dir", dirName))
	logger.Info("item started",
		zap.String("item", in.BaseName),
		zap.String("source", in.SourcePath),
		zap.String("analysis_type", o.opts.Type.String()))

	if err := o.runStages(ctx, logger, itemDir, in, &res); err != nil {
		res.Status = StatusFailed
		res.Kind = pipeline.KindOf(err)
		res.Err = err.Error()

		var pe *pipeline.Error
		if errors.As(err, &pe) && pe.Detail != "" {
			logger.Error("failure detail", zap.String("detail", pe.Detail))
		}
		logger.Error("item failed", zap.String("kind", string(res.Kind)), zap.Error(err))
		batchLog.Error("item failed",
			zap.String("item", in.BaseName),
			zap.String("kind", string(res.Kind)),
			zap.Error(err))
		o.progressf("[%s] failed: %s\n", in.BaseName, res.Err)
		return res
	}

	if res.Degraded {
		res.Status = StatusDegraded
	} else {
		res.Status = StatusOK
	}
	logger.Info("item finished", zap.String("status", res.Status))
	batchLog.Info("item finished",
		zap.String("item", in.BaseName),
		zap.String("status", res.Status),
		zap.Int("findings", res.Findings))
	o.progressf("[%s] %s (%d findings)\n", in.BaseName, res.Status, res.Findings)
	return res
}

// runStages walks one script through the pipeline, writing each artifact
// as soon as it exists so partial output survives a later failure.
func (o *Orchestrator) runStages(ctx context.Context, logger *zap.Logger, itemDir string, in script.Input, res *ItemResult) error {
	pctx := prompt.Context{Script: in, Template: o.tpl}

	if o.opts.Type == prompt.Tuning {
		stmts, err := script.SplitStatements(in.SQLText)
		if err != nil {
			return &pipeline.Error{Kind: pipeline.KindPlanGeneration, Stage: pipeline.StagePlan, Err: err}
		}
		logger.Info("script split", zap.Int("statements", len(stmts)))

		info, err := o.probe(ctx)
		if err != nil {
			return &pipeline.Error{Kind: pipeline.KindPlanGeneration, Stage: pipeline.StagePlan, Err: err}
		}
		pctx.EngineVersion = info.Version
		logger.Info("engine probed",
			zap.String("version", info.Version),
			zap.String("database", info.Database))

		frags, err := o.capture(ctx, stmts)
		if err != nil {
			return err
		}
		logger.Info("plans captured", zap.Int("fragments", len(frags)))

		doc, err := plan.Merge(frags, info.Database, o.opts.Mode)
		if err != nil {
			return err
		}
		if doc.Degraded {
			res.Degraded = true
			logger.Warn("structural merge unavailable, fragments wrapped verbatim",
				zap.String("reason", doc.DegradedReason))
		}
		if err := writeArtifact(itemDir, planFileName, doc.MergedXML); err != nil {
			return err
		}
		pctx.Plan = doc

		refs, err := plan.ExtractObjects(doc)
		if err != nil {
			return err
		}
		logger.Info("objects extracted", zap.Int("count", len(refs)))
		if len(refs) == 0 {
			return &pipeline.Error{
				Kind:  pipeline.KindEmptyContext,
				Stage: pipeline.StageExtract,
				Err:   fmt.Errorf("plan references no analyzable objects"),
			}
		}

		sdoc := o.collect(ctx, logger, info.Database, refs)
		if err := writeArtifact(itemDir, schemaFileName, sdoc.Render()); err != nil {
			return err
		}
		if sdoc.Empty() {
			return &pipeline.Error{
				Kind:  pipeline.KindEmptyContext,
				Stage: pipeline.StageSchema,
				Err:   fmt.Errorf("no schema context could be collected"),
			}
		}
		pctx.Schema = sdoc
	}

	promptText := prompt.Assemble(pctx)
	if err := writeArtifact(itemDir, promptFileName, promptText); err != nil {
		return err
	}

	annotated, err := o.annotate(ctx, promptText)
	if err != nil {
		return err
	}
	if err := writeArtifact(itemDir, annotatedFileName, annotated); err != nil {
		return err
	}

	sum := report.Parse(annotated)
	res.Blocks = sum.Blocks
	res.Findings = sum.Findings
	if err := writeSummary(itemDir, sum); err != nil {
		return err
	}
	logger.Info("summary written",
		zap.Int("blocks", sum.Blocks),
		zap.Int("findings", sum.Findings))
	return nil
}

func writeArtifact(dir, name, content string) error {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func writeSummary(dir string, sum report.Summary) error {
	path := filepath.Join(dir, summaryFileName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if err := report.WriteDigest(f, sum); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
