package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/pgmentor/pgmentor/internal/ai"
	"github.com/pgmentor/pgmentor/internal/pipeline"
	"github.com/pgmentor/pgmentor/internal/plan"
	"github.com/pgmentor/pgmentor/internal/prompt"
	"github.com/pgmentor/pgmentor/internal/schema"
	"github.com/pgmentor/pgmentor/internal/script"
)

const annotatedTuning = `SELECT * FROM sales.orders;
-- ===== PGMENTOR TUNING RECOMMENDATIONS =====
-- 1. Problem: sequential scan on a large table
--    Recommendation: add an index on (customer_id)
`

const annotatedReview = `DELETE FROM sales.orders;
-- ===== PGMENTOR CODE REVIEW =====
-- 1. Finding: DELETE without a WHERE clause
--    Suggestion: add a predicate or use TRUNCATE deliberately
`

func planFragment(schemaName, relation string) plan.Fragment {
	xmlText := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<explain xmlns="http://www.postgresql.org/2009/explain">
  <Query>
    <Plan>
      <Node-Type>Seq Scan</Node-Type>
      <Relation-Name>%s</Relation-Name>
      <Schema>%s</Schema>
    </Plan>
  </Query>
</explain>`, relation, schemaName)
	return plan.Fragment{StatementText: "SELECT 1", XML: xmlText}
}

func ordersDoc() *schema.Document {
	return &schema.Document{Objects: []schema.ObjectSchema{{
		Ref: plan.ObjectReference{Database: "appdb", Schema: "sales", Name: "orders"},
		Columns: []schema.Column{
			{Name: "order_id", DataType: "int4"},
		},
	}}}
}

// testOrchestrator builds an orchestrator whose engine and inference hooks
// are stubbed, writing into a per-test temp directory.
func testOrchestrator(t *testing.T, opts Options) *Orchestrator {
	t.Helper()
	if opts.OutputRoot == "" {
		opts.OutputRoot = t.TempDir()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	opts.Progress = io.Discard

	tpl, err := prompt.NewRegistry().Lookup(opts.TemplateName, opts.Type)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	return &Orchestrator{
		opts: opts,
		tpl:  tpl,
		probe: func(context.Context) (plan.EngineInfo, error) {
			return plan.EngineInfo{Version: "PostgreSQL 17.2", Database: "appdb"}, nil
		},
		capture: func(_ context.Context, stmts []script.Statement) ([]plan.Fragment, error) {
			frags := make([]plan.Fragment, 0, len(stmts))
			for range stmts {
				frags = append(frags, planFragment("sales", "orders"))
			}
			return frags, nil
		},
		collect: func(context.Context, *zap.Logger, string, []plan.ObjectReference) *schema.Document {
			return ordersDoc()
		},
		annotate: func(context.Context, string) (string, error) {
			return annotatedTuning, nil
		},
	}
}

func TestRun_FailureIsolation(t *testing.T) {
	o := testOrchestrator(t, Options{Type: prompt.Tuning})
	o.capture = func(_ context.Context, stmts []script.Statement) ([]plan.Fragment, error) {
		for _, s := range stmts {
			if strings.Contains(s.Text, "broken_table") {
				return nil, &pipeline.Error{
					Kind:  pipeline.KindPlanGeneration,
					Stage: pipeline.StagePlan,
					Err:   fmt.Errorf(`relation "broken_table" does not exist`),
				}
			}
		}
		return []plan.Fragment{planFragment("sales", "orders")}, nil
	}

	inputs := []script.Input{
		{BaseName: "first", SQLText: "SELECT * FROM sales.orders;"},
		{BaseName: "second", SQLText: "SELECT * FROM broken_table;"},
		{BaseName: "third", SQLText: "SELECT count(*) FROM sales.orders;"},
	}
	res, err := o.Run(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{StatusOK, StatusFailed, StatusOK}
	for i, item := range res.Items {
		if item.Status != want[i] {
			t.Errorf("item %d status = %q, want %q", i, item.Status, want[i])
		}
	}
	if res.Items[1].Kind != pipeline.KindPlanGeneration {
		t.Errorf("failed item kind = %q, want %q", res.Items[1].Kind, pipeline.KindPlanGeneration)
	}
	if res.Failed() != 1 {
		t.Errorf("Failed() = %d, want 1", res.Failed())
	}

	for _, name := range []string{"first", "third"} {
		for _, artifact := range []string{planFileName, schemaFileName, promptFileName, annotatedFileName, summaryFileName} {
			path := filepath.Join(res.Dir, name, artifact)
			if _, err := os.Stat(path); err != nil {
				t.Errorf("missing artifact %s: %v", path, err)
			}
		}
	}
	if _, err := os.Stat(filepath.Join(res.Dir, "second", promptFileName)); !os.IsNotExist(err) {
		t.Errorf("failed item should not produce a prompt artifact")
	}

	logData, err := os.ReadFile(filepath.Join(res.Dir, "batch.log"))
	if err != nil {
		t.Fatalf("reading batch log failed: %v", err)
	}
	if !strings.Contains(string(logData), "plan_generation") {
		t.Errorf("batch log does not record the failure kind")
	}
}

func TestRun_ReviewMakesNoEngineCalls(t *testing.T) {
	o := testOrchestrator(t, Options{Type: prompt.CodeReview})
	o.probe = func(context.Context) (plan.EngineInfo, error) {
		t.Error("probe called during review analysis")
		return plan.EngineInfo{}, nil
	}
	o.capture = func(context.Context, []script.Statement) ([]plan.Fragment, error) {
		t.Error("capture called during review analysis")
		return nil, nil
	}
	o.collect = func(context.Context, *zap.Logger, string, []plan.ObjectReference) *schema.Document {
		t.Error("collect called during review analysis")
		return &schema.Document{}
	}
	o.annotate = func(context.Context, string) (string, error) {
		return annotatedReview, nil
	}

	res, err := o.Run(context.Background(), []script.Input{
		{BaseName: "cleanup", SQLText: "DELETE FROM sales.orders;"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	item := res.Items[0]
	if item.Status != StatusOK {
		t.Fatalf("item status = %q, want %q (err: %s)", item.Status, StatusOK, item.Err)
	}
	if item.Findings != 1 {
		t.Errorf("item findings = %d, want 1", item.Findings)
	}

	itemDir := filepath.Join(res.Dir, "cleanup")
	for _, artifact := range []string{promptFileName, annotatedFileName, summaryFileName} {
		if _, err := os.Stat(filepath.Join(itemDir, artifact)); err != nil {
			t.Errorf("missing artifact %s: %v", artifact, err)
		}
	}
	for _, artifact := range []string{planFileName, schemaFileName} {
		if _, err := os.Stat(filepath.Join(itemDir, artifact)); !os.IsNotExist(err) {
			t.Errorf("review item should not produce %s", artifact)
		}
	}
}

func TestRun_EmptyContextWhenPlanHasNoObjects(t *testing.T) {
	o := testOrchestrator(t, Options{Type: prompt.Tuning})
	o.capture = func(context.Context, []script.Statement) ([]plan.Fragment, error) {
		frag := plan.Fragment{
			StatementText: "SELECT 1",
			XML:           `<explain xmlns="http://www.postgresql.org/2009/explain"><Query><Plan><Node-Type>Result</Node-Type></Plan></Query></explain>`,
		}
		return []plan.Fragment{frag}, nil
	}

	res, err := o.Run(context.Background(), []script.Input{
		{BaseName: "constant", SQLText: "SELECT 1;"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	item := res.Items[0]
	if item.Status != StatusFailed {
		t.Fatalf("item status = %q, want %q", item.Status, StatusFailed)
	}
	if item.Kind != pipeline.KindEmptyContext {
		t.Errorf("item kind = %q, want %q", item.Kind, pipeline.KindEmptyContext)
	}
	if _, err := os.Stat(filepath.Join(res.Dir, "constant", planFileName)); err != nil {
		t.Errorf("plan artifact should survive the failure: %v", err)
	}
	if _, err := os.Stat(filepath.Join(res.Dir, "constant", promptFileName)); !os.IsNotExist(err) {
		t.Errorf("no prompt should be written without context")
	}
}

func TestRun_EmptyContextWhenSchemaUnresolvable(t *testing.T) {
	o := testOrchestrator(t, Options{Type: prompt.Tuning})
	o.collect = func(_ context.Context, _ *zap.Logger, _ string, refs []plan.ObjectReference) *schema.Document {
		doc := &schema.Document{}
		for _, ref := range refs {
			doc.Objects = append(doc.Objects, schema.ObjectSchema{Ref: ref})
		}
		return doc
	}

	res, err := o.Run(context.Background(), []script.Input{
		{BaseName: "orders", SQLText: "SELECT * FROM sales.orders;"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	item := res.Items[0]
	if item.Status != StatusFailed {
		t.Fatalf("item status = %q, want %q", item.Status, StatusFailed)
	}
	if item.Kind != pipeline.KindEmptyContext {
		t.Errorf("item kind = %q, want %q", item.Kind, pipeline.KindEmptyContext)
	}
	if _, err := os.Stat(filepath.Join(res.Dir, "orders", schemaFileName)); err != nil {
		t.Errorf("schema artifact should survive the failure: %v", err)
	}
	if _, err := os.Stat(filepath.Join(res.Dir, "orders", promptFileName)); !os.IsNotExist(err) {
		t.Errorf("no prompt should be written without schema context")
	}
}

func TestRun_DegradedMergeMarksItem(t *testing.T) {
	o := testOrchestrator(t, Options{Type: prompt.Tuning})
	o.capture = func(context.Context, []script.Statement) ([]plan.Fragment, error) {
		return []plan.Fragment{
			planFragment("sales", "orders"),
			{StatementText: "SELECT 2", XML: `<explain><bogus/></explain>`},
		}, nil
	}

	res, err := o.Run(context.Background(), []script.Input{
		{BaseName: "mixed", SQLText: "SELECT 1; SELECT 2;"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	item := res.Items[0]
	if item.Status != StatusDegraded {
		t.Fatalf("item status = %q, want %q (err: %s)", item.Status, StatusDegraded, item.Err)
	}
	if !item.Degraded {
		t.Errorf("item not marked degraded")
	}

	data, err := os.ReadFile(filepath.Join(res.Dir, "mixed", planFileName))
	if err != nil {
		t.Fatalf("reading plan artifact failed: %v", err)
	}
	if !strings.HasPrefix(string(data), "<explain-batch") {
		t.Errorf("degraded plan artifact is not wrapped")
	}
}

func TestRun_NoPlanFoundKind(t *testing.T) {
	o := testOrchestrator(t, Options{Type: prompt.Tuning})
	o.capture = func(context.Context, []script.Statement) ([]plan.Fragment, error) {
		return nil, nil
	}

	res, err := o.Run(context.Background(), []script.Input{
		{BaseName: "ddl-only", SQLText: "SET search_path TO sales;"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Items[0].Kind != pipeline.KindNoPlanFound {
		t.Errorf("item kind = %q, want %q", res.Items[0].Kind, pipeline.KindNoPlanFound)
	}
}

func TestRun_InferenceFailureRecorded(t *testing.T) {
	o := testOrchestrator(t, Options{Type: prompt.Tuning})
	o.annotate = func(context.Context, string) (string, error) {
		return "", &pipeline.Error{
			Kind:   pipeline.KindInference,
			Stage:  pipeline.StageInfer,
			Detail: `{"type":"overloaded_error"}`,
			Err:    fmt.Errorf("calling inference API: overloaded"),
		}
	}

	res, err := o.Run(context.Background(), []script.Input{
		{BaseName: "orders", SQLText: "SELECT * FROM sales.orders;"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	item := res.Items[0]
	if item.Status != StatusFailed {
		t.Fatalf("item status = %q, want %q", item.Status, StatusFailed)
	}
	if item.Kind != pipeline.KindInference {
		t.Errorf("item kind = %q, want %q", item.Kind, pipeline.KindInference)
	}
	if _, err := os.Stat(filepath.Join(res.Dir, "orders", promptFileName)); err != nil {
		t.Errorf("prompt artifact should survive the failure: %v", err)
	}
	if _, err := os.Stat(filepath.Join(res.Dir, "orders", annotatedFileName)); !os.IsNotExist(err) {
		t.Errorf("no annotated script should be written on inference failure")
	}

	logData, err := os.ReadFile(filepath.Join(res.Dir, "orders", itemLogFileName))
	if err != nil {
		t.Fatalf("reading item log failed: %v", err)
	}
	if !strings.Contains(string(logData), "failure detail") {
		t.Errorf("item log does not record the raw failure detail")
	}
}

func TestRun_ManifestRecordsItems(t *testing.T) {
	o := testOrchestrator(t, Options{Type: prompt.Tuning})

	res, err := o.Run(context.Background(), []script.Input{
		{BaseName: "report", SQLText: "SELECT * FROM sales.orders;"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(res.Dir, manifestFileName))
	if err != nil {
		t.Fatalf("reading manifest failed: %v", err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		t.Fatalf("parsing manifest failed: %v", err)
	}

	if m.BatchID != res.BatchID {
		t.Errorf("manifest batch_id = %q, want %q", m.BatchID, res.BatchID)
	}
	if m.Type != "tuning" {
		t.Errorf("manifest analysis_type = %q, want %q", m.Type, "tuning")
	}
	if m.Mode != "estimated" {
		t.Errorf("manifest plan_mode = %q, want %q", m.Mode, "estimated")
	}
	if m.Model != ai.DefaultModel {
		t.Errorf("manifest model = %q, want %q", m.Model, ai.DefaultModel)
	}
	if len(m.Items) != 1 {
		t.Fatalf("manifest items = %d, want 1", len(m.Items))
	}
	item := m.Items[0]
	if item.Name != "report" || item.Status != StatusOK {
		t.Errorf("manifest item = %+v, want name report with status ok", item)
	}
	if item.Blocks != 1 || item.Findings != 1 {
		t.Errorf("manifest counts = %d blocks, %d findings, want 1 and 1", item.Blocks, item.Findings)
	}
}

func TestRun_WorkerPoolPreservesOrder(t *testing.T) {
	o := testOrchestrator(t, Options{Type: prompt.CodeReview, Workers: 4})
	o.annotate = func(context.Context, string) (string, error) {
		return annotatedReview, nil
	}

	inputs := make([]script.Input, 6)
	for i := range inputs {
		inputs[i] = script.Input{BaseName: fmt.Sprintf("script-%c", 'a'+i), SQLText: "SELECT 1;"}
	}
	res, err := o.Run(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(res.Items) != len(inputs) {
		t.Fatalf("items = %d, want %d", len(res.Items), len(inputs))
	}
	for i, item := range res.Items {
		if item.BaseName != inputs[i].BaseName {
			t.Errorf("item %d = %q, want %q", i, item.BaseName, inputs[i].BaseName)
		}
		if item.Status != StatusOK {
			t.Errorf("item %d status = %q, want %q", i, item.Status, StatusOK)
		}
	}
}

func TestItemDirNames_DeduplicatesRepeats(t *testing.T) {
	inputs := []script.Input{
		{BaseName: "report"},
		{BaseName: "report"},
		{BaseName: ""},
		{BaseName: "report"},
	}
	got := itemDirNames(inputs)
	want := []string{"report", "report-2", "script-3", "report-3"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dir %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNew_UnknownTemplateFails(t *testing.T) {
	_, err := New(Options{Type: prompt.Tuning, TemplateName: "nope"}, prompt.NewRegistry())
	if err == nil {
		t.Fatalf("New with unknown template did not fail")
	}
	if !strings.Contains(err.Error(), "nope") {
		t.Errorf("error %q does not name the template", err)
	}
}
