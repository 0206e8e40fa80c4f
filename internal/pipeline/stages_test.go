package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ilyakh/docsum/internal/entity"
	"github.com/ilyakh/docsum/internal/extract"
	"github.com/ilyakh/docsum/internal/job"
	"github.com/ilyakh/docsum/internal/llm"
)

type fakeSummarizer struct {
	summary string
	err     error
	gotMode llm.Mode
	gotText string
}

func (f *fakeSummarizer) Summarize(ctx context.Context, text string, mode llm.Mode) (string, error) {
	f.gotText = text
	f.gotMode = mode
	return f.summary, f.err
}

func (f *fakeSummarizer) ModelInfo() llm.ModelInfo {
	return llm.ModelInfo{Backend: "fake", Model: "fake-1"}
}

func fakeFactory(s llm.Summarizer) SummarizerFactory {
	return func(backend string) (llm.Summarizer, error) { return s, nil }
}

func TestStandardStagesComposition(t *testing.T) {
	builder := StandardStages(Deps{Entities: entity.New(), Summarizer: fakeFactory(&fakeSummarizer{})})

	names := func(stages []Stage) []string {
		var out []string
		for _, st := range stages {
			out = append(out, st.Name)
		}
		return out
	}

	withEntities := names(builder(job.Config{ExtractEntities: true}))
	if len(withEntities) != 3 || withEntities[1] != StageEntities {
		t.Errorf("with entities: stages = %v", withEntities)
	}

	withoutEntities := names(builder(job.Config{ExtractEntities: false}))
	if len(withoutEntities) != 2 || withoutEntities[0] != StageExtract || withoutEntities[1] != StageSummarize {
		t.Errorf("without entities: stages = %v", withoutEntities)
	}
}

func TestSummarizeStageUsesExtractOutput(t *testing.T) {
	fake := &fakeSummarizer{summary: "a short summary"}
	st := summarizeStage(fakeFactory(fake))

	rc := &RunContext{
		Config:  job.Config{SummaryMode: "detailed", Backend: "fake"},
		Outputs: map[string]any{StageExtract: extract.Result{Text: "document text"}},
	}

	out, err := st.Run(context.Background(), rc)
	if err != nil {
		t.Fatalf("summarize stage: %v", err)
	}

	so, ok := out.(SummaryOutput)
	if !ok {
		t.Fatalf("output type %T", out)
	}
	if so.Text != "a short summary" || so.Model.Backend != "fake" {
		t.Errorf("output = %+v", so)
	}
	if fake.gotText != "document text" {
		t.Errorf("summarizer received %q", fake.gotText)
	}
	if fake.gotMode != llm.ModeDetailed {
		t.Errorf("summarizer mode = %s, want detailed", fake.gotMode)
	}
}

func TestSummarizeStageWithoutExtractOutput(t *testing.T) {
	st := summarizeStage(fakeFactory(&fakeSummarizer{}))
	rc := &RunContext{Outputs: map[string]any{}}

	if _, err := st.Run(context.Background(), rc); err == nil {
		t.Fatal("expected error when extract output is missing")
	}
}

func TestSummarizeStagePropagatesBackendError(t *testing.T) {
	fake := &fakeSummarizer{err: errors.New("model unavailable")}
	st := summarizeStage(fakeFactory(fake))
	rc := &RunContext{
		Config:  job.Config{SummaryMode: "brief"},
		Outputs: map[string]any{StageExtract: extract.Result{Text: "text"}},
	}

	if _, err := st.Run(context.Background(), rc); err == nil {
		t.Fatal("expected backend error to propagate")
	}
}

func TestEntityStageFiltersByRequestedTypes(t *testing.T) {
	st := entityStage(entity.New())
	rc := &RunContext{
		Config: job.Config{EntityTypes: []string{"money"}},
		Outputs: map[string]any{StageExtract: extract.Result{
			Text: "Acme Corporation paid $1,500.00 on January 5, 2024.",
		}},
	}

	out, err := st.Run(context.Background(), rc)
	if err != nil {
		t.Fatalf("entity stage: %v", err)
	}

	entities, ok := out.([]entity.Entity)
	if !ok {
		t.Fatalf("output type %T", out)
	}
	for _, e := range entities {
		if e.Type != entity.TypeMoney {
			t.Errorf("unexpected entity type %s with filter money", e.Type)
		}
	}
	if len(entities) == 0 {
		t.Error("expected at least one money entity")
	}
}

func TestAssembleResult(t *testing.T) {
	rc := &RunContext{
		Config: job.Config{SummaryMode: "brief", Backend: "ollama"},
		Outputs: map[string]any{
			StageExtract: extract.Result{
				Text:           "some text",
				PagesProcessed: 2,
				Tables:         []extract.Table{{Page: 1}},
			},
			StageEntities: []entity.Entity{
				{Type: entity.TypeDate, Text: "January 5, 2024"},
			},
			StageSummarize: SummaryOutput{
				Text:  "the summary",
				Model: llm.ModelInfo{Backend: "ollama", Model: "llama3.2"},
			},
		},
	}

	out := AssembleResult(rc, 1500*time.Millisecond)
	res, ok := out.(Result)
	if !ok {
		t.Fatalf("result type %T", out)
	}

	if res.Summary != "the summary" {
		t.Errorf("summary = %q", res.Summary)
	}
	if len(res.Entities) != 1 {
		t.Errorf("entities = %v", res.Entities)
	}
	m := res.Metadata
	if m.Model != "llama3.2" || m.Backend != "ollama" || m.SummaryMode != "brief" {
		t.Errorf("metadata identity fields = %+v", m)
	}
	if m.EntityCount != 1 || m.TextLength != len("some text") || m.PagesProcessed != 2 || m.TablesExtracted != 1 {
		t.Errorf("metadata counters = %+v", m)
	}
	if m.ProcessingSeconds != 1.5 {
		t.Errorf("processing seconds = %v", m.ProcessingSeconds)
	}
}

func TestAssembleResultWithoutEntityStage(t *testing.T) {
	rc := &RunContext{
		Outputs: map[string]any{
			StageExtract:   extract.Result{Text: "text"},
			StageSummarize: SummaryOutput{Text: "s"},
		},
	}

	res := AssembleResult(rc, time.Second).(Result)
	if res.Entities == nil {
		t.Error("entities should be an empty slice, not nil")
	}
	if len(res.Entities) != 0 {
		t.Errorf("entities = %v", res.Entities)
	}
}
