package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ilyakh/docsum/internal/entity"
	"github.com/ilyakh/docsum/internal/extract"
	"github.com/ilyakh/docsum/internal/job"
	"github.com/ilyakh/docsum/internal/llm"
)

// Stage names, in pipeline order.
const (
	StageExtract   = "extract"
	StageEntities  = "entities"
	StageSummarize = "summarize"
)

// SummarizerFactory binds a backend name to a Summarizer. Indirection keeps
// the stage set testable without live model servers.
type SummarizerFactory func(backend string) (llm.Summarizer, error)

// Deps gathers the collaborators the standard stages call into.
type Deps struct {
	Entities   *entity.Extractor
	Summarizer SummarizerFactory
}

// StandardStages returns the StageBuilder for the document pipeline:
// extract → entities (when enabled) → summarize.
func StandardStages(deps Deps) StageBuilder {
	return func(cfg job.Config) []Stage {
		stages := []Stage{extractStage()}
		if cfg.ExtractEntities {
			stages = append(stages, entityStage(deps.Entities))
		}
		return append(stages, summarizeStage(deps.Summarizer))
	}
}

func extractStage() Stage {
	return Stage{
		Name: StageExtract,
		Run: func(ctx context.Context, rc *RunContext) (any, error) {
			ex := extract.New(rc.Config.MaxPages)
			res, err := ex.FromFile(rc.Input.Path, rc.Config.ExtractTables)
			if err != nil {
				return nil, err
			}
			return res, nil
		},
	}
}

func entityStage(ex *entity.Extractor) Stage {
	return Stage{
		Name: StageEntities,
		Run: func(ctx context.Context, rc *RunContext) (any, error) {
			extracted, ok := rc.Output(StageExtract).(extract.Result)
			if !ok {
				return nil, fmt.Errorf("missing extract output")
			}

			var types []entity.Type
			for _, t := range rc.Config.EntityTypes {
				types = append(types, entity.Type(t))
			}
			entities := ex.Extract(extracted.Text, types)
			if entities == nil {
				entities = []entity.Entity{}
			}
			return entities, nil
		},
	}
}

func summarizeStage(factory SummarizerFactory) Stage {
	return Stage{
		Name: StageSummarize,
		Run: func(ctx context.Context, rc *RunContext) (any, error) {
			extracted, ok := rc.Output(StageExtract).(extract.Result)
			if !ok {
				return nil, fmt.Errorf("missing extract output")
			}

			mode, err := llm.ParseMode(rc.Config.SummaryMode)
			if err != nil {
				return nil, err
			}
			s, err := factory(rc.Config.Backend)
			if err != nil {
				return nil, err
			}

			summary, err := s.Summarize(ctx, extracted.Text, mode)
			if err != nil {
				return nil, err
			}
			return SummaryOutput{Text: summary, Model: s.ModelInfo()}, nil
		},
	}
}

// SummaryOutput is the summarize stage's output.
type SummaryOutput struct {
	Text  string        `json:"text"`
	Model llm.ModelInfo `json:"model"`
}

// Result is the assembled final output of a completed run.
type Result struct {
	Summary  string          `json:"summary"`
	Entities []entity.Entity `json:"entities"`
	Metadata ResultMetadata  `json:"metadata"`
}

// ResultMetadata describes how the result was produced.
type ResultMetadata struct {
	Model             string  `json:"model"`
	Backend           string  `json:"backend"`
	SummaryMode       string  `json:"summary_mode"`
	EntityCount       int     `json:"entity_count"`
	TextLength        int     `json:"text_length"`
	PagesProcessed    int     `json:"pages_processed"`
	TablesExtracted   int     `json:"tables_extracted"`
	ProcessingSeconds float64 `json:"processing_time_seconds"`
}

// AssembleResult builds the final record from the stage outputs.
func AssembleResult(rc *RunContext, elapsed time.Duration) any {
	res := Result{Entities: []entity.Entity{}}
	meta := ResultMetadata{
		SummaryMode:       rc.Config.SummaryMode,
		Backend:           rc.Config.Backend,
		ProcessingSeconds: elapsed.Seconds(),
	}

	if extracted, ok := rc.Output(StageExtract).(extract.Result); ok {
		meta.TextLength = len(extracted.Text)
		meta.PagesProcessed = extracted.PagesProcessed
		meta.TablesExtracted = len(extracted.Tables)
	}
	if entities, ok := rc.Output(StageEntities).([]entity.Entity); ok {
		res.Entities = entities
		meta.EntityCount = len(entities)
	}
	if sum, ok := rc.Output(StageSummarize).(SummaryOutput); ok {
		res.Summary = sum.Text
		meta.Model = sum.Model.Model
		meta.Backend = sum.Model.Backend
	}

	res.Metadata = meta
	return res
}
