// Package pipeline runs one analysis: archive extraction, record reassembly,
// categorization, field extraction, report assembly, sink delivery and cleanup.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/therealutkarshpriyadarshi/rclog/internal/archive"
	"github.com/therealutkarshpriyadarshi/rclog/internal/artifact"
	"github.com/therealutkarshpriyadarshi/rclog/internal/categorize"
	"github.com/therealutkarshpriyadarshi/rclog/internal/config"
	"github.com/therealutkarshpriyadarshi/rclog/internal/disk"
	"github.com/therealutkarshpriyadarshi/rclog/internal/logging"
	"github.com/therealutkarshpriyadarshi/rclog/internal/metrics"
	"github.com/therealutkarshpriyadarshi/rclog/internal/output"
	"github.com/therealutkarshpriyadarshi/rclog/internal/parser"
	"github.com/therealutkarshpriyadarshi/rclog/internal/report"
	"github.com/therealutkarshpriyadarshi/rclog/internal/tracing"
	"github.com/therealutkarshpriyadarshi/rclog/pkg/types"
)

// Stage names, used as metric labels and span names
const (
	StageExtractArchive = "extract_archive"
	StageReassemble     = "reassemble"
	StageCategorize     = "categorize"
	StageExtractFields  = "extract_fields"
	StageReport         = "report"
	StageDisks          = "disks"
	StageDeliver        = "deliver"
	StageCleanup        = "cleanup"
)

// Options wires the collaborators of a pipeline; only Config is required
type Options struct {
	Config  *config.Config
	Logger  *logging.Logger
	Metrics *metrics.Collector
	Tracer  *tracing.Provider
	Router  *output.Router
	Now     func() time.Time
}

// Result describes a finished run
type Result struct {
	Archive    string // outer archive after any rename, empty for plain log input
	Report     string // empty when there was nothing to report
	Categories map[string]int
	Stats      types.RunStats
}

// Pipeline runs analyses with a fixed configuration
type Pipeline struct {
	config  *config.Config
	logger  *logging.Logger
	metrics *metrics.Collector
	tracer  *tracing.Provider
	router  *output.Router
	now     func() time.Time
}

// New creates a pipeline
func New(opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector()
	}
	if opts.Tracer == nil {
		opts.Tracer = tracing.Noop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Pipeline{
		config:  opts.Config,
		logger:  opts.Logger.WithComponent("pipeline"),
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
		router:  opts.Router,
		now:     opts.Now,
	}
}

// run carries the state of one analysis between stages
type run struct {
	inputs  config.InputsConfig
	logger  *logging.Logger
	store   *artifact.Store
	result  *Result
	layout  *archive.Layout
	logPath string
	pdlist  string
	records []types.LogicalRecord
	buckets *categorize.Buckets
	events  []types.CategorizedEvent
	book    *report.Workbook
}

// Run analyzes the configured inputs
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	return p.RunWith(ctx, p.config.Inputs)
}

// RunWith analyzes the given inputs with the pipeline's report settings
func (p *Pipeline) RunWith(ctx context.Context, inputs config.InputsConfig) (result *Result, err error) {
	cfg := p.config
	started := p.now()

	if inputs.WorkDir == "" {
		inputs.WorkDir = config.DefaultWorkDir
	}
	source := inputs.Archive
	if source == "" {
		source = inputs.IncrementalLog
	}

	ctx, span := p.tracer.StartRun(ctx, source, cfg.Report.Organization, cfg.Report.ChassisID)
	defer func() {
		tracing.End(span, err)
		p.finish(err)
	}()

	r := &run{
		inputs: inputs,
		logger: p.logger.WithRun(cfg.Report.Organization, cfg.Report.ChassisID),
		result: &Result{Categories: make(map[string]int)},
	}
	r.logger.Info().Str("source", source).Msg("Starting analysis")

	if cfg.Report.Purge {
		if err := archive.Purge(cfg.Report.OutputDir, inputs.WorkDir); err != nil {
			return nil, err
		}
		r.logger.Info().Msg("Purged previous run outputs")
	}

	r.store, err = artifact.NewStore(inputs.WorkDir, artifact.CompressionType(cfg.Intermediate.Compression))
	if err != nil {
		return nil, err
	}

	steps := []struct {
		name string
		fn   func(context.Context, *run) error
	}{
		{StageExtractArchive, p.resolveInputs},
		{StageReassemble, p.reassemble},
		{StageCategorize, p.categorize},
		{StageExtractFields, p.extractFields},
		{StageReport, p.assembleReport},
		{StageDisks, p.analyzeDisks},
	}
	for _, step := range steps {
		if err := p.stage(ctx, step.name, r, step.fn); err != nil {
			return nil, err
		}
	}

	// Sinks see the intermediates, so delivery happens before cleanup.
	// A delivery failure still cleans up, then fails the run.
	deliverErr := p.stage(ctx, StageDeliver, r, p.deliver)
	if err := p.stage(ctx, StageCleanup, r, p.cleanup); err != nil {
		return nil, err
	}
	if deliverErr != nil {
		return r.result, deliverErr
	}

	r.logger.Info().
		Str("report", r.result.Report).
		Int64("records", r.result.Stats.Records).
		Int64("events", r.result.Stats.Extracted).
		Int64("disks", r.result.Stats.Disks).
		Dur("duration", p.now().Sub(started)).
		Msg("Analysis complete")

	return r.result, nil
}

// stage runs one step inside its span and records its duration
func (p *Pipeline) stage(ctx context.Context, name string, r *run, fn func(context.Context, *run) error) error {
	start := time.Now()
	ctx, span := p.tracer.StartStage(ctx, name)
	err := fn(ctx, r)
	tracing.End(span, err)
	p.metrics.ObserveStage(name, start)
	return err
}

func (p *Pipeline) finish(err error) {
	p.metrics.RunFinished(err)

	if p.config.Metrics == nil || !p.config.Metrics.Enabled {
		return
	}
	if werr := p.metrics.WriteTextfile(p.config.Metrics.Textfile); werr != nil {
		p.logger.Warn().Err(werr).Str("path", p.config.Metrics.Textfile).Msg("Failed to write metrics textfile")
	}
}

// resolveInputs extracts the archive, if any, and settles which incremental
// log and pdlist the run reads
func (p *Pipeline) resolveInputs(ctx context.Context, r *run) error {
	r.logPath = r.inputs.IncrementalLog
	r.pdlist = r.inputs.PDList

	if r.inputs.Archive != "" {
		layout, err := archive.NewExtractor(r.inputs.WorkDir, r.inputs.Password, r.logger).Extract(r.inputs.Archive)
		if err != nil {
			return err
		}
		r.layout = layout
		r.result.Archive = layout.Archive
		if r.logPath == "" {
			r.logPath = layout.IncrementalLog
		}
		if r.pdlist == "" {
			r.pdlist = layout.PDList
		}
		tracing.SetAttributes(ctx, attribute.Int("archive.files", len(layout.Extracted)))
	}

	if r.logPath == "" {
		return fmt.Errorf("incremental log: %w", archive.ErrNotFound)
	}
	return nil
}

func (p *Pipeline) reassemble(ctx context.Context, r *run) error {
	lines, err := readLines(r.logPath)
	if err != nil {
		return err
	}
	p.metrics.LinesRead.Add(float64(len(lines)))
	r.result.Stats.Lines = int64(len(lines))

	var parserCfg *parser.Config
	if pc := p.config.Parser; pc != nil {
		parserCfg = &parser.Config{SequenceMarker: pc.SequenceMarker, LineSeparator: pc.LineSeparator}
	}

	r.records = parser.NewReassembler(parserCfg).Reassemble(lines)
	if len(r.records) == 0 {
		r.logger.Debug().Err(parser.ErrNoBoundaryMarker).Str("path", r.logPath).Msg("Log holds no records")
	}
	p.metrics.RecordsReassembled.Add(float64(len(r.records)))
	r.result.Stats.Records = int64(len(r.records))
	tracing.SetAttributes(ctx, attribute.Int("records", len(r.records)))

	path, err := r.store.WriteLog(r.logPath, parser.Render(r.records))
	if err != nil {
		return err
	}
	r.logger.Info().Int("lines", len(lines)).Int("records", len(r.records)).Str("path", path).Msg("Log reassembled")
	return nil
}

func (p *Pipeline) categorize(ctx context.Context, r *run) error {
	var categories []types.Category
	for _, c := range p.config.Report.Categories {
		categories = append(categories, types.Category{Name: c.Name, Keyword: c.Keyword})
	}

	r.buckets = categorize.New(categories, r.logger).Categorize(r.records)
	for _, name := range r.buckets.Names() {
		n := r.buckets.Len(name)
		r.result.Categories[name] = n
		p.metrics.RecordsCategorized.WithLabelValues(name).Add(float64(n))
	}
	return nil
}

// extractFields writes one artifact per category, empty categories included
func (p *Pipeline) extractFields(ctx context.Context, r *run) error {
	source := filepath.Base(r.logPath)

	for _, name := range r.buckets.Names() {
		r.logger.Info().Msgf("Looking for %s...", name)

		extractor := parser.NewExtractor()
		events := make([]types.ExtractedEvent, 0, r.buckets.Len(name))
		for _, rec := range r.buckets.Records(name) {
			for _, ev := range extractor.Extract(rec) {
				events = append(events, ev)
				r.events = append(r.events, types.CategorizedEvent{
					ExtractedEvent: ev,
					Category:       name,
					RecordIndex:    rec.Index,
					Source:         source,
					Organization:   p.config.Report.Organization,
					ChassisID:      p.config.Report.ChassisID,
				})
			}
		}

		if _, err := r.store.Write(name, events); err != nil {
			return err
		}

		p.metrics.EventsExtracted.WithLabelValues(name).Add(float64(len(events)))
		p.metrics.EventsDropped.Add(float64(extractor.Dropped()))
		r.result.Stats.Extracted += int64(len(events))
		r.result.Stats.Dropped += extractor.Dropped()
	}

	tracing.SetAttributes(ctx, attribute.Int64("events", r.result.Stats.Extracted))
	return nil
}

// assembleReport builds one sheet per non-empty category artifact and saves
func (p *Pipeline) assembleReport(ctx context.Context, r *run) error {
	r.book = report.NewWorkbook(r.logger)

	for _, name := range r.buckets.Names() {
		events, err := r.store.Read(name)
		if errors.Is(err, artifact.ErrEmptyArtifact) {
			r.logger.Debug().Str("category", name).Msg("No events, skipping sheet")
			continue
		}
		if err != nil {
			return err
		}
		r.book.Add(report.CategorySheet(name, events))
	}

	return p.persist(r)
}

func (p *Pipeline) analyzeDisks(ctx context.Context, r *run) error {
	if !p.config.Report.DiskAnalysis {
		return nil
	}
	if r.pdlist == "" {
		return fmt.Errorf("pdlist: %w", archive.ErrNotFound)
	}

	lines, err := readLines(r.pdlist)
	if err != nil {
		return err
	}

	disks, err := disk.ParseAll(lines)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(r.pdlist), err)
	}
	r.logger.Info().Int("disks", len(disks)).Msg("Disk parameters parsed")

	p.metrics.ObserveDisks(disks)
	r.result.Stats.Disks = int64(len(disks))
	tracing.SetAttributes(ctx, attribute.Int("disks", len(disks)))

	r.book.Add(report.DiskSummarySheet(disks))
	return p.persist(r)
}

// persist saves every sheet added so far; a workbook without sheets is not written
func (p *Pipeline) persist(r *run) error {
	if len(r.book.Sheets()) == 0 {
		r.logger.Warn().Msg("Nothing to report, no workbook written")
		return nil
	}

	dir := p.config.Report.OutputDir
	if dir == "" {
		dir = r.inputs.WorkDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, report.FileName(p.config.Report.Organization, p.config.Report.ChassisID, p.now()))
	if err := r.book.Persist(path); err != nil {
		return err
	}
	r.result.Report = path
	return nil
}

func (p *Pipeline) deliver(ctx context.Context, r *run) error {
	if p.router == nil || p.router.Empty() {
		return nil
	}

	var files []string
	if r.result.Report != "" {
		files = append(files, r.result.Report)
	}
	if s3 := p.config.Sinks.S3; s3 != nil && s3.UploadArtifacts {
		files = append(files, r.store.Written()...)
	}

	if err := p.router.Deliver(ctx, output.Delivery{Events: r.events, Files: files}); err != nil {
		r.logger.Error().Err(err).Msg("Delivery to sinks failed")
		return fmt.Errorf("failed to deliver results: %w", err)
	}
	r.logger.Info().Int("events", len(r.events)).Int("files", len(files)).Msg("Results delivered")
	return nil
}

func (p *Pipeline) cleanup(ctx context.Context, r *run) error {
	keep := p.config.Report.KeepIntermediate
	var files []string
	if r.layout != nil {
		files = append(files, r.layout.Intermediates()...)
	}
	files = append(files, r.store.Written()...)

	n, err := archive.Cleanup(r.inputs.WorkDir, files, keep)
	if err != nil {
		return err
	}
	if keep {
		r.logger.Info().Int("files", n).Str("dir", archive.TmpDirName).Msg("Intermediate files kept")
	} else {
		r.logger.Debug().Int("files", n).Msg("Intermediate files removed")
	}
	return nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return parser.ReadLines(f)
}
