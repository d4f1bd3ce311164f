package worker

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/gyeh/hospital-prices/internal/chargemaster"
	"github.com/gyeh/hospital-prices/internal/metrics"
	"github.com/gyeh/hospital-prices/internal/progress"
	"github.com/gyeh/hospital-prices/internal/storage"
	"github.com/gyeh/hospital-prices/internal/transform"
	"github.com/gyeh/hospital-prices/internal/warehouse"
)

// Loader writes canonical records for one file into the warehouse.
// *warehouse.Loader implements it.
type Loader interface {
	Load(ctx context.Context, fileName string, records []chargemaster.Record) (*warehouse.LoadResult, error)
}

// Pipeline moves files from the bronze area to the silver area and from
// the silver area into the warehouse.
type Pipeline struct {
	Store      storage.Store
	Dispatcher *transform.Dispatcher
	// Loader may be nil when only the transform stage runs.
	Loader  Loader
	Metrics *metrics.Metrics
	Log     logrus.FieldLogger

	SilverPrefix string
	SilverFormat chargemaster.Format
	UseStdGzip   bool
}

// PipelineResult holds the outcome of one file.
type PipelineResult struct {
	Key       string
	SilverKey string
	Format    transform.Format
	Records   int
	Stats     *transform.Stats
	Load      *warehouse.LoadResult
	// Skipped is set for files whose format is not supported. Err stays nil.
	Skipped bool
	Err     error
}

// StageFunc processes one key. Pool runs one per file.
type StageFunc func(ctx context.Context, key string, tracker progress.Tracker) *PipelineResult

// SilverKey maps a bronze key to the silver key its records are written to:
// same base name, compression dropped, extension replaced by the silver
// encoding's.
func (p *Pipeline) SilverKey(bronzeKey string) string {
	base := path.Base(transform.TrimCompression(bronzeKey))
	base = strings.TrimSuffix(base, path.Ext(base))
	return storage.Join(p.SilverPrefix, base+p.SilverFormat.Ext())
}

func (p *Pipeline) log() logrus.FieldLogger {
	if p.Log == nil {
		return logrus.StandardLogger()
	}
	return p.Log
}

// Transform reads a bronze file, transforms it and writes the silver file.
func (p *Pipeline) Transform(ctx context.Context, key string, tracker progress.Tracker) *PipelineResult {
	res, records := p.transform(ctx, key, tracker)
	if res.Err != nil || res.Skipped {
		return res
	}
	res.Err = p.writeSilver(ctx, res, records, tracker)
	return res
}

// Load reads a silver file and loads it into the warehouse.
func (p *Pipeline) Load(ctx context.Context, key string, tracker progress.Tracker) *PipelineResult {
	res := &PipelineResult{Key: key, SilverKey: key}

	tracker.SetStage("Reading silver")
	rc, err := storage.Open(ctx, p.Store, key, p.UseStdGzip, tracker.SetProgress)
	if err != nil {
		res.Err = errors.Wrap(err, "open silver")
		p.Metrics.File(metrics.StageLoad, metrics.OutcomeError, 0)
		return res
	}
	records, err := chargemaster.Read(rc, chargemaster.FormatForKey(transform.TrimCompression(key)))
	rc.Close()
	if err != nil {
		res.Err = errors.Wrapf(err, "decode %s", key)
		p.Metrics.File(metrics.StageLoad, metrics.OutcomeError, 0)
		return res
	}
	res.Records = len(records)

	p.load(ctx, res, path.Base(key), records, tracker)
	return res
}

// Run transforms a bronze file, writes the silver file and loads the
// records into the warehouse without re-reading them.
func (p *Pipeline) Run(ctx context.Context, key string, tracker progress.Tracker) *PipelineResult {
	res, records := p.transform(ctx, key, tracker)
	if res.Err != nil || res.Skipped {
		return res
	}
	if res.Err = p.writeSilver(ctx, res, records, tracker); res.Err != nil {
		return res
	}
	p.load(ctx, res, path.Base(key), records, tracker)
	return res
}

func (p *Pipeline) transform(ctx context.Context, key string, tracker progress.Tracker) (*PipelineResult, []chargemaster.Record) {
	res := &PipelineResult{Key: key}
	log := p.log().WithField("file", key)
	start := time.Now()

	tracker.SetStage("Transforming")
	rc, err := storage.Open(ctx, p.Store, key, p.UseStdGzip, tracker.SetProgress)
	if err != nil {
		res.Err = errors.Wrap(err, "open bronze")
		p.Metrics.File(metrics.StageTransform, metrics.OutcomeError, time.Since(start))
		return res, nil
	}
	defer rc.Close()

	d := *p.Dispatcher
	d.Log = log
	d.OnRows = func(n int64) { tracker.SetCounter("rows", n) }

	out, err := d.Transform(ctx, key, rc)
	if errors.Is(err, transform.ErrUnsupportedFormat) {
		log.Warn("unsupported file format, skipping")
		res.Skipped = true
		tracker.SetStage("Skipped (unsupported format)")
		p.Metrics.File(metrics.StageTransform, metrics.OutcomeUnsupported, time.Since(start))
		return res, nil
	}
	if err != nil {
		res.Err = errors.Wrap(err, "transform")
		p.Metrics.File(metrics.StageTransform, metrics.OutcomeError, time.Since(start))
		return res, nil
	}

	res.Format = out.Format
	res.Records = len(out.Records)
	res.Stats = &out.Stats
	p.Metrics.Records(string(out.Format), len(out.Records))
	p.Metrics.RowsDropped("duplicate", out.Stats.Duplicates)
	if v := out.Stats.Validation; v != nil {
		p.Metrics.RowsDropped("invalid_json_row", v.Dropped)
	}
	p.Metrics.File(metrics.StageTransform, metrics.OutcomeOK, time.Since(start))

	log.WithFields(logrus.Fields{
		"format":     out.Format,
		"rows":       out.Stats.RowsRead,
		"chunks":     out.Stats.Chunks,
		"records":    out.Stats.Records,
		"duplicates": out.Stats.Duplicates,
	}).Info("transformed")
	return res, out.Records
}

func (p *Pipeline) writeSilver(ctx context.Context, res *PipelineResult, records []chargemaster.Record, tracker progress.Tracker) error {
	res.SilverKey = p.SilverKey(res.Key)
	tracker.SetStage("Writing " + res.SilverKey)

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(chargemaster.Write(pw, p.SilverFormat, records))
	}()
	if err := p.Store.Put(ctx, res.SilverKey, pr, p.SilverFormat.ContentType()); err != nil {
		pr.CloseWithError(err)
		return errors.Wrapf(err, "write %s", res.SilverKey)
	}
	return nil
}

func (p *Pipeline) load(ctx context.Context, res *PipelineResult, fileName string, records []chargemaster.Record, tracker progress.Tracker) {
	if p.Loader == nil {
		res.Err = errors.New("no warehouse configured")
		return
	}
	start := time.Now()
	tracker.SetStage("Loading")

	lr, err := p.Loader.Load(ctx, fileName, records)
	if err != nil {
		res.Err = errors.Wrap(err, "load")
		p.Metrics.File(metrics.StageLoad, metrics.OutcomeError, time.Since(start))
		return
	}
	res.Load = lr
	if lr.AlreadyLoaded {
		tracker.SetStage("Skipped (already loaded)")
		p.Metrics.File(metrics.StageLoad, metrics.OutcomeSkipped, time.Since(start))
		return
	}

	p.Metrics.DimensionInserts("payer", lr.Inserted.Payers)
	p.Metrics.DimensionInserts("plan", lr.Inserted.Plans)
	p.Metrics.DimensionInserts("code", lr.Inserted.Codes)
	p.Metrics.FactsLoaded(lr.Facts)
	for reason, n := range lr.Unresolved {
		p.Metrics.RowsDropped("unresolved_"+reason, n)
	}
	p.Metrics.File(metrics.StageLoad, metrics.OutcomeOK, time.Since(start))
	tracker.SetCounter("facts", lr.Facts)
}
