package transform

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"path"
	"strings"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gyeh/hospital-prices/internal/chargemaster"
)

// Format is the source layout a file was read as.
type Format string

const (
	FormatWide Format = "wide"
	FormatLong Format = "long"
	FormatJSON Format = "json"
)

// ErrUnsupportedFormat is returned for files that are neither CSV nor JSON.
var ErrUnsupportedFormat = errors.New("unsupported file format")

const (
	DefaultChunkSize     = 50_000
	DefaultWideThreshold = 30

	// metadataLines precede the column header in CMS CSV templates.
	metadataLines = 2
)

// Dispatcher picks a transformer for each file and runs it. CSV input is
// read in chunks of ChunkSize rows, transformed on up to Workers goroutines
// and reassembled in file order.
type Dispatcher struct {
	ChunkSize     int
	WideThreshold int
	Workers       int
	JSON          JSONOptions
	Log           logrus.FieldLogger

	// OnRows, if set, is called with the running count of source rows read.
	OnRows func(rows int64)
}

// Stats describes one Transform call.
type Stats struct {
	RowsRead   int64
	Chunks     int
	Records    int
	Duplicates int
	Validation *ValidationReport
}

// Result is the canonical output for one file.
type Result struct {
	Format  Format
	Records []chargemaster.Record
	Stats   Stats
}

// TrimCompression returns name without a trailing ".gz".
func TrimCompression(name string) string {
	if strings.EqualFold(path.Ext(name), ".gz") {
		return name[:len(name)-3]
	}
	return name
}

// Transform reads one raw file. name is used only for format detection.
func (d *Dispatcher) Transform(ctx context.Context, name string, r io.Reader) (*Result, error) {
	switch strings.ToLower(path.Ext(TrimCompression(name))) {
	case ".json":
		return d.transformJSON(r)
	case ".csv":
		return d.transformCSV(ctx, r)
	}
	return nil, errors.Wrapf(ErrUnsupportedFormat, "%s", name)
}

func (d *Dispatcher) log() logrus.FieldLogger {
	if d.Log == nil {
		return logrus.StandardLogger()
	}
	return d.Log
}

func (d *Dispatcher) transformJSON(r io.Reader) (*Result, error) {
	records, report, err := TransformJSON(r, d.JSON)
	if report != nil && report.Dropped > 0 {
		d.log().WithFields(logrus.Fields{
			"rows":    report.Rows,
			"dropped": report.Dropped,
			"missing": report.MissingByField,
		}).Warn("json rows failed validation")
	}
	if err != nil {
		return nil, err
	}

	res := &Result{Format: FormatJSON, Stats: Stats{RowsRead: int64(report.Rows), Chunks: 1, Validation: report}}
	d.finish(res, records)
	return res, nil
}

func (d *Dispatcher) transformCSV(ctx context.Context, r io.Reader) (*Result, error) {
	chunkSize, threshold, workers := d.ChunkSize, d.WideThreshold, d.Workers
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if threshold <= 0 {
		threshold = DefaultWideThreshold
	}
	if workers <= 0 {
		workers = 1
	}

	cr := csv.NewReader(bufio.NewReaderSize(r, 1<<20))
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	for i := 0; i < metadataLines; i++ {
		if _, err := cr.Read(); err != nil {
			if err == io.EOF {
				return nil, errors.New("csv ends before column header")
			}
			return nil, errors.Wrapf(err, "read metadata line %d", i+1)
		}
	}
	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read column header")
	}
	for i, h := range header {
		header[i] = normalizeHeader(h)
	}

	format, transformChunk := FormatLong, TransformLong
	if len(header) > threshold {
		format, transformChunk = FormatWide, TransformWide
	}
	d.log().WithFields(logrus.Fields{"format": format, "columns": len(header)}).Debug("detected csv layout")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var (
		chunks   []*[]chargemaster.Record
		rowsRead int64
		eof      bool
	)
	for !eof {
		if err := gctx.Err(); err != nil {
			break
		}

		rows := make([][]string, 0, min(chunkSize, 4096))
		for len(rows) < chunkSize {
			row, err := cr.Read()
			if err == io.EOF {
				eof = true
				break
			}
			if err != nil {
				g.Wait()
				return nil, errors.Wrapf(err, "read row %d", rowsRead+int64(len(rows))+1)
			}
			rows = append(rows, row)
		}
		if len(rows) == 0 {
			break
		}
		rowsRead += int64(len(rows))
		if d.OnRows != nil {
			d.OnRows(rowsRead)
		}

		out := new([]chargemaster.Record)
		chunks = append(chunks, out)
		g.Go(func() error {
			*out = transformChunk(header, rows)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []chargemaster.Record
	for _, c := range chunks {
		records = append(records, *c...)
	}

	res := &Result{Format: format, Stats: Stats{RowsRead: rowsRead, Chunks: len(chunks)}}
	d.finish(res, records)
	return res, nil
}

func (d *Dispatcher) finish(res *Result, records []chargemaster.Record) {
	before := len(records)
	res.Records = DedupeRecords(records)
	res.Stats.Records = len(res.Records)
	res.Stats.Duplicates = before - len(res.Records)
}

// normalizeHeader trims whitespace around each pipe-separated segment and
// strips a UTF-8 byte order mark.
func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	parts := strings.Split(h, "|")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, "|")
}
