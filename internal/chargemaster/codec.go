package chargemaster

import (
	"io"
	"path"
	"strings"

	"github.com/go-faster/errors"
)

// Format names a silver encoding.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatCSV, FormatParquet:
		return f, nil
	}
	return "", errors.Errorf("unknown silver format %q", s)
}

// Ext returns the file extension, with the dot, for f.
func (f Format) Ext() string { return "." + string(f) }

// ContentType is the MIME type stored alongside silver objects.
func (f Format) ContentType() string {
	if f == FormatParquet {
		return "application/vnd.apache.parquet"
	}
	return "text/csv"
}

// FormatForKey infers the silver encoding from a storage key.
func FormatForKey(key string) Format {
	if strings.EqualFold(path.Ext(key), ".parquet") {
		return FormatParquet
	}
	return FormatCSV
}

// Write encodes records in format f.
func Write(w io.Writer, f Format, records []Record) error {
	if f == FormatParquet {
		return WriteParquet(w, records)
	}
	return WriteCSV(w, records)
}

// Read decodes records in format f.
func Read(r io.Reader, f Format) ([]Record, error) {
	if f == FormatParquet {
		return ReadParquet(r)
	}
	return ReadCSV(r)
}
