package chargemaster

import (
	"bytes"
	"io"

	"github.com/go-faster/errors"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

const parquetReadBatch = 4096

// WriteParquet writes records as a zstd-compressed Parquet file.
func WriteParquet(w io.Writer, records []Record) error {
	writer := parquet.NewGenericWriter[Record](w,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedDefault}),
		parquet.DataPageStatistics(true),
		parquet.CreatedBy("hospital-prices", "1.0", ""),
	)
	if _, err := writer.Write(records); err != nil {
		writer.Close()
		return errors.Wrap(err, "write parquet rows")
	}
	if err := writer.Close(); err != nil {
		return errors.Wrap(err, "close parquet writer")
	}
	return nil
}

// ReadParquet reads a Parquet file written by WriteParquet. The whole input
// is buffered because the Parquet footer must be read first.
func ReadParquet(r io.Reader) ([]Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read parquet")
	}

	reader := parquet.NewGenericReader[Record](bytes.NewReader(data))
	defer reader.Close()

	records := make([]Record, 0, reader.NumRows())
	for {
		buf := make([]Record, parquetReadBatch)
		n, readErr := reader.Read(buf)
		records = append(records, buf[:n]...)
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return nil, errors.Wrap(readErr, "read parquet rows")
		}
	}
	return records, nil
}
