package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStore_PutGetList(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "silver/b.csv", strings.NewReader("bee"), "text/csv"))
	require.NoError(t, s.Put(ctx, "silver/a.csv", strings.NewReader("ay"), "text/csv"))
	require.NoError(t, s.Put(ctx, "bronze/a.json", strings.NewReader("{}"), "application/json"))
	require.NoError(t, s.Put(ctx, "silver/a.csv", strings.NewReader("ay again"), "text/csv"))

	body, size, err := s.Get(ctx, "silver/a.csv")
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "ay again", string(data))
	assert.Equal(t, int64(8), size)

	keys, err := s.List(ctx, "silver/")
	require.NoError(t, err)
	assert.Equal(t, []string{"silver/a.csv", "silver/b.csv"}, keys)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFSStore_NotFound(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, _, err = s.Get(context.Background(), "bronze/missing.csv")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(context.Background(), Options{Driver: "gcs"})
	assert.Error(t, err)

	s, err := New(context.Background(), Options{Root: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, DriverFS, s.Driver())
}

func TestOpen_Gzip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err = gz.Write([]byte("code,payer\n99213,Aetna\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	compressed := int64(buf.Len())
	require.NoError(t, s.Put(ctx, "bronze/h.csv.gz", &buf, "application/gzip"))
	require.NoError(t, s.Put(ctx, "bronze/h.csv", strings.NewReader("plain"), "text/csv"))

	for _, std := range []bool{false, true} {
		var lastRead, lastTotal int64
		rc, err := Open(ctx, s, "bronze/h.csv.gz", std, func(read, total int64) {
			lastRead, lastTotal = read, total
		})
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())

		assert.Equal(t, "code,payer\n99213,Aetna\n", string(data))
		assert.Equal(t, compressed, lastRead)
		assert.Equal(t, compressed, lastTotal)
	}

	rc, err := Open(ctx, s, "bronze/h.csv", false, nil)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "plain", string(data))
}

func TestOpen_BadGzip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "bronze/h.json.gz", strings.NewReader("not gzip"), ""))

	_, err = Open(ctx, s, "bronze/h.json.gz", true, nil)
	assert.Error(t, err)
}
