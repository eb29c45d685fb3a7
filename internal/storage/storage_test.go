package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStorePut(t *testing.T) {
	dir := t.TempDir()
	s := NewDiskStore(dir, "http://localhost:8080/files/")

	obj, err := s.Put(context.Background(), "reports/abc/report.pdf", "application/pdf", []byte("%PDF-1.3"))
	require.NoError(t, err)

	assert.Equal(t, "reports/abc/report.pdf", obj.Key)
	assert.Equal(t, "http://localhost:8080/files/reports/abc/report.pdf", obj.URL)
	assert.EqualValues(t, 8, obj.Size)

	data, err := os.ReadFile(filepath.Join(dir, "reports", "abc", "report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.3", string(data))
}

func TestDiskStoreKeepsKeysInsideDir(t *testing.T) {
	dir := t.TempDir()
	s := NewDiskStore(dir, "http://x")

	obj, err := s.Put(context.Background(), "../../etc/passwd", "text/plain", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "etc/passwd", obj.Key)

	_, err = s.Put(context.Background(), "/", "text/plain", []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestS3URL(t *testing.T) {
	assert.Equal(t, "s3://bucket/reports/a.pdf", NewS3Store(nil, "bucket", "").url("reports/a.pdf"))
	assert.Equal(t, "https://cdn.example/reports/a.pdf", NewS3Store(nil, "bucket", "https://cdn.example/").url("reports/a.pdf"))
}
