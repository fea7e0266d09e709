// ABOUTME: Tests upload persistence, name sanitizing and S3 archiving
// ABOUTME: The S3 client is replaced by an in-memory recorder
package uploads

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveUsesUniquePrefix(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "uploads"), 0)

	a, err := s.Save("report.pdf", strings.NewReader("one"))
	require.NoError(t, err)
	b, err := s.Save("report.pdf", strings.NewReader("two"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasSuffix(a, "_report.pdf"))
	assert.Equal(t, s.Dir(), filepath.Dir(a))

	data, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestSaveRejectsOversizedUpload(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, 4)

	_, err := s.Save("big.pdf", strings.NewReader("12345"))
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial file should be removed")

	_, err = s.Save("ok.pdf", strings.NewReader("1234"))
	assert.NoError(t, err)
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"report.pdf":          "report.pdf",
		"../../etc/passwd":    "passwd",
		`C:\Users\me\q1.pdf`:  "q1.pdf",
		"":                    "upload.pdf",
		"..":                  "upload.pdf",
		"bad\x00name?.pdf":    "badname_.pdf",
		"  spaced name.pdf  ": "spaced name.pdf",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeName(in), "SanitizeName(%q)", in)
	}
}

type recordingS3 struct {
	key, bucket string
	body        string
	err         error
}

func (r *recordingS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.bucket = aws.ToString(in.Bucket)
	r.key = aws.ToString(in.Key)
	data, _ := io.ReadAll(in.Body)
	r.body = string(data)
	return &s3.PutObjectOutput{}, nil
}

func TestS3ArchiverArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abc_report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0644))

	rec := &recordingS3{}
	a := &S3Archiver{client: rec, bucket: "docs", prefix: "uploads/"}

	loc, err := a.Archive(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "s3://docs/uploads/abc_report.pdf", loc)
	assert.Equal(t, "docs", rec.bucket)
	assert.Equal(t, "uploads/abc_report.pdf", rec.key)
	assert.Equal(t, "%PDF-1.4", rec.body)
}

func TestS3ArchiverErrors(t *testing.T) {
	a := &S3Archiver{client: &recordingS3{err: errors.New("access denied")}, bucket: "docs"}

	_, err := a.Archive(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "x.pdf")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	_, err = a.Archive(context.Background(), path)
	assert.ErrorContains(t, err, "access denied")
}
