package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jmylchreest/sitesift/internal/config"
	"github.com/jmylchreest/sitesift/internal/logging"
)

func TestExportName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/products/list", "scraped_data_example.com_products_list.txt"},
		{"http://example.com/", "scraped_data_example.com_.txt"},
		{"example.com", "scraped_data_example.com.txt"},
		{"https://example.com:8443/a?b=c", "scraped_data_example.com_8443_a_b=c.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := ExportName(tt.url); got != tt.want {
				t.Errorf("ExportName(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestLocalExporter_Export(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	e := NewLocalExporter(dir)

	loc, err := e.Export(context.Background(), "out.txt", "hello")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if loc != filepath.Join(dir, "out.txt") {
		t.Errorf("location = %q", loc)
	}
	data, err := os.ReadFile(loc)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q, want hello", data)
	}

	if _, err := e.Export(context.Background(), "out.txt", "again"); err != nil {
		t.Fatalf("overwrite Export() error = %v", err)
	}
	data, _ = os.ReadFile(loc)
	if string(data) != "again" {
		t.Errorf("content after overwrite = %q", data)
	}
}

func TestLocalExporter_RejectsPaths(t *testing.T) {
	e := NewLocalExporter(t.TempDir())
	for _, name := range []string{"", "../escape.txt", "sub/dir.txt"} {
		if _, err := e.Export(context.Background(), name, "x"); err == nil {
			t.Errorf("Export(%q) error = nil, want error", name)
		}
	}
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, f.err
}

func TestS3Exporter_Export(t *testing.T) {
	fake := &fakeS3{}
	e := &S3Exporter{client: fake, bucket: "results-bucket", logger: logging.Discard()}

	loc, err := e.Export(context.Background(), "scraped_data_example.com.txt", "content")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if loc != "s3://results-bucket/results/scraped_data_example.com.txt" {
		t.Errorf("location = %q", loc)
	}
	if aws.ToString(fake.input.Key) != "results/scraped_data_example.com.txt" {
		t.Errorf("Key = %q", aws.ToString(fake.input.Key))
	}
	if aws.ToString(fake.input.Bucket) != "results-bucket" {
		t.Errorf("Bucket = %q", aws.ToString(fake.input.Bucket))
	}
	if aws.ToString(fake.input.ContentType) != "text/plain; charset=utf-8" {
		t.Errorf("ContentType = %q", aws.ToString(fake.input.ContentType))
	}
	if fake.body != "content" {
		t.Errorf("body = %q", fake.body)
	}
}

func TestS3Exporter_Error(t *testing.T) {
	e := &S3Exporter{client: &fakeS3{err: errors.New("denied")}, bucket: "b", logger: logging.Discard()}
	if _, err := e.Export(context.Background(), "x.txt", "c"); err == nil {
		t.Error("Export() error = nil, want error")
	}
}

func TestNew_DefaultsToLocal(t *testing.T) {
	cfg := config.Default()
	cfg.ExportDir = t.TempDir()

	e, err := New(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := e.(*LocalExporter); !ok {
		t.Errorf("New() = %T, want *LocalExporter", e)
	}
}
