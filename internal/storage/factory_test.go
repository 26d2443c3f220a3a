package storage

import (
	"context"
	"testing"

	"pdfbot/internal/adapters/storage/s3"
	"pdfbot/internal/pkg/errors"
)

func TestNewPlugin(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		cfg      Config
		wantName string
		wantCode errors.Code
	}{
		{"default local", Config{PDFDir: t.TempDir()}, "local", ""},
		{"local without dir", Config{Provider: "local"}, "", errors.CodeConfiguration},
		{"s3", Config{Provider: "s3", S3: s3.Config{AccessKeyID: "a", SecretAccessKey: "b", Region: "us-east-1", Bucket: "c"}}, "s3", ""},
		{"s3 missing bucket", Config{Provider: "s3", S3: s3.Config{AccessKeyID: "a", SecretAccessKey: "b", Region: "us-east-1"}}, "", errors.CodeConfiguration},
		{"gdrive missing token", Config{Provider: "gdrive"}, "", errors.CodeConfiguration},
		{"unknown", Config{Provider: "ftp"}, "", errors.CodeConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPlugin(ctx, tt.cfg)
			if tt.wantCode != "" {
				if !errors.IsCode(err, tt.wantCode) {
					t.Fatalf("expected %s, got %v", tt.wantCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewPlugin() error = %v", err)
			}
			if p.Name() != tt.wantName {
				t.Errorf("Name() = %s, want %s", p.Name(), tt.wantName)
			}
		})
	}
}
