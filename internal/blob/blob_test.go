package blob

import (
	"context"
	"testing"

	"entitygraph/internal/config"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		cfg  config.Blob
		want Driver
	}{
		{cfg: config.Blob{Driver: "memory"}, want: DriverMemory},
		{cfg: config.Blob{Driver: "fs", FSRoot: t.TempDir()}, want: DriverFilesystem},
		{cfg: config.Blob{Driver: "s3", S3Bucket: "graphs", S3Endpoint: "http://localhost:9000", S3PathStyle: true}, want: DriverS3},
	}
	for _, tc := range cases {
		store, err := Open(ctx, tc.cfg)
		if err != nil {
			t.Fatalf("Open(%+v): %v", tc.cfg, err)
		}
		if store.Driver() != tc.want {
			t.Fatalf("Open(%+v) driver = %s, want %s", tc.cfg, store.Driver(), tc.want)
		}
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, config.Blob{}); err == nil {
		t.Fatalf("expected error for missing driver")
	}
	if _, err := Open(ctx, config.Blob{Driver: "gcs"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
	if _, err := Open(ctx, config.Blob{Driver: "s3"}); err == nil {
		t.Fatalf("expected error for s3 without bucket")
	}
}
