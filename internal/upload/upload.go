// Package upload copies a downloaded archive into object storage.
package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/kebairia/cloudbak/internal/logger"
)

// Result reports what was written.
type Result struct {
	Bucket string
	Object string
	Bytes  int64
}

// BlobSink uploads files to any bucket URL gocloud understands (s3://, gs://, file://).
type BlobSink struct {
	log logger.Logger
}

// NewBlobSink returns a sink that logs through log.
func NewBlobSink(log logger.Logger) *BlobSink {
	if log == nil {
		log = logger.Nop()
	}
	return &BlobSink{log: log}
}

// BucketURL turns a bare bucket name into an s3:// URL and leaves URLs alone.
func BucketURL(bucket string) string {
	if strings.Contains(bucket, "://") {
		return bucket
	}
	return "s3://" + bucket
}

// Upload writes the file at path to bucket under object. A failed copy aborts the write so
// no partial object is left behind.
func (s *BlobSink) Upload(ctx context.Context, path, bucket, object string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Result{}, fmt.Errorf("stat %s: %w", path, err)
	}

	url := BucketURL(bucket)
	bkt, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return Result{}, fmt.Errorf("open bucket %s: %w", url, err)
	}
	defer bkt.Close()

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w, err := bkt.NewWriter(wctx, object, &blob.WriterOptions{ContentType: "application/zip"})
	if err != nil {
		return Result{}, fmt.Errorf("open writer %s: %w", object, err)
	}

	s.log.Info("uploading backup file", "bucket", url, "object", object, "size", humanize.Bytes(uint64(info.Size())))
	pr := &progressReader{r: f, total: info.Size(), log: s.log, last: -1}
	n, err := io.Copy(w, pr)
	if err != nil {
		cancel()
		_ = w.Close()
		return Result{}, fmt.Errorf("upload %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return Result{}, fmt.Errorf("finish upload %s: %w", object, err)
	}

	s.log.Info("upload complete", "bucket", url, "object", object)
	return Result{Bucket: url, Object: object, Bytes: n}, nil
}

// progressReader counts bytes as they pass and logs each tenth of the total.
type progressReader struct {
	r     io.Reader
	total int64
	log   logger.Logger

	mu   sync.Mutex
	seen int64
	last int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.add(int64(n))
	}
	return n, err
}

func (p *progressReader) add(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen += n
	if p.total <= 0 {
		return
	}
	step := p.seen * 10 / p.total
	if step == p.last {
		return
	}
	p.last = step
	p.log.Info("upload progress", "percent", step*10, "sent", humanize.Bytes(uint64(p.seen)))
}
