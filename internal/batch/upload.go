package batch

import (
	"bytes"
	"context"
	"io"
	"path"
	"strconv"
	"strings"

	"lessonjudge/internal/common/storage"
	appErr "lessonjudge/pkg/errors"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression names accepted by UploadConfig.
const (
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
)

// UploadConfig controls report artifact uploads.
type UploadConfig struct {
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix"`
	Compression string `yaml:"compression"`
}

// Uploader stores compressed report copies in object storage.
type Uploader struct {
	store storage.ObjectStorage
	cfg   UploadConfig
}

// NewUploader creates an uploader. Compression defaults to gzip.
func NewUploader(store storage.ObjectStorage, cfg UploadConfig) (*Uploader, error) {
	if store == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("object storage is required")
	}
	if cfg.Bucket == "" {
		return nil, appErr.ValidationError("bucket", "required")
	}
	cfg.Compression = strings.ToLower(cfg.Compression)
	switch cfg.Compression {
	case "":
		cfg.Compression = CompressionGzip
	case CompressionGzip, CompressionZstd:
	default:
		return nil, appErr.Newf(appErr.InvalidParams, "unsupported compression %q", cfg.Compression)
	}
	return &Uploader{store: store, cfg: cfg}, nil
}

// ObjectKey names the artifact for rep.
func (u *Uploader) ObjectKey(rep *Report) string {
	ext := ".json.gz"
	if u.cfg.Compression == CompressionZstd {
		ext = ".json.zst"
	}
	name := rep.Timestamp.Format("20060102T150405Z") + "-" + uuid.NewString() + ext
	return path.Join(u.cfg.Prefix, name)
}

// Upload compresses rep and stores it, returning the object key.
func (u *Uploader) Upload(ctx context.Context, rep *Report) (string, error) {
	data, err := rep.Marshal()
	if err != nil {
		return "", err
	}
	body, err := compress(u.cfg.Compression, data)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.ReportUploadFailed, "compress report")
	}
	if err := u.store.EnsureBucket(ctx, u.cfg.Bucket); err != nil {
		return "", appErr.Wrapf(err, appErr.ReportUploadFailed, "ensure bucket %s", u.cfg.Bucket)
	}
	key := u.ObjectKey(rep)
	err = u.store.PutObject(ctx, u.cfg.Bucket, key, bytes.NewReader(body), int64(len(body)), storage.PutOptions{
		ContentType:     "application/json",
		ContentEncoding: u.cfg.Compression,
		Metadata: map[string]string{
			"total-steps":  strconv.Itoa(rep.Summary.TotalSteps),
			"failed-steps": strconv.Itoa(rep.Summary.FailedSteps),
		},
	})
	if err != nil {
		return "", appErr.Wrapf(err, appErr.ReportUploadFailed, "upload report %s", key)
	}
	return key, nil
}

func compress(kind string, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	var w io.WriteCloser
	switch kind {
	case CompressionZstd:
		enc, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		w = enc
	default:
		w = gzip.NewWriter(&buf)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress reverses the artifact encoding.
func Decompress(kind string, r io.Reader) ([]byte, error) {
	switch kind {
	case CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return io.ReadAll(dec)
	default:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	}
}
