package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	_ "github.com/viant/afsc/gs"
	_ "github.com/viant/afsc/s3"

	"antbot/internal/domain"
)

// Object describes a stored manual file.
type Object struct {
	Name    string
	URL     string
	Size    int64
	ModTime time.Time
}

// SizeMB returns the object size in mebibytes.
func (o Object) SizeMB() float64 { return float64(o.Size) / (1024 * 1024) }

// BlobStore keeps documents in containers under a base storage URL
// (file://, mem://, gs:// or s3://). A container maps to a folder under the base URL.
type BlobStore struct {
	baseURL string
	fs      afs.Service
}

func NewBlobStore(baseURL string) (*BlobStore, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("storage base URL is empty")
	}
	return &BlobStore{baseURL: strings.TrimRight(baseURL, "/"), fs: afs.New()}, nil
}

// Fetch downloads an object. A missing object yields an error wrapping domain.ErrNotFound.
func (s *BlobStore) Fetch(ctx context.Context, container, object string) ([]byte, error) {
	URL := s.objectURL(container, object)
	exists, err := s.fs.Exists(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", URL, err)
	}
	if !exists {
		return nil, fmt.Errorf("%s in container %s: %w", object, container, domain.ErrNotFound)
	}
	data, err := s.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", URL, err)
	}
	return data, nil
}

// Upload writes r as container/object, creating the container when absent and overwriting any existing object.
func (s *BlobStore) Upload(ctx context.Context, container, object string, r io.Reader) (*Object, error) {
	if err := s.ensureContainer(ctx, container); err != nil {
		return nil, err
	}
	URL := s.objectURL(container, object)
	// some backends (mem://) do not record the size of streamed uploads
	counter := &countingReader{r: r}
	if err := s.fs.Upload(ctx, URL, file.DefaultFileOsMode, counter); err != nil {
		return nil, fmt.Errorf("upload %s: %w", URL, err)
	}
	obj := &Object{Name: object, URL: URL, Size: counter.n, ModTime: time.Now()}
	if info, err := s.fs.Object(ctx, URL); err == nil {
		obj.ModTime = info.ModTime()
	}
	return obj, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// List returns the files stored directly in container.
func (s *BlobStore) List(ctx context.Context, container string) ([]Object, error) {
	URL := s.containerURL(container)
	exists, err := s.fs.Exists(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", URL, err)
	}
	if !exists {
		return nil, fmt.Errorf("container %s: %w", container, domain.ErrNotFound)
	}
	objects, err := s.fs.List(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", URL, err)
	}
	var out []Object
	for _, o := range objects {
		if o.IsDir() {
			continue
		}
		out = append(out, Object{Name: o.Name(), URL: o.URL(), Size: o.Size(), ModTime: o.ModTime()})
	}
	return out, nil
}

func (s *BlobStore) ensureContainer(ctx context.Context, container string) error {
	URL := s.containerURL(container)
	exists, err := s.fs.Exists(ctx, URL)
	if err != nil {
		return fmt.Errorf("check %s: %w", URL, err)
	}
	if exists {
		return nil
	}
	if err := s.fs.Create(ctx, URL, file.DefaultDirOsMode, true); err != nil {
		return fmt.Errorf("create container %s: %w", container, err)
	}
	return nil
}

func (s *BlobStore) containerURL(container string) string {
	return url.Join(s.baseURL, container)
}

func (s *BlobStore) objectURL(container, object string) string {
	return url.Join(s.containerURL(container), object)
}
