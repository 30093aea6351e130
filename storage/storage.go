// Package storage keeps the files attached to inbound emails
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Store saves attachment bodies and returns the url they can be downloaded from
type Store interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (url string, err error)
}

// Key returns the object key for an attachment received at t. Files are grouped by year and month and
// a random prefix keeps two attachments with the same name apart.
func Key(t time.Time, filename string) string {
	name := path.Base(strings.Replace(filename, "\\", "/", -1))
	if name == "." || name == "/" || name == "" {
		name = "attachment"
	}

	return fmt.Sprintf("%s/%s/%s", t.UTC().Format("2006/01"), uuid.Must(uuid.NewRandom()).String(), name)
}

type uploader interface {
	UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

// S3 stores attachments in an S3 bucket
type S3 struct {
	up     uploader
	bucket string
}

var _ Store = &S3{}

// NewS3 returns an S3 store using the default credential chain
func NewS3(bucket string) *S3 {
	awsSession := session.Must(session.NewSession())

	return &S3{
		up:     s3manager.NewUploader(awsSession),
		bucket: bucket,
	}
}

// Put uploads body under key
func (s *S3) Put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	in := &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	out, err := s.up.UploadWithContext(ctx, in)
	if err != nil {
		return "", errors.Wrapf(err, "S3: failed to upload %v", key)
	}

	return out.Location, nil
}

type object struct {
	contentType string
	body        []byte
}

// Memory keeps attachments in process. It's used when no bucket is configured.
type Memory struct {
	baseURL string
	objects map[string]object
	m       sync.RWMutex
}

var _ Store = &Memory{}

// NewMemory returns a Memory store whose urls start with baseURL
func NewMemory(baseURL string) *Memory {
	return &Memory{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		objects: make(map[string]object),
	}
}

// Put reads body into memory
func (mem *Memory) Put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	b, err := ioutil.ReadAll(body)
	if err != nil {
		return "", errors.Wrapf(err, "Memory: failed to read %v", key)
	}

	mem.m.Lock()
	defer mem.m.Unlock()

	mem.objects[key] = object{contentType: contentType, body: b}
	return mem.baseURL + "/" + key, nil
}

// Get returns a stored object
func (mem *Memory) Get(key string) (contentType string, body io.Reader, ok bool) {
	mem.m.RLock()
	defer mem.m.RUnlock()

	o, ok := mem.objects[key]
	if !ok {
		return "", nil, false
	}

	return o.contentType, bytes.NewReader(o.body), true
}

// ServeHTTP serves stored objects by key, with the request path relative to where the handler is mounted
func (mem *Memory) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ct, body, ok := mem.Get(strings.TrimPrefix(r.URL.Path, "/"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	if ct != "" {
		w.Header().Set("Content-Type", ct)
	}

	_, _ = io.Copy(w, body)
}
