// Package storage reads and removes uploaded source files.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var ErrUnsupportedLocation = errors.New("unsupported file location")

// DefaultMaxFileSize caps a single download.
const DefaultMaxFileSize = 100 << 20

type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Store resolves file URLs of the form s3://bucket/key, S3 virtual-hosted
// https URLs, or any other http(s) URL (read only).
type Store struct {
	s3          S3API
	httpClient  *http.Client
	maxFileSize int64
}

func NewStore(client S3API) *Store {
	return &Store{
		s3:          client,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		maxFileSize: DefaultMaxFileSize,
	}
}

type objectRef struct {
	bucket string
	key    string
}

func parseS3(fileURL string) (*objectRef, bool) {
	u, err := url.Parse(fileURL)
	if err != nil {
		return nil, false
	}
	switch u.Scheme {
	case "s3":
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return nil, false
		}
		return &objectRef{bucket: u.Host, key: key}, true
	case "https":
		// <bucket>.s3.<region>.amazonaws.com/<key> or <bucket>.s3.amazonaws.com/<key>
		host := u.Hostname()
		idx := strings.Index(host, ".s3.")
		if idx <= 0 || !strings.HasSuffix(host, ".amazonaws.com") {
			return nil, false
		}
		key := strings.TrimPrefix(u.Path, "/")
		if key == "" {
			return nil, false
		}
		return &objectRef{bucket: host[:idx], key: key}, true
	}
	return nil, false
}

func (s *Store) Download(ctx context.Context, fileURL string) ([]byte, error) {
	if ref, ok := parseS3(fileURL); ok && s.s3 != nil {
		out, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(ref.bucket),
			Key:    aws.String(ref.key),
		})
		if err != nil {
			return nil, fmt.Errorf("get object %s/%s: %w", ref.bucket, ref.key, err)
		}
		defer out.Body.Close()
		return s.readAll(out.Body)
	}

	u, err := url.Parse(fileURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLocation, fileURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download %s: status %d", u.Redacted(), resp.StatusCode)
	}
	return s.readAll(resp.Body)
}

func (s *Store) readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxFileSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.maxFileSize {
		return nil, fmt.Errorf("file exceeds %d bytes", s.maxFileSize)
	}
	return data, nil
}

// Delete removes an S3-backed file. Other locations cannot be deleted.
func (s *Store) Delete(ctx context.Context, fileURL string) error {
	ref, ok := parseS3(fileURL)
	if !ok || s.s3 == nil {
		return fmt.Errorf("%w: %s", ErrUnsupportedLocation, fileURL)
	}
	_, err := s.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(ref.bucket),
		Key:    aws.String(ref.key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s/%s: %w", ref.bucket, ref.key, err)
	}
	return nil
}
