// Package audiostore resolves catalog file paths into URLs an external
// transcription provider can fetch.
package audiostore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"lyrsync/pkg/audiostore/s3"
)

type resolver interface {
	URL(ctx context.Context, name string) (string, error)
}

type Store struct {
	resolver resolver
}

// AudioURL builds a fetchable URL for a catalog file path.
func (s *Store) AudioURL(ctx context.Context, filePath string) (string, error) {
	if filePath == "" {
		return "", fmt.Errorf("audiostore: empty file path")
	}
	return s.resolver.URL(ctx, filePath)
}

// New creates an audio store. Supported types are "base" (conn is a public
// base URL the path is joined to) and "s3" (conn is "key:secret@region/bucket",
// paths are resolved to presigned GET URLs).
func New(typ, conn string, debug bool) (*Store, error) {
	var r resolver
	switch typ {
	case "base":
		if conn == "" {
			return nil, fmt.Errorf("audiostore: base URL is required")
		}
		r = &baseResolver{base: strings.TrimSuffix(conn, "/")}
	case "s3":
		split := strings.Split(conn, "@")
		if len(split) != 2 {
			return nil, fmt.Errorf("audiostore: invalid s3 connection string %q", conn)
		}
		creds := strings.SplitN(split[0], ":", 2)
		if len(creds) != 2 {
			return nil, fmt.Errorf("audiostore: invalid s3 credentials in %q", conn)
		}
		loc := strings.SplitN(split[1], "/", 2)
		if len(loc) != 2 {
			return nil, fmt.Errorf("audiostore: invalid s3 region/bucket in %q", conn)
		}
		candidate, err := s3.New(creds[0], creds[1], loc[0], loc[1], debug)
		if err != nil {
			return nil, fmt.Errorf("audiostore: %w", err)
		}
		r = candidate
	default:
		return nil, fmt.Errorf("audiostore: unknown type %q", typ)
	}
	return &Store{resolver: r}, nil
}

type baseResolver struct {
	base string
}

func (b *baseResolver) URL(ctx context.Context, name string) (string, error) {
	escaped := url.PathEscape(strings.TrimPrefix(name, "/"))
	return fmt.Sprintf("%s/%s", b.base, escaped), nil
}
