package storage

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Location addresses a manifest file: a local path, or an object in a
// MinIO/S3 bucket written as s3://bucket/key.
type Location struct {
	Bucket string
	Key    string // object key, or the file path for local locations
	Remote bool
}

// ParseLocation parses a local path, a file:// URL or an s3:// URL.
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, wrapError(CodeInvalidLocation, false, fmt.Errorf("location is empty"))
	}

	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return Location{Key: filepath.Clean(raw)}, nil
	}
	switch strings.ToLower(scheme) {
	case "file":
		u, err := url.Parse(raw)
		if err != nil || u.Path == "" {
			return Location{}, wrapError(CodeInvalidLocation, false, fmt.Errorf("invalid file location %q", raw))
		}
		return Location{Key: filepath.Clean(filepath.FromSlash(u.Path))}, nil
	case "s3":
		bucket, key, _ := strings.Cut(rest, "/")
		key = strings.Trim(key, "/")
		if bucket == "" || key == "" {
			return Location{}, wrapError(CodeInvalidLocation, false,
				fmt.Errorf("s3 location %q needs a bucket and a key", raw))
		}
		return Location{Bucket: bucket, Key: key, Remote: true}, nil
	}
	return Location{}, wrapError(CodeInvalidLocation, false, fmt.Errorf("unsupported location scheme %q", scheme))
}

func (l Location) String() string {
	if l.Remote {
		return "s3://" + l.Bucket + "/" + l.Key
	}
	return l.Key
}
