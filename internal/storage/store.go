// Package storage loads and saves tabular manifests on the local file
// system or in a MinIO/S3 bucket.
package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/04d4/spinta/internal/core"
	"github.com/04d4/spinta/internal/manifest"
	"github.com/04d4/spinta/internal/manifest/tabular"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 200 * time.Millisecond
)

// Store reads and writes manifests at Locations.
type Store struct {
	remote  ObjectStore
	log     logrus.FieldLogger
	backoff time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithRemote sets the object store used for s3:// locations.
func WithRemote(store ObjectStore) Option {
	return func(s *Store) { s.remote = store }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Store) { s.log = log }
}

// WithBackoff sets the initial wait between retried object store calls.
func WithBackoff(d time.Duration) Option {
	return func(s *Store) { s.backoff = d }
}

func New(opts ...Option) *Store {
	s := &Store{backoff: defaultBackoff}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		s.log = l
	}
	return s
}

// Load reads and parses the manifest at loc. Row diagnostics are returned
// together with a validation error when the file has invalid rows.
func (s *Store) Load(ctx context.Context, loc Location) (*manifest.Manifest, core.Diagnostics, error) {
	objects, bucket, key, err := s.objects(loc)
	if err != nil {
		return nil, nil, err
	}
	data, err := retry(ctx, s, "get", func() ([]byte, error) {
		return objects.GetObject(ctx, bucket, key)
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.WithFields(logrus.Fields{"location": loc.String(), "bytes": len(data)}).Debug("Manifest loaded")
	return tabular.Unmarshal(data)
}

// Save serializes m and writes it to loc. Validation behaves as in
// tabular.Write; nothing is written when serialization is refused.
func (s *Store) Save(ctx context.Context, loc Location, m *manifest.Manifest, opts tabular.WriteOptions) (core.Diagnostics, error) {
	objects, bucket, key, err := s.objects(loc)
	if err != nil {
		return nil, err
	}
	data, diags, err := tabular.Marshal(m, opts)
	if err != nil {
		return diags, err
	}
	_, err = retry(ctx, s, "put", func() (struct{}, error) {
		if err := objects.EnsureBucket(ctx, bucket); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, objects.PutObject(ctx, bucket, key, data)
	})
	if err != nil {
		return diags, err
	}
	s.log.WithFields(logrus.Fields{"location": loc.String(), "bytes": len(data)}).Info("Manifest saved")
	return diags, nil
}

func (s *Store) objects(loc Location) (ObjectStore, string, string, error) {
	if !loc.Remote {
		return NewLocalStore(filepath.Dir(loc.Key)), "", filepath.Base(loc.Key), nil
	}
	if s.remote == nil {
		return nil, "", "", wrapError(CodeEndpointUnreachable, false,
			errors.New("no object store configured for "+loc.String()))
	}
	return s.remote, loc.Bucket, loc.Key, nil
}

// retry runs op until it succeeds, fails with a non-retryable error or
// defaultAttempts is reached.
func retry[T any](ctx context.Context, s *Store, op string, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.backoff
	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(defaultAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.log.WithError(err).WithFields(logrus.Fields{"op": op, "retry_in": next}).Warn("Object store call failed, retrying")
		}),
	)
}
