package endpoint

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Option keys understood by every connector.
const (
	OptionSchema     = "schema"
	OptionSampleSize = "sample_size"
)

// Source is a parsed connection descriptor plus backend-specific options.
// The core only uses the scheme (to pick a connector) and the option keys
// above; the rest of the URI is opaque and handed to the connector.
type Source struct {
	Raw     string
	Scheme  string
	URL     *url.URL
	Options map[string]string
}

// ParseSource parses a URI-like connection descriptor. Options override the
// same keys given in the URI query.
func ParseSource(descriptor string, options map[string]string) (*Source, error) {
	descriptor = strings.TrimSpace(descriptor)
	if descriptor == "" {
		return nil, fmt.Errorf("connection descriptor is required")
	}
	u, err := url.Parse(descriptor)
	if err != nil {
		return nil, fmt.Errorf("invalid connection descriptor: %w", err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("connection descriptor %q has no scheme", redact(u))
	}

	opts := make(map[string]string, len(options))
	for k, v := range options {
		opts[k] = v
	}
	return &Source{
		Raw:     descriptor,
		Scheme:  strings.ToLower(u.Scheme),
		URL:     u,
		Options: opts,
	}, nil
}

// Option returns an option from Options, then the URI query, then def.
func (s *Source) Option(key, def string) string {
	if v, ok := s.Options[key]; ok && v != "" {
		return v
	}
	if v := s.URL.Query().Get(key); v != "" {
		return v
	}
	return def
}

// IntOption is Option parsed as an integer; unparsable values yield def.
func (s *Source) IntOption(key string, def int) int {
	v := s.Option(key, "")
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// Schema returns the schema/library filter, empty when none was given.
func (s *Source) Schema() string {
	return s.Option(OptionSchema, "")
}

// Redacted renders the descriptor without the password.
func (s *Source) Redacted() string {
	return redact(s.URL)
}

// StripQuery returns the descriptor with the given query keys removed, for
// drivers that reject parameters they do not know.
func (s *Source) StripQuery(keys ...string) string {
	u := *s.URL
	q := u.Query()
	for _, k := range keys {
		q.Del(k)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func redact(u *url.URL) string {
	c := *u
	if c.User != nil {
		if name := c.User.Username(); name != "" {
			c.User = url.User(name)
		} else {
			c.User = nil
		}
	}
	return c.String()
}
