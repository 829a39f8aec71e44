// Package sas implements the JDBC-bridged connector for SAS libraries.
//
// The SAS IOM driver only exists for the JVM, so the connector talks to a
// JDBC gateway over JSON/HTTP and introspects through SAS DICTIONARY tables:
//
//	dictionary.tables   - members (memtype DATA or VIEW) of a library
//	dictionary.columns  - variables ordered by varnum, with format and label
//
// SAS has no primary or foreign keys. Numeric column types are refined by
// their display format (see FormatMapper).
package sas

import (
	"context"
	"fmt"
	"strings"

	"github.com/04d4/spinta/internal/connector/http"
	"github.com/04d4/spinta/internal/core"
	"github.com/04d4/spinta/internal/endpoint"
)

// Kind is the type-table key for SAS.
const Kind = "sql/sas"

// Option keys understood by the SAS connector.
const (
	OptionTarget    = "target"
	OptionToken     = "token"
	OptionFetchSize = "fetch_size"
)

var _ endpoint.Connector = (*Connector)(nil)

// Config holds the gateway location and the JDBC target.
type Config struct {
	GatewayURL string
	Target     string // jdbc:sasiom://host:port
	Schema     string // library; empty means the gateway's default library
	Username   string
	Password   string
	Token      string
	FetchSize  int
}

// ParseConfig derives a Config from a sas+jdbc:// descriptor. The
// sas+jdbcs scheme reaches the gateway over TLS.
func ParseConfig(src *endpoint.Source) *Config {
	u := *src.URL
	scheme := "http"
	if strings.HasSuffix(src.Scheme, "s") {
		scheme = "https"
	}
	cfg := &Config{
		GatewayURL: fmt.Sprintf("%s://%s%s", scheme, u.Host, strings.TrimSuffix(u.Path, "/")),
		Target:     src.Option(OptionTarget, ""),
		Schema:     strings.ToUpper(src.Schema()),
		Token:      src.Option(OptionToken, ""),
		FetchSize:  src.IntOption(OptionFetchSize, 1000),
	}
	if u.User != nil {
		cfg.Username = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}
	return cfg
}

// Connector introspects one SAS server through the gateway.
type Connector struct {
	Config *Config

	client  *http.Client
	gateway *Gateway
	library string
}

// New creates an unconnected SAS connector. clientConfig may be nil.
func New(cfg *Config, clientConfig *http.ClientConfig) *Connector {
	if clientConfig == nil {
		clientConfig = http.DefaultClientConfig()
	}
	clientConfig.BaseURL = cfg.GatewayURL
	switch {
	case cfg.Token != "":
		clientConfig.Auth = http.BearerToken{Token: cfg.Token}
	case cfg.Username != "" || cfg.Password != "":
		clientConfig.Auth = http.BasicAuth{Username: cfg.Username, Password: cfg.Password}
	}
	return &Connector{Config: cfg, client: http.NewClient(clientConfig)}
}

// ID returns the connector template ID.
func (c *Connector) ID() string { return "sql.sas" }

// Kind returns the type-table key.
func (c *Connector) Kind() string { return Kind }

// Connect opens the gateway session and settles the library to inspect.
func (c *Connector) Connect(ctx context.Context) error {
	if c.Config.Target == "" {
		return core.ConnectionError(false, "sas: %q option is required (jdbc:sasiom://host:port)", OptionTarget)
	}
	gw := NewGateway(c.client, c.Config.Target, c.Config.FetchSize)
	info, err := gw.Connect(ctx)
	if err != nil {
		return err
	}
	c.gateway = gw
	c.library = c.Config.Schema
	if c.library == "" {
		c.library = strings.ToUpper(strings.TrimSpace(info.DefaultSchema))
	}
	return nil
}

// Close drops the gateway client. The gateway owns the JDBC session and
// expires it on its own.
func (c *Connector) Close() error {
	c.gateway = nil
	return nil
}

// ListEntities lists data sets and views of the library, or of every
// library when neither a schema nor a gateway default is known.
func (c *Connector) ListEntities(ctx context.Context) (endpoint.Iterator[*endpoint.Entity], error) {
	if c.gateway == nil {
		return nil, core.ConnectionError(false, "not connected")
	}
	query := `
		SELECT libname, memname, memtype, memlabel
		FROM dictionary.tables
		WHERE memtype IN ('DATA', 'VIEW')`
	var params []any
	if c.library != "" {
		query += ` AND libname = ?`
		params = append(params, c.library)
	}
	query += `
		ORDER BY libname, memname`

	rows, err := c.gateway.Query(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	entities := make([]*endpoint.Entity, 0, len(rows))
	for _, r := range rows {
		lib, name := r.str("libname"), r.str("memname")
		if name == "" {
			continue
		}
		kind := endpoint.KindDataset
		if strings.EqualFold(r.str("memtype"), "VIEW") {
			kind = endpoint.KindView
		}
		entities = append(entities, &endpoint.Entity{
			Schema:  lib,
			Name:    name,
			Kind:    kind,
			Default: c.library != "" && strings.EqualFold(lib, c.library),
			Title:   r.str("memlabel"),
		})
	}
	return endpoint.NewSliceIterator(entities, nil), nil
}

// ListFields describes the variables of a data set in varnum order.
func (c *Connector) ListFields(ctx context.Context, entity *endpoint.Entity) ([]*endpoint.Field, error) {
	if c.gateway == nil {
		return nil, core.ConnectionError(false, "not connected")
	}
	query := `
		SELECT name, type, length, format, label, notnull
		FROM dictionary.columns
		WHERE libname = ? AND memname = ?
		ORDER BY varnum`
	rows, err := c.gateway.Query(ctx, query, strings.ToUpper(entity.Schema), strings.ToUpper(entity.Name))
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", entity.QualifiedName(), err)
	}
	if len(rows) == 0 {
		return nil, core.Wrap(core.KindEntityInspection, false,
			fmt.Errorf("%s: no columns visible", entity.QualifiedName()))
	}

	fields := make([]*endpoint.Field, 0, len(rows))
	for i, r := range rows {
		fields = append(fields, &endpoint.Field{
			Name:       r.str("name"),
			NativeType: NativeType(r.str("type"), r.num("length"), r.str("format")),
			Nullable:   !r.flag("notnull"),
			Position:   i + 1,
			Comment:    r.str("label"),
		})
	}
	return fields, nil
}
