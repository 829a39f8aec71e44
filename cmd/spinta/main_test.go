package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/04d4/spinta/internal/core"
	"github.com/04d4/spinta/internal/endpoint"
	"github.com/04d4/spinta/internal/inspect"
	"github.com/04d4/spinta/internal/typemap"
)

type stubConn struct {
	entities []*endpoint.Entity
	fields   map[string][]*endpoint.Field
	fail     bool
}

func (c *stubConn) ID() string   { return "stub" }
func (c *stubConn) Kind() string { return "stub" }

func (c *stubConn) Connect(context.Context) error {
	if c.fail {
		return core.ConnectionError(false, "authentication failed")
	}
	return nil
}

func (c *stubConn) ListEntities(context.Context) (endpoint.Iterator[*endpoint.Entity], error) {
	return endpoint.NewSliceIterator(c.entities, nil), nil
}

func (c *stubConn) ListFields(_ context.Context, e *endpoint.Entity) ([]*endpoint.Field, error) {
	fields, ok := c.fields[e.Name]
	if !ok {
		return nil, errors.New("no such entity")
	}
	return fields, nil
}

func (c *stubConn) Close() error { return nil }

func testApp(t *testing.T) *app {
	t.Helper()
	reg := endpoint.NewRegistry()
	reg.Register(&endpoint.Descriptor{
		ID:        "stub",
		Kind:      "stub",
		Title:     "Stub",
		Schemes:   []string{"stub"},
		SampleURI: "stub://host",
		Options:   []*endpoint.OptionDescriptor{{Key: "mode", ValueType: "string", Label: "Mode"}},
	}, func(src *endpoint.Source) (endpoint.Connector, error) {
		conn := &stubConn{
			entities: []*endpoint.Entity{{Name: "users", Kind: endpoint.KindTable}},
			fields: map[string][]*endpoint.Field{"users": {
				{Name: "id", NativeType: "int", PrimaryKey: true},
				{Name: "email", NativeType: "text", Nullable: true},
			}},
		}
		switch src.Option("mode", "") {
		case "v2":
			conn.fields["users"] = append(conn.fields["users"], &endpoint.Field{Name: "age", NativeType: "int", Nullable: true})
		case "fail":
			conn.fail = true
		}
		return conn, nil
	})

	types := typemap.NewRegistry()
	types.Register("stub", typemap.MustParse([]byte("backend: stub\nversion: 3\ntypes:\n  int: integer\n  text: string\n")))
	return &app{registry: reg, types: types}
}

func run(t *testing.T, a *app, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestInspect_Stdout(t *testing.T) {
	out, _, err := run(t, testApp(t), "inspect", "--log-level", "error", "-t", "shop/db=stub://host")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "dataset,resource,base,model"))
	assert.Equal(t, "shop,,,,,,,,,,,,", lines[1])
	assert.Equal(t, "shop,db,,,,stub,,stub://host,,,,,", lines[2])
	assert.Equal(t, "shop,db,,users,,table,id,users,,,,,", lines[3])
	assert.Contains(t, lines[4], "integer required")
}

func TestInspect_MergesIntoPriorManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.csv")
	a := testApp(t)

	_, _, err := run(t, a, "inspect", "--log-level", "error", "-t", "shop/db=stub://host", "-o", path)
	require.NoError(t, err)
	first, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(first), ",age,")

	_, _, err = run(t, a, "inspect", "--log-level", "error", "-m", path, "-o", path,
		"--option", "mode=v2", "-t", "shop/db=stub://host")
	require.NoError(t, err)
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(second), ",age,")

	out, _, err := run(t, a, "check", path)
	require.NoError(t, err)
	assert.Equal(t, path+": ok\n", out)
}

func TestInspect_ReportsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.csv")
	_, stderr, err := run(t, testApp(t), "inspect", "--log-level", "error",
		"--option", "mode=fail", "-t", "shop/db=stub://host", "-o", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 errors")
	assert.Contains(t, stderr, "error [ConnectionError] shop/db:")

	// The resource row is still written.
	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "shop,db,,,,stub,")
}

func TestInspect_InvalidArguments(t *testing.T) {
	a := testApp(t)
	for _, args := range [][]string{
		{"inspect"},
		{"inspect", "-t", "db=stub://host"},
		{"inspect", "-t", "shop/db"},
		{"inspect", "-t", "shop/db=stub://host", "--option", "novalue"},
		{"inspect", "-t", "shop/db=stub://host", "-o", "gs://bucket/key"},
		{"inspect", "-t", "shop/db=stub://host", "--workers", "0"},
	} {
		_, _, err := run(t, a, args...)
		assert.Error(t, err, args)
	}
}

func TestParseTarget(t *testing.T) {
	got, err := parseTarget("gov/stats/db=postgres://h/db?sslmode=disable")
	require.NoError(t, err)
	assert.Equal(t, inspect.Target{Dataset: "gov/stats", Resource: "db", Source: "postgres://h/db?sslmode=disable"}, got)

	for _, raw := range []string{"", "shop/=x://", "/db=x://", "shop/db=", "shopdb=x://"} {
		_, err := parseTarget(raw)
		assert.Error(t, err, raw)
	}
}

func TestCheck_ReportsInvalidManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"dataset,resource,base,model,property,type,ref,source,level,access,status,title,description\n"+
			",,,users,,table,,,,,,,\n"), 0o644))

	_, stderr, err := run(t, testApp(t), "check", path)
	require.Error(t, err)
	assert.Contains(t, stderr, "model row without dataset")
}

func TestBackends(t *testing.T) {
	out, _, err := run(t, testApp(t), "backends", "-v")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "stub://host")
	assert.Contains(t, out, "option mode string: Mode")

	lines := strings.Split(out, "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Equal(t, []string{"stub", "stub", "stub", "v3", "Stub"}, strings.Fields(lines[1]))
}
