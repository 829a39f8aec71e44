package tabular

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/04d4/spinta/internal/core"
	"github.com/04d4/spinta/internal/manifest"
)

func line(fields ...string) string {
	if len(fields) != len(Columns) {
		panic("wrong field count")
	}
	return strings.Join(fields, ",") + "\n"
}

var header = strings.Join(Columns, ",") + "\n"

func sample(t *testing.T) *manifest.Manifest {
	t.Helper()
	m := manifest.New()
	_, err := m.AddDataset("shop", "Shop", "")
	require.NoError(t, err)
	_, err = m.AddResource("shop", manifest.NewResource("db", "sql/postgres", "postgresql://app@db/app"))
	require.NoError(t, err)

	path := manifest.Path{Dataset: "shop", Resource: "db"}
	users := manifest.NewModel("users")
	users.Source, users.Kind, users.PrimaryKey = "public.users", "table", []string{"id"}
	require.NoError(t, users.AddProperty(&manifest.Property{Name: "id", Source: "id", Type: core.TypeInteger, NativeType: "int4", Required: true}))
	require.NoError(t, users.AddProperty(&manifest.Property{Name: "email", Source: "email", Type: core.TypeString, NativeType: "varchar"}))
	_, _, err = m.AddOrUpdateModel(path, users)
	require.NoError(t, err)

	orders := manifest.NewModel("orders")
	orders.Source, orders.Kind, orders.PrimaryKey = "public.orders", "table", []string{"id"}
	require.NoError(t, orders.AddProperty(&manifest.Property{Name: "id", Source: "id", Type: core.TypeInteger, NativeType: "int4", Required: true}))
	require.NoError(t, orders.AddProperty(&manifest.Property{Name: "user_id", Source: "user_id", Type: core.TypeReference, NativeType: "int4", Ref: &manifest.Ref{Model: "public.users", Property: "id"}}))
	_, _, err = m.AddOrUpdateModel(path, orders)
	require.NoError(t, err)

	require.NoError(t, m.Update("shop", func(d *manifest.Dataset) error {
		r, _ := d.Resource("db")
		u, _ := r.Model("users")
		email, _ := u.Property("email")
		email.Title = "E-mail, primary"
		email.Access = manifest.AccessPrivate
		return nil
	}))
	require.Empty(t, m.ResolveReferences())
	return m
}

func TestWrite_Golden(t *testing.T) {
	data, diags, err := Marshal(sample(t), WriteOptions{})
	require.NoError(t, err)
	assert.Empty(t, diags)

	want := header +
		line("shop", "", "", "", "", "", "", "", "", "", "", "Shop", "") +
		line("shop", "db", "", "", "", "sql/postgres", "", "postgresql://app@db/app", "", "", "", "", "") +
		line("shop", "db", "", "users", "", "table", "id", "public.users", "", "", "", "", "") +
		line("shop", "db", "", "users", "id", "integer required", "", "id::int4", "4", "", "", "", "") +
		line("shop", "db", "", "users", "email", "string", "", "email::varchar", "3", "private", "", `"E-mail, primary"`, "") +
		line("shop", "db", "", "orders", "", "table", "id", "public.orders", "", "", "", "", "") +
		line("shop", "db", "", "orders", "id", "integer required", "", "id::int4", "4", "", "", "", "") +
		line("shop", "db", "", "orders", "user_id", "reference", "users[id]", "user_id::int4", "4", "", "", "", "")
	assert.Equal(t, want, string(data))
}

func TestRoundTrip(t *testing.T) {
	m := sample(t)

	// Exercise the less common columns.
	_, err := m.AddDataset("empty", "Nothing yet", "")
	require.NoError(t, err)
	require.NoError(t, m.Update("shop", func(d *manifest.Dataset) error {
		r, _ := d.Resource("db")
		u, _ := r.Model("users")
		u.Description = `Registered "customers"`
		require.NoError(t, u.AddProperty(&manifest.Property{Name: "legacy", Type: core.TypeUnknown, Status: manifest.StatusStale, Level: 1}))
		require.NoError(t, u.AddProperty(&manifest.Property{Name: "tags", Source: "tags", Type: core.TypeArray, NativeType: "_text", Level: 3}))

		archive := manifest.NewModel("archive")
		archive.Base, archive.Status, archive.Kind = "users", manifest.StatusStale, "view"
		require.NoError(t, archive.AddProperty(&manifest.Property{Name: "owner", Type: core.TypeUnknown, Ref: &manifest.Ref{Model: "gone", Property: "id"}, Level: 1}))
		r.Models.Set(archive.Name, archive)
		return nil
	}))

	first, diags, err := Marshal(m, WriteOptions{})
	require.NoError(t, err)
	assert.Empty(t, diags)

	read, diags, err := Unmarshal(first)
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, Rows(m), Rows(read))

	second, _, err := Marshal(read, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	// Binding references on the loaded manifest changes nothing visible.
	assert.Len(t, read.ResolveReferences(), 1)
	third, _, err := Marshal(read, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, string(first), string(third))
}

func TestRoundTrip_AwkwardNames(t *testing.T) {
	m := manifest.New()
	_, err := m.AddResource("pg", manifest.NewResource("db", "sql/postgres", ""))
	require.NoError(t, err)

	odd := manifest.NewModel("odd")
	odd.Source, odd.Kind, odd.PrimaryKey = "public.odd", "table", []string{"a,b", `q"x`}
	for _, p := range []*manifest.Property{
		{Name: "a,b", Source: "a,b", Type: core.TypeInteger, NativeType: "int4"},
		{Name: `q"x`, Source: `q"x`, Type: core.TypeString, NativeType: "text"},
		{Name: "c", Source: "c::d", Type: core.TypeUnknown},
		{Name: "e", Type: core.TypeInteger, NativeType: "int4"},
	} {
		require.NoError(t, odd.AddProperty(p))
	}
	_, _, err = m.AddOrUpdateModel(manifest.Path{Dataset: "pg", Resource: "db"}, odd)
	require.NoError(t, err)

	data, diags, err := Marshal(m, WriteOptions{})
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Contains(t, string(data), `"""a,b"", ""q""""x"""`)
	assert.Contains(t, string(data), ",c::d::,")

	read, diags, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, Rows(m), Rows(read))

	var got *manifest.Model
	require.NoError(t, read.View("pg", func(d *manifest.Dataset) {
		r, _ := d.Resource("db")
		got, _ = r.Model("odd")
	}))
	assert.Equal(t, []string{"a,b", `q"x`}, got.PrimaryKey)
	c, _ := got.Property("c")
	assert.Equal(t, "c::d", c.Source)
	assert.Empty(t, c.NativeType)
	e, _ := got.Property("e")
	assert.Empty(t, e.Source)
	assert.Equal(t, "int4", e.NativeType)
}

func TestSplitList(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"id", []string{"id"}},
		{"a, b,c ,", []string{"a", "b", "c"}},
		{`"a,b", id`, []string{"a,b", "id"}},
		{`"q""x"`, []string{`q"x`}},
		{`" pad" , x`, []string{" pad", "x"}},
	} {
		got, err := splitList(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		if len(tc.want) > 0 {
			again, err := splitList(joinList(tc.want))
			require.NoError(t, err)
			assert.Equal(t, tc.want, again, tc.in)
		}
	}
	for _, bad := range []string{`"open`, `"a"b`} {
		_, err := splitList(bad)
		assert.Error(t, err, bad)
	}
}

func TestWrite_Deterministic(t *testing.T) {
	a, _, err := Marshal(sample(t), WriteOptions{})
	require.NoError(t, err)
	b, _, err := Marshal(sample(t), WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestWrite_EmptyManifest(t *testing.T) {
	data, _, err := Marshal(manifest.New(), WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, header, string(data))

	m, diags, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Empty(t, m.Datasets())

	m, _, err = Unmarshal(nil)
	require.NoError(t, err)
	assert.Empty(t, m.Datasets())
}

func TestWrite_RefusesInvalidUnlessForced(t *testing.T) {
	m := sample(t)
	require.NoError(t, m.Update("shop", func(d *manifest.Dataset) error {
		r, _ := d.Resource("db")
		u, _ := r.Model("users")
		email, _ := u.Property("email")
		email.Description = "first\nsecond\tthird"
		return nil
	}))

	_, diags, err := Marshal(m, WriteOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrValidation)
	require.Len(t, diags, 1)
	assert.Equal(t, "shop/db/users.email", diags[0].Path)

	data, diags, err := Marshal(m, WriteOptions{Force: true})
	require.NoError(t, err)
	assert.Len(t, diags, 1)
	assert.Contains(t, string(data), "first second third")
	assert.NotContains(t, string(data), "\t")
}

func TestRead_RejectsHandEditedRows(t *testing.T) {
	data := header +
		line("shop", "", "", "", "", "", "", "", "", "", "", "", "") + // 2
		line("shop", "db", "", "", "", "sql/postgres", "", "", "", "", "", "", "") + // 3
		line("shop", "db", "", "users", "", "table", "id", "public.users", "", "", "", "", "") + // 4
		line("shop", "db", "", "users", "id", "integer required", "", "id::int4", "4", "", "", "", "") + // 5
		line("shop", "db", "", "users", "age", "money", "", "", "", "", "", "", "") + // 6
		line("shop", "db", "", "users", "name", "string nullable", "", "", "", "", "", "", "") + // 7
		line("shop", "db", "", "users", "code", "string", "", "", "seven", "", "", "", "") + // 8
		line("shop", "db", "", "users", "secret", "string", "", "", "", "hidden", "", "", "") + // 9
		line("shop", "db", "", "users", "owner", "reference", "", "", "", "", "", "", "") + // 10
		line("shop", "db", "", "users", "group", "reference", "groups[", "", "", "", "", "", "") + // 11
		line("shop", "db", "", "users", "id", "integer", "", "", "", "", "", "", "") + // 12
		line("shop", "db", "", "orders", "id", "integer", "", "", "", "", "", "", "") + // 13
		line("shop", "", "", "users", "", "table", "", "", "", "", "", "", "") + // 14
		line("shop", "db", "", "users", "", "table", "", "", "", "", "", "", "") + // 15
		line("shop", "db", "", "items", "", "table", "", "", "", "", "gone", "", "") + // 16
		line("other", "db", "", "", "", "", "", "", "", "", "", "", "") + // 17
		line("shop", "db", "", "users", "email", "string", "", "", "9", "", "", "", "") // 18

	m, diags, err := Unmarshal([]byte(data))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrValidation)
	require.NotNil(t, m)

	got := make([]string, 0, len(diags))
	for _, d := range diags {
		got = append(got, d.Path+" | "+d.Message)
	}
	assert.Equal(t, []string{
		`shop/db/users.age | row 6: invalid type "money"`,
		`shop/db/users.name | row 7: unknown type modifier "nullable"`,
		`shop/db/users.code | row 8: invalid level "seven"`,
		`shop/db/users.secret | row 9: invalid access "hidden"`,
		`shop/db/users.owner | row 10: reference without ref`,
		`shop/db/users.group | row 11: malformed ref "groups["`,
		`shop/db/users.id | row 12: model users: duplicate property "id"`,
		`shop/db/orders.id | row 13: model "orders" is not declared`,
		`shop/users | row 14: model row without resource`,
		`shop/db/users | row 15: duplicate model`,
		`shop/db/items | row 16: invalid status "gone"`,
		`other/db | row 17: dataset "other" is not declared`,
		`shop/db/users.email | row 18: invalid level "9"`,
	}, got)

	// Accepted rows are kept.
	require.NoError(t, m.View("shop", func(d *manifest.Dataset) {
		r, _ := d.Resource("db")
		u, ok := r.Model("users")
		require.True(t, ok)
		assert.Equal(t, 1, u.Properties.Len())
	}))
}

func TestRead_ReportsCrossRowViolations(t *testing.T) {
	data := header +
		line("shop", "", "", "", "", "", "", "", "", "", "", "", "") +
		line("shop", "db", "", "", "", "sql/postgres", "", "", "", "", "", "", "") +
		line("shop", "db", "people", "users", "", "table", "uid", "", "", "", "", "", "")

	_, diags, err := Unmarshal([]byte(data))
	require.Error(t, err)
	require.Len(t, diags, 2)
	assert.Equal(t, `base model "people" not found`, diags[0].Message)
	assert.Equal(t, `primary key property "uid" not found`, diags[1].Message)
}

func TestRead_ControlCharacters(t *testing.T) {
	data := header + line("shop", "", "", "", "", "", "", "", "", "", "", "\"a\x01b\"", "")
	_, diags, err := Unmarshal([]byte(data))
	require.Error(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "row 2: control characters", diags[0].Message)
}

func TestRead_MissingColumnsAreEmpty(t *testing.T) {
	data := "dataset,resource,model,property,type\n" +
		"shop,,,,\n" +
		"shop,db,,,mongo\n" +
		"shop,db,people,,\n" +
		"shop,db,people,name,\n"
	m, diags, err := Unmarshal([]byte(data))
	require.NoError(t, err)
	assert.Empty(t, diags)
	require.NoError(t, m.View("shop", func(d *manifest.Dataset) {
		r, _ := d.Resource("db")
		assert.Equal(t, "mongo", r.Backend)
		people, _ := r.Model("people")
		p, _ := people.Property("name")
		assert.Equal(t, core.TypeUnknown, p.Type)
	}))
}

func TestRowKind(t *testing.T) {
	assert.Equal(t, KindEmpty, (&Row{}).Kind())
	assert.Equal(t, KindDataset, (&Row{Dataset: "d"}).Kind())
	assert.Equal(t, KindResource, (&Row{Dataset: "d", Resource: "r"}).Kind())
	assert.Equal(t, KindModel, (&Row{Dataset: "d", Resource: "r", Model: "m"}).Kind())
	assert.Equal(t, KindProperty, (&Row{Model: "m", Property: "p"}).Kind())
}

func TestParseRef(t *testing.T) {
	ok := map[string]manifest.Ref{
		"users":           {Model: "users"},
		"users[id]":       {Model: "users", Property: "id"},
		"shop/users[id]":  {Model: "shop/users", Property: "id"},
		" public.users  ": {Model: "public.users"},
	}
	for in, want := range ok {
		got, err := parseRef(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, *got, in)
	}
	for _, in := range []string{"[id]", "users[]", "users[id", "users]", "users[a[b]]"} {
		_, err := parseRef(in)
		assert.Error(t, err, in)
	}
}
