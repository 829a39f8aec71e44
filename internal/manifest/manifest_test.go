package manifest

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/04d4/spinta/internal/core"
)

func prop(name string, typ core.Type, native string) *Property {
	return &Property{Name: name, Type: typ, Source: name, NativeType: native}
}

func model(t *testing.T, name string, props ...*Property) *Model {
	t.Helper()
	m := NewModel(name)
	m.Source = "public." + name
	m.Kind = "table"
	for _, p := range props {
		require.NoError(t, m.AddProperty(p))
	}
	return m
}

func newManifest(t *testing.T) *Manifest {
	t.Helper()
	m := New()
	_, err := m.AddResource("shop", NewResource("db", "sql/postgres", "postgresql://db/app"))
	require.NoError(t, err)
	return m
}

func getModel(t *testing.T, m *Manifest, name string) *Model {
	t.Helper()
	var out *Model
	require.NoError(t, m.View("shop", func(d *Dataset) {
		r, _ := d.Resource("db")
		out, _ = r.Model(name)
	}))
	require.NotNil(t, out, name)
	return out
}

func TestPath_String(t *testing.T) {
	assert.Equal(t, "ds", Path{Dataset: "ds"}.String())
	assert.Equal(t, "ds/res/users.id", Path{Dataset: "ds", Resource: "res", Model: "users", Property: "id"}.String())
	assert.Equal(t, "ds/res/users", Path{Dataset: "ds", Resource: "res", Model: "users", Property: "id"}.ModelPath().String())
}

func TestAddDataset_Idempotent(t *testing.T) {
	m := New()
	d1, err := m.AddDataset("shop", "Shop", "")
	require.NoError(t, err)
	d2, err := m.AddDataset("shop", "", "Orders and users")
	require.NoError(t, err)
	assert.Same(t, d1, d2)
	assert.Equal(t, "Shop", d2.Title)
	assert.Equal(t, "Orders and users", d2.Description)
	assert.Len(t, m.Datasets(), 1)

	_, err = m.AddDataset("", "", "")
	assert.Error(t, err)
}

func TestAddResource_UpdatesExisting(t *testing.T) {
	m := newManifest(t)
	r, err := m.AddResource("shop", &Resource{Name: "db", Source: "postgresql://other/app", Title: "Main"})
	require.NoError(t, err)
	assert.Equal(t, "sql/postgres", r.Backend)
	assert.Equal(t, "postgresql://other/app", r.Source)
	assert.Equal(t, "Main", r.Title)
}

func TestAddOrUpdateModel_Insert(t *testing.T) {
	m := newManifest(t)
	fresh := model(t, "users",
		&Property{Name: "id", Type: core.TypeInteger, NativeType: "int4", Required: true},
		prop("email", core.TypeString, "varchar"),
		prop("blob", core.TypeUnknown, "tsvector"),
		&Property{Name: "legacy"},
	)
	fresh.PrimaryKey = []string{"id"}

	got, diags, err := m.AddOrUpdateModel(Path{Dataset: "shop", Resource: "db", Model: "users"}, fresh)
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Same(t, fresh, got)

	levels := map[string]int{}
	for _, p := range got.PropertyList() {
		levels[p.Name] = p.Level
	}
	assert.Equal(t, map[string]int{"id": 4, "email": 3, "blob": 2, "legacy": 1}, levels)
}

func TestAddOrUpdateModel_UnknownResource(t *testing.T) {
	m := newManifest(t)
	_, _, err := m.AddOrUpdateModel(Path{Dataset: "shop", Resource: "nope"}, model(t, "users"))
	assert.Error(t, err)
	_, _, err = m.AddOrUpdateModel(Path{Dataset: "nope", Resource: "db"}, model(t, "users"))
	assert.Error(t, err)
}

func TestAddOrUpdateModel_MergePreservesHandEdits(t *testing.T) {
	m := newManifest(t)
	path := Path{Dataset: "shop", Resource: "db"}

	first := model(t, "users", prop("id", core.TypeInteger, "int4"), prop("email", core.TypeString, "varchar"), prop("note", core.TypeString, "text"))
	_, _, err := m.AddOrUpdateModel(path, first)
	require.NoError(t, err)

	require.NoError(t, m.Update("shop", func(d *Dataset) error {
		r, _ := d.Resource("db")
		u, _ := r.Model("users")
		u.Title = "Users"
		email, _ := u.Property("email")
		email.Title = "E-mail"
		email.Description = "Primary contact"
		email.Access = AccessPrivate
		return nil
	}))

	second := model(t, "users", prop("id", core.TypeInteger, "int8"), prop("email", core.TypeString, "text"), prop("created", core.TypeDatetime, "timestamptz"))
	got, diags, err := m.AddOrUpdateModel(path, second)
	require.NoError(t, err)

	assert.Equal(t, "Users", got.Title)
	names := []string{}
	for _, p := range got.PropertyList() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"id", "email", "note", "created"}, names)

	email, _ := got.Property("email")
	assert.Equal(t, "E-mail", email.Title)
	assert.Equal(t, "Primary contact", email.Description)
	assert.Equal(t, AccessPrivate, email.Access)
	assert.Equal(t, "text", email.NativeType)

	id, _ := got.Property("id")
	assert.Equal(t, "int8", id.NativeType)

	note, _ := got.Property("note")
	assert.Equal(t, StatusStale, note.Status)
	require.Len(t, diags, 1)
	assert.Equal(t, core.KindMergeConflict, diags[0].Kind)
	assert.Equal(t, "shop/db/users.note", diags[0].Path)

	// Reappearing clears the stale mark.
	third := model(t, "users", prop("note", core.TypeString, "text"))
	got, _, err = m.AddOrUpdateModel(path, third)
	require.NoError(t, err)
	note, _ = got.Property("note")
	assert.Equal(t, StatusActive, note.Status)
}

func TestMergeProperty_TypeRules(t *testing.T) {
	cases := []struct {
		name     string
		prior    core.Type
		fresh    core.Type
		want     core.Type
		conflict bool
	}{
		{"same", core.TypeInteger, core.TypeInteger, core.TypeInteger, false},
		{"prior unknown", core.TypeUnknown, core.TypeString, core.TypeString, false},
		{"prior empty", "", core.TypeString, core.TypeString, false},
		{"fresh unknown", core.TypeDate, core.TypeUnknown, core.TypeDate, false},
		{"conflict", core.TypeInteger, core.TypeString, core.TypeUnknown, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prior := &Property{Name: "x", Type: tc.prior}
			diag, conflict := mergeProperty(Path{Dataset: "d", Resource: "r", Model: "m", Property: "x"}, prior, &Property{Name: "x", Type: tc.fresh})
			assert.Equal(t, tc.want, prior.Type)
			assert.Equal(t, tc.conflict, conflict)
			if tc.conflict {
				assert.Equal(t, core.KindMergeConflict, diag.Kind)
				assert.Equal(t, core.SeverityWarning, diag.Severity)
			}
		})
	}
}

func TestMergeProperty_KeepsHandAuthoredReference(t *testing.T) {
	prior := &Property{Name: "owner", Type: core.TypeReference, Ref: &Ref{Model: "users", Property: "id"}}
	_, conflict := mergeProperty(Path{}, prior, &Property{Name: "owner", Type: core.TypeInteger, NativeType: "int4"})
	assert.False(t, conflict)
	assert.Equal(t, core.TypeReference, prior.Type)
	assert.Equal(t, &Ref{Model: "users", Property: "id"}, prior.Ref)
}

func TestMarkStaleModels(t *testing.T) {
	m := newManifest(t)
	path := Path{Dataset: "shop", Resource: "db"}
	for _, name := range []string{"users", "orders", "archive"} {
		_, _, err := m.AddOrUpdateModel(path, model(t, name, prop("id", core.TypeInteger, "int4")))
		require.NoError(t, err)
	}

	var diags core.Diagnostics
	require.NoError(t, m.Update("shop", func(d *Dataset) error {
		diags = d.MarkStaleModels("db", map[string]bool{"users": true, "orders": true})
		return nil
	}))
	require.Len(t, diags, 1)
	assert.Equal(t, "shop/db/archive", diags[0].Path)
	assert.Equal(t, StatusStale, getModel(t, m, "archive").Status)
	assert.Equal(t, StatusActive, getModel(t, m, "users").Status)

	// Already stale models are not reported again.
	require.NoError(t, m.Update("shop", func(d *Dataset) error {
		diags = d.MarkStaleModels("db", map[string]bool{})
		return nil
	}))
	assert.Len(t, diags, 2)

	// A fresh observation revives the model.
	_, _, err := m.AddOrUpdateModel(path, model(t, "archive", prop("id", core.TypeInteger, "int4")))
	require.NoError(t, err)
	assert.Equal(t, StatusActive, getModel(t, m, "archive").Status)
}

func TestPrune(t *testing.T) {
	m := newManifest(t)
	path := Path{Dataset: "shop", Resource: "db"}
	users := model(t, "users", prop("id", core.TypeInteger, "int4"), prop("old", core.TypeString, "text"))
	users.PrimaryKey = []string{"id", "old"}
	_, _, err := m.AddOrUpdateModel(path, users)
	require.NoError(t, err)
	_, _, err = m.AddOrUpdateModel(path, model(t, "archive", prop("id", core.TypeInteger, "int4")))
	require.NoError(t, err)

	_, _, err = m.AddOrUpdateModel(path, model(t, "users", prop("id", core.TypeInteger, "int4")))
	require.NoError(t, err)
	require.NoError(t, m.Update("shop", func(d *Dataset) error {
		d.MarkStaleModels("db", map[string]bool{"users": true})
		return nil
	}))

	removed := m.Prune()
	assert.Equal(t, []Path{
		{Dataset: "shop", Resource: "db", Model: "users", Property: "old"},
		{Dataset: "shop", Resource: "db", Model: "archive"},
	}, removed)

	u := getModel(t, m, "users")
	assert.Equal(t, []string{"id"}, u.PrimaryKey)
	assert.Equal(t, 1, u.Properties.Len())
	assert.Empty(t, m.Prune())
}

func TestConcurrentUpdates(t *testing.T) {
	m := newManifest(t)
	path := Path{Dataset: "shop", Resource: "db"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fresh := NewModel("m")
			fresh.Source = "public.m"
			_ = fresh.AddProperty(prop("p"+string(rune('a'+i)), core.TypeString, "text"))
			_, _, err := m.AddOrUpdateModel(path, fresh)
			assert.NoError(t, err)
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Validate()
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, getModel(t, m, "m").Properties.Len())
}

func TestModel_AddPropertyDuplicate(t *testing.T) {
	m := NewModel("users")
	require.NoError(t, m.AddProperty(&Property{Name: "id"}))
	assert.Error(t, m.AddProperty(&Property{Name: "id"}))
}

func TestParseAccessAndStatus(t *testing.T) {
	a, ok := ParseAccess(" open ")
	assert.True(t, ok)
	assert.Equal(t, AccessOpen, a)
	_, ok = ParseAccess("secret")
	assert.False(t, ok)

	s, ok := ParseStatus("stale")
	assert.True(t, ok)
	assert.Equal(t, StatusStale, s)
	_, ok = ParseStatus("deleted")
	assert.False(t, ok)
}
