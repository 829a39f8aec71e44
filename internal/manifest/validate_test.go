package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/04d4/spinta/internal/core"
)

func TestValidate_Clean(t *testing.T) {
	m := usersOrders(t)
	require.Empty(t, m.ResolveReferences())
	assert.Empty(t, m.Validate())
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	m := usersOrders(t)
	require.NoError(t, m.Update("shop", func(d *Dataset) error {
		d.Title = "Shop\x00"
		r, _ := d.Resource("db")

		users, _ := r.Model("users")
		users.PrimaryKey = []string{"uid"}
		users.Base = "people"

		orders, _ := r.Model("orders")
		orders.Source = "public.users"
		orders.Kind = "sheet"

		email, _ := users.Property("email")
		email.Access = "secret"
		email.Level = 9
		email.Description = "line\nbreak"

		id, _ := orders.Property("id")
		id.Type = "money"
		id.NativeType = "int4::money"

		ref, _ := orders.Property("user_id")
		ref.Ref = nil
		return nil
	}))

	diags := m.Validate()
	for _, d := range diags {
		assert.Equal(t, core.KindValidation, d.Kind)
		assert.Equal(t, core.SeverityError, d.Severity)
	}
	messages := map[string][]string{}
	for _, d := range diags {
		messages[d.Path] = append(messages[d.Path], d.Message)
	}
	assert.Equal(t, map[string][]string{
		"shop": {"title contains control characters"},
		"shop/db/users": {
			`base model "people" not found`,
			`primary key property "uid" not found`,
		},
		"shop/db/users.email": {
			"description contains control characters",
			`invalid access "secret"`,
			"level 9 out of range 0..5",
		},
		"shop/db/orders": {
			`source entity "public.users" already used by model users`,
			`invalid model kind "sheet"`,
		},
		"shop/db/orders.id":      {`native type contains "::"`, `invalid type "money"`},
		"shop/db/orders.user_id": {"reference without target model"},
	}, messages)
}

func TestValidate_EmptyNames(t *testing.T) {
	m := newManifest(t)
	require.NoError(t, m.Update("shop", func(d *Dataset) error {
		r, _ := d.Resource("db")
		bad := NewModel(" ")
		require.NoError(t, bad.AddProperty(&Property{Name: "", Type: core.TypeString}))
		r.Models.Set(" ", bad)
		return nil
	}))
	diags := m.Validate()
	require.Len(t, diags, 2)
	assert.Equal(t, "model name is empty", diags[0].Message)
	assert.Equal(t, "property name is empty", diags[1].Message)
}

func TestHasControl(t *testing.T) {
	assert.False(t, HasControl("plain text, ąčę"))
	assert.True(t, HasControl("tab\there"))
	assert.True(t, HasControl("bell\a"))
}
