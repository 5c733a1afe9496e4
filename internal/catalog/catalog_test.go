package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadSeeds(t *testing.T) {
	_, err := New([]Permission{{ID: ""}})
	require.Error(t, err)

	_, err = New([]Permission{
		{ID: "view_menu"},
		{ID: "view_menu"},
	})
	require.Error(t, err)
}

func TestDefaultsCatalog(t *testing.T) {
	c := MustDefaults()

	require.True(t, c.Exists(Wildcard))
	require.True(t, c.Exists(PermManageRoles))
	require.False(t, c.Exists("delete_everything"))

	p, ok := c.GetByID(PermViewInventory)
	require.True(t, ok)
	require.Equal(t, "inventory", p.Resource)
	require.Equal(t, ActionRead, p.Action)

	all := c.GetAll()
	require.Len(t, all, len(Defaults()))
	require.Equal(t, Wildcard, all[0].ID)
}

func TestMissingListsEveryUnknownID(t *testing.T) {
	c := MustDefaults()

	missing := c.Missing([]ID{"zz_fake", PermViewMenu, "aa_fake", "zz_fake"})
	require.Equal(t, []ID{"aa_fake", "zz_fake"}, missing)

	require.Empty(t, c.Missing([]ID{PermViewMenu, Wildcard}))
}
