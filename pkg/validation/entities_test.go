package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uleam-dti/dms/pkg/identity"
	"github.com/uleam-dti/dms/pkg/models"
)

type fakeUsers struct {
	known   map[string]*models.User
	created []string
	nextKey string
}

func (f *fakeUsers) Resolve(_ context.Context, in identity.Input) (*models.User, error) {
	if u, ok := f.known[in.DisplayName]; ok {
		return u, nil
	}
	if u, ok := f.known[in.Email]; ok {
		return u, nil
	}
	return nil, nil
}

func (f *fakeUsers) CreateUser(_ context.Context, displayName, _ string) (string, error) {
	f.created = append(f.created, displayName)
	if f.nextKey == "" {
		f.nextKey = "new1"
	}
	return f.nextKey, nil
}

func TestEnsureExistResolvesBareUserString(t *testing.T) {
	store := &fakeStore{users: map[string]bool{}}
	users := &fakeUsers{known: map[string]*models.User{
		"Juan Pérez": {Key: "u7", Name: "Juan", LastName: "Pérez", Email: "jperez@uleam.edu.ec"},
	}}
	e := NewEntityEnsurer(store, users, nil)

	metadata := map[string]any{"tutor": "Juan Pérez"}
	schema := &models.MetaSchema{Fields: []models.SchemaField{
		{FieldKey: "tutor", EntityType: &models.KeyedName{Key: "user"}},
	}}

	require.NoError(t, e.EnsureExist(context.Background(), metadata, schema))

	ref := metadata["tutor"].(map[string]any)
	assert.Equal(t, "u7", ref["id"])
	assert.Equal(t, "user", ref["type"])
	assert.Equal(t, "Juan Pérez", ref["display_name"])
	assert.Equal(t, "jperez@uleam.edu.ec", ref["email"])
}

func TestEnsureExistCreatesUnknownUser(t *testing.T) {
	store := &fakeStore{users: map[string]bool{}}
	users := &fakeUsers{known: map[string]*models.User{}, nextKey: "ana_delgado"}
	e := NewEntityEnsurer(store, users, nil)

	metadata := map[string]any{
		"tutor": map[string]any{"display_name": "Ana Delgado"},
	}

	require.NoError(t, e.EnsureExist(context.Background(), metadata, nil))

	assert.Equal(t, []string{"Ana Delgado"}, users.created)
	ref := metadata["tutor"].(map[string]any)
	assert.Equal(t, "ana_delgado", ref["id"])
	assert.Equal(t, "Ana Delgado", ref["display_name"])
}

func TestEnsureExistReplacesStaleUserID(t *testing.T) {
	// The referenced user id no longer exists: the payload name wins.
	store := &fakeStore{users: map[string]bool{}}
	users := &fakeUsers{known: map[string]*models.User{
		"Juan Pérez": {Key: "u7", Name: "Juan", LastName: "Pérez"},
	}}
	e := NewEntityEnsurer(store, users, nil)

	target := map[string]any{"id": "gone", "display_name": "Juan Pérez", "stale": true}
	metadata := map[string]any{"tutor": map[string]any{"value": target}}

	require.NoError(t, e.EnsureExist(context.Background(), metadata, nil))

	assert.Equal(t, "u7", target["id"])
	assert.NotContains(t, target, "stale")
}

func TestEnsureExistKeepsKnownUserID(t *testing.T) {
	store := &fakeStore{users: map[string]bool{"u7": true}}
	users := &fakeUsers{}
	e := NewEntityEnsurer(store, users, nil)

	metadata := map[string]any{
		"tutor": map[string]any{"id": "u7", "display_name": "Juan Pérez"},
	}

	require.NoError(t, e.EnsureExist(context.Background(), metadata, nil))
	assert.Empty(t, users.created)
}

func TestEnsureExistStructuralEntityMustExist(t *testing.T) {
	store := &fakeStore{entities: map[string]models.Entity{}}
	e := NewEntityEnsurer(store, &fakeUsers{}, nil)

	metadata := map[string]any{
		"career": map[string]any{"id": "ghost", "name": "Fantasma", "type": "carrera"},
	}

	err := e.EnsureExist(context.Background(), metadata, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `la entidad "ghost"`)
}

func TestEnsureExistStructuralEntityNeedsID(t *testing.T) {
	e := NewEntityEnsurer(&fakeStore{}, &fakeUsers{}, nil)

	metadata := map[string]any{
		"career": map[string]any{"name": "Software", "type": "carrera"},
	}

	err := e.EnsureExist(context.Background(), metadata, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id obligatorio")
}

func TestEnsureExistCopiesCodeNumeric(t *testing.T) {
	store := &fakeStore{entities: map[string]models.Entity{
		"e9": {Key: "e9", Name: "Software", Type: "carrera", CodeNumeric: float64(213)},
	}}
	e := NewEntityEnsurer(store, &fakeUsers{}, nil)

	target := map[string]any{"id": "e9", "name": "Software", "type": "carrera"}
	metadata := map[string]any{"career": target}

	require.NoError(t, e.EnsureExist(context.Background(), metadata, nil))
	assert.Equal(t, float64(213), target["code_numeric"])
}

func TestEnsureExistIgnoresScalars(t *testing.T) {
	e := NewEntityEnsurer(&fakeStore{}, &fakeUsers{}, nil)

	metadata := map[string]any{"notes": "texto libre", "period": "2026-1"}
	require.NoError(t, e.EnsureExist(context.Background(), metadata, nil))
	assert.Equal(t, "texto libre", metadata["notes"])
}
