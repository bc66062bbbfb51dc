package listsvc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/JohanCodinha/blsync/internal/secret"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(openTestSQL(t))
	now := int64(1000)
	svc.SetClock(func() int64 { return now })
	return svc
}

func TestService_CreateStoresOnlyHash(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{
		Name:     "mine",
		Subjects: json.RawMessage(`[{"id":"s1","addedAt":1}]`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.WriteSecret)
	assert.Equal(t, int64(1000), created.UpdatedAt)

	rec, err := svc.repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.NotContains(t, rec.SecretHash, created.WriteSecret)
	assert.NoError(t, secret.Verify(rec.SecretHash, secret.Digest(created.ID, created.WriteSecret)))
	assert.JSONEq(t, `[]`, string(rec.Items), "missing items stored as empty array")
}

func TestService_UpdateAuthorization(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Name: "mine"})
	require.NoError(t, err)

	in := UpdateInput{Items: json.RawMessage(`[{"id":"i1","addedAt":9}]`)}

	_, err = svc.Update(ctx, created.ID, "", in)
	assert.ErrorIs(t, err, ErrForbidden, "missing digest")

	_, err = svc.Update(ctx, created.ID, secret.Digest(created.ID, "wrong"), in)
	assert.ErrorIs(t, err, ErrForbidden, "wrong secret")

	_, err = svc.Update(ctx, created.ID, created.WriteSecret, in)
	assert.ErrorIs(t, err, ErrForbidden, "plaintext instead of digest")

	_, err = svc.Update(ctx, "missing", secret.Digest("missing", created.WriteSecret), in)
	assert.ErrorIs(t, err, ErrNotFound)

	result, err := svc.Update(ctx, created.ID, secret.Digest(created.ID, created.WriteSecret), in)
	require.NoError(t, err)
	assert.True(t, result.Success)

	doc, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "mine", doc.Name, "nil name keeps stored value")
	assert.JSONEq(t, `[{"id":"i1","addedAt":9}]`, string(doc.Items))
}

func TestService_UpdatedAtAlwaysAdvances(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{})
	require.NoError(t, err)
	digest := secret.Digest(created.ID, created.WriteSecret)

	// Clock does not move between writes.
	first, err := svc.Update(ctx, created.ID, digest, UpdateInput{})
	require.NoError(t, err)
	second, err := svc.Update(ctx, created.ID, digest, UpdateInput{})
	require.NoError(t, err)

	assert.Greater(t, first.UpdatedAt, created.UpdatedAt)
	assert.Greater(t, second.UpdatedAt, first.UpdatedAt)
}

func TestValidateEntries(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "missing", raw: "", want: `[]`},
		{name: "null", raw: "null", want: `[]`},
		{name: "objects", raw: ` [ {"id":"a","addedAt":1} ] `, want: `[{"id":"a","addedAt":1}]`},
		{name: "legacy strings kept", raw: `["a","b"]`, want: `["a","b"]`},
		{name: "not an array", raw: `{"id":"a"}`, wantErr: true},
		{name: "empty id", raw: `[{"id":"","addedAt":1}]`, wantErr: true},
		{name: "wrong type", raw: `[1,2]`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validateEntries("subjects", json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}
