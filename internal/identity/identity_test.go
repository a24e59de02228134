package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromContext_DefaultsToAnonymous(t *testing.T) {
	id := FromContext(context.Background())
	require.Equal(t, "anonymous", id.Name)
	require.False(t, id.System)
}

func TestRunAs_ElevatesOnlyInsideClosure(t *testing.T) {
	ctx := context.Background()

	var inside Identity
	err := RunAs(ctx, System(), func(ctx context.Context) error {
		inside = FromContext(ctx)
		return nil
	})
	require.NoError(t, err)
	require.True(t, inside.System)

	// The original context never saw the elevation.
	require.False(t, FromContext(ctx).System)
}

func TestRunAs_RestoresOnError(t *testing.T) {
	ctx := WithIdentity(context.Background(), Anonymous())

	wantErr := errors.New("scan failed")
	err := RunAs(ctx, System(), func(ctx context.Context) error {
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
	require.False(t, FromContext(ctx).System)
}

func TestWithIdentity_NestedScopes(t *testing.T) {
	ctx := WithIdentity(context.Background(), System())
	inner := WithIdentity(ctx, Anonymous())

	require.True(t, FromContext(ctx).System)
	require.False(t, FromContext(inner).System)
}
