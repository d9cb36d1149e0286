//go:build integration

package verification_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"lms/internal/verification"
	"lms/internal/verification/mocks"
	"lms/pkg/platform/sentinel"
	"lms/pkg/testutil/containers"
)

func TestCachedAccountLookup(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	next := mocks.NewMockAccountLookup(ctrl)
	lookup := verification.NewCachedAccountLookup(next, rc.Client, time.Minute)

	t.Run("hit is served from cache", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		next.EXPECT().Lookup(gomock.Any(), "mpamba", "+265888000111").
			Return(verification.Account{HolderName: "J Banda", Active: true}, nil).Times(1)

		for range 3 {
			account, err := lookup.Lookup(ctx, "mpamba", "+265888000111")
			require.NoError(t, err)
			assert.Equal(t, "J Banda", account.HolderName)
		}
	})

	t.Run("miss is cached too", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		next.EXPECT().Lookup(gomock.Any(), "tnm", "+265888000222").
			Return(verification.Account{}, sentinel.ErrNotFound).Times(1)

		for range 2 {
			_, err := lookup.Lookup(ctx, "tnm", "+265888000222")
			assert.ErrorIs(t, err, sentinel.ErrNotFound)
		}
	})

	t.Run("provider outage is not cached", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		next.EXPECT().Lookup(gomock.Any(), "tnm", "+265888000333").
			Return(verification.Account{}, sentinel.ErrUnavailable).Times(2)

		for range 2 {
			_, err := lookup.Lookup(ctx, "tnm", "+265888000333")
			assert.ErrorIs(t, err, sentinel.ErrUnavailable)
		}
	})
}
