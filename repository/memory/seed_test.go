package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Seed(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	s := NewStore()
	s.Seed(now)

	products, err := s.Catalog.FindProductsByIDs(ctx, []string{"demo-tee", "demo-jeans"})
	require.NoError(t, err)
	assert.Len(t, products, 2)
	assert.Equal(t, 30, s.Catalog.Stock("demo-tee", "M"))

	v, err := s.Vouchers.FindActiveByCode(ctx, "welcome10")
	require.NoError(t, err)
	require.NotNil(t, v)
	discount, err := v.Evaluate(600000, now)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), discount)

	visible, err := s.Vouchers.ListVisible(ctx, now)
	require.NoError(t, err)
	assert.Len(t, visible, 1)
}
