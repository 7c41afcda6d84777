package route

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchLongestPrefixWins(t *testing.T) {
	table := NewTable([]Entry{
		{RouteID: "orders", Prefix: "/api/orders", Service: "orders-svc", Target: "http://orders"},
		{RouteID: "orders-admin", Prefix: "/api/orders/admin", Service: "orders-admin-svc", Target: "http://orders-admin"},
	})

	rt, rest, ok := table.Match("/api/orders/admin/123")
	require.True(t, ok)
	require.Equal(t, "orders-admin", rt.ID)
	require.Equal(t, "/123", rest)

	rt, rest, ok = table.Match("/api/orders/456")
	require.True(t, ok)
	require.Equal(t, "orders", rt.ID)
	require.Equal(t, "/456", rest)
}

func TestMatchNoRouteFound(t *testing.T) {
	table := NewTable([]Entry{{RouteID: "orders", Prefix: "/api/orders", Target: "http://orders"}})
	_, _, ok := table.Match("/api/users")
	require.False(t, ok)
}

func TestMatchStripsPrefixExactly(t *testing.T) {
	table := NewTable([]Entry{{RouteID: "orders", Prefix: "/api/orders", Target: "http://orders"}})
	_, rest, ok := table.Match("/api/orders")
	require.True(t, ok)
	require.Equal(t, "/", rest)
}
