package query_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaydb/relaydb-go/query"
	"github.com/relaydb/relaydb-go/triplestore"
)

func TestCacheKeyIsStableAcrossMapIterationOrder(t *testing.T) {
	limit := 10
	desc := query.Description{
		"todos": {
			Where: triplestore.WhereClause{"completed": false, "text": "milk"},
			Limit: &limit,
		},
	}

	k1, err := query.CacheKey(desc)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		k2, err := query.CacheKey(desc)
		require.NoError(t, err)
		require.Equal(t, k1, k2)
	}
}

func TestCacheKeyDiffersOnDifferentWhere(t *testing.T) {
	k1, err := query.CacheKey(query.Description{"todos": {Where: triplestore.WhereClause{"completed": true}}})
	require.NoError(t, err)
	k2, err := query.CacheKey(query.Description{"todos": {Where: triplestore.WhereClause{"completed": false}}})
	require.NoError(t, err)
	require.NotEqual(t, k1, k2)
}
