package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDependencyOrder(t *testing.T) {
	order, err := dependencyOrder([]Resource{
		{Type: "subscriptions", DependsOn: []string{"customers", "prices"}},
		{Type: "prices", DependsOn: []string{"products"}},
		{Type: "customers"},
		{Type: "products"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"customers", "products", "prices", "subscriptions"}, order)
}

func TestDependencyOrder_Deterministic(t *testing.T) {
	resources := []Resource{
		{Type: "b"},
		{Type: "c"},
		{Type: "a"},
	}

	first, err := dependencyOrder(resources)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := dependencyOrder(resources)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestDependencyOrder_Cycle(t *testing.T) {
	_, err := dependencyOrder([]Resource{
		{Type: "a", DependsOn: []string{"b"}},
		{Type: "b", DependsOn: []string{"a"}},
	})
	assert.ErrorContains(t, err, "cycle")
}

func TestDependencyOrder_UndeclaredDependency(t *testing.T) {
	_, err := dependencyOrder([]Resource{
		{Type: "subscriptions", DependsOn: []string{"customers"}},
	})
	assert.ErrorContains(t, err, "undeclared")
}

func TestDependencyOrder_DuplicateType(t *testing.T) {
	_, err := dependencyOrder([]Resource{
		{Type: "customers"},
		{Type: "customers"},
	})
	assert.ErrorContains(t, err, "twice")
}
