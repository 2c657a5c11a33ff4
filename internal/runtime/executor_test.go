package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-run/poolrt/pkg/types"
)

func TestDefaultExecutorFactoryRoundTripsScalarFields(t *testing.T) {
	factory := DefaultExecutorFactory()
	exec, err := factory(types.ModelName("ORDER"))
	require.NoError(t, err)

	result, err := exec.Execute(context.Background(), "addItem", map[string]any{
		"id":     int64(7),
		"active": true,
		"name":   "widget",
		"nested": map[string]any{"dropped": true},
	})
	require.NoError(t, err)

	obj, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(7), obj["id"])
	assert.Equal(t, true, obj["active"])
	assert.Equal(t, "widget", obj["name"])
	assert.NotContains(t, obj, "nested")
}

func TestDefaultExecutorFactoryRejectsNonObjectData(t *testing.T) {
	factory := DefaultExecutorFactory()
	exec, err := factory(types.ModelName("ORDER"))
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), "addItem", 42)
	assert.Error(t, err)
}
