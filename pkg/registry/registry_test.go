package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	reg := Default()
	require.NotEmpty(t, reg.Activities)

	for _, task := range []string{
		"dispatch-request", "provider-reply", "cancel-request",
		"redispatch-request", "complete-request", "analyze-conversation",
	} {
		a, ok := reg.ByTaskType(task)
		require.True(t, ok, task)
		assert.NotEmpty(t, a.InputSchema, task)
	}

	_, ok := reg.ByTaskType("unknown")
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		reg     ActivityRegistry
		wantErr string
	}{
		{"bad id", ActivityRegistry{Activities: []Activity{{ID: "Dispatch", TaskType: "x"}}}, "domain.subdomain.action"},
		{"missing task", ActivityRegistry{Activities: []Activity{{ID: "a.b.c"}}}, "taskType"},
		{"duplicate id", ActivityRegistry{Activities: []Activity{{ID: "a.b.c", TaskType: "x"}, {ID: "a.b.c", TaskType: "y"}}}, "duplicate activity"},
		{"duplicate task", ActivityRegistry{Activities: []Activity{{ID: "a.b.c", TaskType: "x"}, {ID: "a.b.d", TaskType: "x"}}}, "duplicate task"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.reg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activities.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"2","activities":[{"id":"dispatch.request.create","taskType":"dispatch-request"}]}`), 0o600))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, "2", reg.Version)

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
