package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	_, ok := RunID(ctx)
	assert.False(t, ok)

	ctx = WithRunID(ctx, "01J0RUN")
	ctx = WithCrew(ctx, "engineering_team")
	ctx = WithTaskName(ctx, "code_task")

	runID, ok := RunID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "01J0RUN", runID)

	crew, _ := Crew(ctx)
	assert.Equal(t, "engineering_team", crew)

	task, _ := TaskName(ctx)
	assert.Equal(t, "code_task", task)
}

func TestContextKeys_EmptyValueIsAbsent(t *testing.T) {
	ctx := WithTaskName(context.Background(), "")
	_, ok := TaskName(ctx)
	assert.False(t, ok)
}
