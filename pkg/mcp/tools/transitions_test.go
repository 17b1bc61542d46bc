package tools

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskorchestrator/engine/pkg/models"
	"github.com/taskorchestrator/engine/pkg/services"
)

func TestRegisterWorkflowTools(t *testing.T) {
	s := newWorkflowServer(&WorkflowToolDeps{
		Orchestrator: &mockOrchestrator{},
		Progression:  &mockProgression{},
		Validator:    &mockValidator{},
		Entities:     &mockEntityReader{},
	})

	names := listToolNames(t, s)
	assert.True(t, names["request_transition"], "request_transition should be registered")
	assert.True(t, names["suggest_next_status"], "suggest_next_status should be registered")
	assert.True(t, names["validate_status"], "validate_status should be registered")
}

func TestRequestTransitionTool(t *testing.T) {
	taskID := uuid.New()

	t.Run("successful batch", func(t *testing.T) {
		orchestrator := &mockOrchestrator{
			batch: &services.BatchResult{
				Results: []services.TransitionResult{
					{
						ContainerID:    taskID,
						ContainerType:  models.ContainerTask,
						Trigger:        "start",
						Applied:        true,
						PreviousStatus: "pending",
						NewStatus:      "in-progress",
					},
				},
				Summary: services.BatchSummary{Total: 1, Succeeded: 1},
			},
		}
		s := newWorkflowServer(&WorkflowToolDeps{Orchestrator: orchestrator})

		isError, text := callTool(t, s, "request_transition", map[string]any{
			"transitions": []any{
				map[string]any{
					"container_id":   taskID.String(),
					"container_type": "task",
					"trigger":        "start",
				},
			},
		})
		require.False(t, isError, "unexpected error: %s", text)

		var resp struct {
			Success bool                  `json:"success"`
			Message string                `json:"message"`
			Data    *services.BatchResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(text), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "processed 1 transition(s): 1 succeeded, 0 failed", resp.Message)
		require.Len(t, resp.Data.Results, 1)
		assert.Equal(t, "in-progress", resp.Data.Results[0].NewStatus)

		require.Len(t, orchestrator.requests, 1)
		assert.Equal(t, taskID, orchestrator.requests[0].ContainerID)
		assert.Equal(t, models.ContainerTask, orchestrator.requests[0].ContainerType)
		assert.Equal(t, "start", orchestrator.requests[0].Trigger)
		assert.Nil(t, orchestrator.requests[0].Summary)
	})

	t.Run("summary is forwarded", func(t *testing.T) {
		orchestrator := &mockOrchestrator{
			batch: &services.BatchResult{Summary: services.BatchSummary{Total: 1, Succeeded: 1}},
		}
		s := newWorkflowServer(&WorkflowToolDeps{Orchestrator: orchestrator})

		isError, _ := callTool(t, s, "request_transition", map[string]any{
			"transitions": []any{
				map[string]any{
					"container_id":   taskID.String(),
					"container_type": "task",
					"trigger":        "complete",
					"summary":        "wrapped up",
				},
			},
		})
		require.False(t, isError)
		require.Len(t, orchestrator.requests, 1)
		require.NotNil(t, orchestrator.requests[0].Summary)
		assert.Equal(t, "wrapped up", *orchestrator.requests[0].Summary)
	})

	t.Run("partial failure flips success off", func(t *testing.T) {
		orchestrator := &mockOrchestrator{
			batch: &services.BatchResult{
				Results: []services.TransitionResult{
					{ContainerID: taskID, ContainerType: models.ContainerTask, Applied: true},
					{ContainerID: uuid.New(), ContainerType: models.ContainerTask, Error: "transition rejected"},
				},
				Summary: services.BatchSummary{Total: 2, Succeeded: 1, Failed: 1},
			},
		}
		s := newWorkflowServer(&WorkflowToolDeps{Orchestrator: orchestrator})

		isError, text := callTool(t, s, "request_transition", map[string]any{
			"transitions": []any{
				map[string]any{"container_id": taskID.String(), "container_type": "task", "trigger": "start"},
				map[string]any{"container_id": uuid.NewString(), "container_type": "task", "trigger": "complete"},
			},
		})
		require.False(t, isError, "per-item failures are reported in the payload, not as a tool error")

		var resp struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		}
		require.NoError(t, json.Unmarshal([]byte(text), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, "processed 2 transition(s): 1 succeeded, 1 failed", resp.Message)
	})
}

func TestRequestTransitionToolParameterErrors(t *testing.T) {
	valid := func() map[string]any {
		return map[string]any{
			"container_id":   uuid.NewString(),
			"container_type": "task",
			"trigger":        "start",
		}
	}

	tests := []struct {
		name        string
		args        map[string]any
		msgContains string
	}{
		{
			name:        "missing transitions",
			args:        map[string]any{},
			msgContains: "'transitions' must be an array",
		},
		{
			name:        "empty transitions",
			args:        map[string]any{"transitions": []any{}},
			msgContains: "cannot be empty",
		},
		{
			name:        "transitions not an array",
			args:        map[string]any{"transitions": "start"},
			msgContains: "'transitions' must be an array",
		},
		{
			name:        "item not an object",
			args:        map[string]any{"transitions": []any{"start"}},
			msgContains: "index 0 must be an object",
		},
		{
			name: "bad container id",
			args: map[string]any{"transitions": []any{
				map[string]any{"container_id": "not-a-uuid", "container_type": "task", "trigger": "start"},
			}},
			msgContains: "'container_id' must be a UUID",
		},
		{
			name: "bad container type",
			args: map[string]any{"transitions": []any{
				map[string]any{"container_id": uuid.NewString(), "container_type": "epic", "trigger": "start"},
			}},
			msgContains: "'container_type' must be one of",
		},
		{
			name: "missing trigger",
			args: map[string]any{"transitions": []any{
				map[string]any{"container_id": uuid.NewString(), "container_type": "task"},
			}},
			msgContains: "'trigger' is required",
		},
		{
			name: "non-string summary",
			args: map[string]any{"transitions": []any{
				map[string]any{"container_id": uuid.NewString(), "container_type": "task", "trigger": "complete", "summary": 42},
			}},
			msgContains: "'summary' must be a string",
		},
		{
			name: "error names the failing index",
			args: map[string]any{"transitions": []any{
				valid(),
				map[string]any{"container_id": uuid.NewString(), "container_type": "task"},
			}},
			msgContains: "index 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orchestrator := &mockOrchestrator{}
			s := newWorkflowServer(&WorkflowToolDeps{Orchestrator: orchestrator})

			isError, text := callTool(t, s, "request_transition", tt.args)
			require.True(t, isError)

			resp := decodeError(t, text)
			assert.True(t, resp.Error)
			assert.Equal(t, "invalid_parameters", resp.Code)
			assert.Contains(t, resp.Message, tt.msgContains)
			assert.Nil(t, orchestrator.requests, "orchestrator must not run on parse failure")
		})
	}
}

func TestRequestTransitionToolBatchCap(t *testing.T) {
	items := make([]any, 0, MaxBatchTransitionSize+1)
	for i := 0; i <= MaxBatchTransitionSize; i++ {
		items = append(items, map[string]any{
			"container_id":   uuid.NewString(),
			"container_type": "task",
			"trigger":        "start",
		})
	}

	s := newWorkflowServer(&WorkflowToolDeps{Orchestrator: &mockOrchestrator{}})
	isError, text := callTool(t, s, "request_transition", map[string]any{"transitions": items})
	require.True(t, isError)

	resp := decodeError(t, text)
	assert.Equal(t, "invalid_parameters", resp.Code)
	assert.Contains(t, resp.Message, fmt.Sprintf("maximum %d", MaxBatchTransitionSize))

	details, ok := resp.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(MaxBatchTransitionSize), details["max_allowed"])
	assert.Equal(t, float64(MaxBatchTransitionSize+1), details["received"])
}

func TestRequestTransitionToolSystemError(t *testing.T) {
	orchestrator := &mockOrchestrator{err: fmt.Errorf("connection refused")}
	s := newWorkflowServer(&WorkflowToolDeps{Orchestrator: orchestrator})

	// System failures surface as protocol-level errors, not structured
	// tool results.
	errMsg := callToolExpectingProtocolError(t, s, "request_transition", map[string]any{
		"transitions": []any{
			map[string]any{"container_id": uuid.NewString(), "container_type": "task", "trigger": "start"},
		},
	})
	assert.Contains(t, errMsg, "failed to process transitions")
}
