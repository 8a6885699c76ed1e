package notification

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TaskTypeDispatch is the asynq task type for dispatching a notification.
const TaskTypeDispatch = "notification:dispatch"

// NewDispatchTask creates a new asynq task carrying the full wire request.
// The request travels in the task payload so a worker attempt needs no
// store read before processing.
func NewDispatchTask(req *Request) (*asynq.Task, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling task payload: %w", err)
	}
	return asynq.NewTask(TaskTypeDispatch, payload), nil
}

// DecodeDispatchTask deserializes the wire request from a task payload.
// Channel normalization happens here: the wire value is case-insensitive.
func DecodeDispatchTask(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("unmarshaling task payload: %w", err)
	}
	return &req, nil
}
