package job

import (
	"encoding/json"

	"github.com/joshu-sajeev/queuectl/common"
	"github.com/joshu-sajeev/queuectl/internal/dto"
	"github.com/joshu-sajeev/queuectl/middleware"
)

func decodePayload[T any](raw []byte) (*T, error) {
	var payload T

	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, common.BadRequest("invalid payload: %v", err)
	}

	if err := middleware.Validate(&payload); err != nil {
		return nil, err
	}

	return &payload, nil
}

// ParseEnqueue decodes and validates an enqueue payload given as raw JSON,
// e.g. `{"id":"job1","command":"sleep 2","max_retries":3}`.
func ParseEnqueue(raw []byte) (*dto.EnqueueDTO, error) {
	return decodePayload[dto.EnqueueDTO](raw)
}
