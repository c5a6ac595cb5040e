package journal

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/crossroads/internal/ir"
)

// marshalBody stores a body as canonical JSON TEXT. A nil body is stored as
// an empty array.
func marshalBody(body ir.IRArray) (string, error) {
	if body == nil {
		body = ir.IRArray{}
	}
	data, err := ir.MarshalCanonical(body)
	if err != nil {
		return "", fmt.Errorf("marshal body: %w", err)
	}
	return string(data), nil
}

// unmarshalBody goes through IRArray.UnmarshalJSON so large integers keep
// their precision.
func unmarshalBody(data string) (ir.IRArray, error) {
	if data == "" || data == "[]" {
		return ir.IRArray{}, nil
	}
	var body ir.IRArray
	if err := json.Unmarshal([]byte(data), &body); err != nil {
		return nil, fmt.Errorf("unmarshal body: %w", err)
	}
	return body, nil
}
