package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const maxTriggerBody = 4 << 10

const triggerSchema = `{
  "type": "object",
  "properties": {
    "reason": {"type": "string", "minLength": 1, "maxLength": 500},
    "force":  {"type": "boolean"}
  },
  "additionalProperties": false
}`

var triggerSchemaLoader = gojsonschema.NewStringLoader(triggerSchema)

// TriggerBody is the failover trigger request
type TriggerBody struct {
	Reason string `json:"reason"`
	Force  bool   `json:"force"`
}

// decodeTrigger validates the body against the trigger schema. An empty
// body is an empty request.
func decodeTrigger(r *http.Request) (TriggerBody, error) {
	var body TriggerBody

	data, err := io.ReadAll(io.LimitReader(r.Body, maxTriggerBody+1))
	if err != nil {
		return body, fmt.Errorf("failed to read request body: %w", err)
	}
	if len(data) > maxTriggerBody {
		return body, fmt.Errorf("request body too large (max: %d bytes)", maxTriggerBody)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return body, nil
	}

	result, err := gojsonschema.Validate(triggerSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return body, fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return body, fmt.Errorf("validation failed: %s", strings.Join(errs, "; "))
	}

	if err := json.Unmarshal(data, &body); err != nil {
		return body, fmt.Errorf("decode body: %w", err)
	}
	return body, nil
}
