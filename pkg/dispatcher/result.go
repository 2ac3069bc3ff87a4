package dispatcher

import "encoding/json"

// Result is the structured reply produced for every tool invocation. Extra
// handler-specific fields are flattened next to success/message on the wire.
type Result struct {
	Success bool
	Message string
	Fields  map[string]interface{}
}

// Succeed builds a success result.
func Succeed(message string) Result {
	return Result{Success: true, Message: message}
}

// Fail builds a failure result.
func Fail(message string) Result {
	return Result{Success: false, Message: message}
}

// With attaches a handler-specific field and returns the result for chaining.
func (r Result) With(key string, value interface{}) Result {
	if r.Fields == nil {
		r.Fields = make(map[string]interface{})
	}
	r.Fields[key] = value
	return r
}

// Field reads a handler-specific field.
func (r Result) Field(key string) (interface{}, bool) {
	v, ok := r.Fields[key]
	return v, ok
}

// MarshalJSON flattens Fields into the top-level object. The success and
// message keys always win over handler fields of the same name.
func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Fields)+2)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["success"] = r.Success
	out["message"] = r.Message
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Result) UnmarshalJSON(data []byte) error {
	raw := make(map[string]interface{})
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["success"].(bool); ok {
		r.Success = v
	}
	if v, ok := raw["message"].(string); ok {
		r.Message = v
	}
	delete(raw, "success")
	delete(raw, "message")
	if len(raw) > 0 {
		r.Fields = raw
	}
	return nil
}
