package http

// DataBody is the success envelope: {"data": ...}.
type DataBody struct {
	Data interface{} `json:"data"`
}

// ErrorBody is the failure envelope: {"error": "..."}.
type ErrorBody struct {
	Error   string            `json:"error"`
	Details []ValidationError `json:"details,omitempty"`
}

// ValidationError represents validation error detail.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_ONEOF"`
	Field   string                 `json:"field,omitempty" example:"sort"`
	Message string                 `json:"message,omitempty" example:"sort must be one of: price, rsi"`
	Params  map[string]interface{} `json:"params,omitempty"`
}
