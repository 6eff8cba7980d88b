package models

// APIStatus represents the status of an inspection API response.
type APIStatus string

const (
	// APIStatusOK indicates a request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates a request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse is the JSON envelope used by the inspection API.
type APIResponse struct {
	Status  APIStatus   `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: APIStatusError, Message: message}
}
