// Package dto defines the HTTP response envelope and error codes shared by
// every handler.
package dto

// Response is the standard API response envelope.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorInfo carries error details.
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Meta carries pagination metadata.
type Meta struct {
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// NewSuccessResponse creates a success response.
func NewSuccessResponse(data any) Response {
	return Response{Success: true, Data: data}
}

// NewSuccessResponseWithMeta creates a success response with pagination meta.
func NewSuccessResponseWithMeta(data any, total int64, limit, offset int) Response {
	return Response{
		Success: true,
		Data:    data,
		Meta:    &Meta{Total: total, Limit: limit, Offset: offset},
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(code, message string) Response {
	return Response{
		Success: false,
		Error:   &ErrorInfo{Code: code, Message: message},
	}
}

// NewErrorResponseWithRequestID creates an error response carrying the
// request ID for correlation.
func NewErrorResponseWithRequestID(code, message, requestID string) Response {
	return Response{
		Success: false,
		Error:   &ErrorInfo{Code: code, Message: message, RequestID: requestID},
	}
}
