package api

// StandardResponse is the envelope of every API reply.
type StandardResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func SuccessResponse(message string, data interface{}) StandardResponse {
	return StandardResponse{Status: "success", Message: message, Data: data}
}

func ErrorResponse(message string) StandardResponse {
	return StandardResponse{Status: "error", Message: message}
}

// ListResponse wraps a collection.
type ListResponse struct {
	Items interface{} `json:"items"`
	Count int         `json:"count"`
}
