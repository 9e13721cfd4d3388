package response

// 业务状态码，与 HTTP 语义保持一致
const (
	CodeOK                 = 0
	CodeBadRequest         = 400
	CodeTooManyRequests    = 429
	CodeInternal           = 500
	CodeBadGateway         = 502
	CodeServiceUnavailable = 503
)
