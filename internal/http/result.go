package httpapi

// Result 管理面接口的统一响应封装
// - code: 2000 成功，-1 失败
// - type: 'success' | 'error'
// 遥测接入与图表查询接口不走这个封装（见各 handler 的响应约定）
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message, Result: nil}
}
