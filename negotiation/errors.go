package negotiation

import "errors"

var (
	// ErrValidation 请求字段非法（轮次、报价等），应向调用方返回拒绝。
	ErrValidation = errors.New("invalid negotiation input")
	// ErrConfiguration 策略参数缺失或不一致，属于部署期错误，启动时即应失败。
	ErrConfiguration = errors.New("invalid negotiation policy")
)
