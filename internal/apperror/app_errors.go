package apperror

import "errors"

var (
	ErrUnknownAction   = errors.New("unknown action")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrNotWebSocket    = errors.New("not a websocket upgrade")
	ErrRedisAddrNotSet = errors.New("redis address string is empty")
)
