package llm

import "errors"

var (
	ErrModelNotFound      = errors.New("model key not found")
	ErrInference          = errors.New("inference failed")
	ErrRuntimeUnavailable = errors.New("model runtime unavailable")
)
