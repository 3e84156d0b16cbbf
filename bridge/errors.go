package bridge

import "errors"

var (
	ErrInitialization   = errors.New("initialization failed")
	ErrNotInitialized   = errors.New("runner not initialized, call Initialize first")
	ErrExecutionTimeout = errors.New("execution timeout")
	ErrRemoteExecution  = errors.New("remote execution error")
	ErrClosed           = errors.New("runner closed")
	ErrInvalidArgv      = errors.New("argv must name an entry script")
)
