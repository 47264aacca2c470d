package queue

import "errors"

var (
	ErrDuplicateActiveToken = errors.New("patient already holds a waiting token")
	ErrEmptyQueue           = errors.New("no tokens waiting")
	ErrInvalidTransition    = errors.New("token state does not allow this action")
	ErrUnavailable          = errors.New("storage unavailable")
)
