package store

import "errors"

var ErrTokenNotFound = errors.New("token not found")
