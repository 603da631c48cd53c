package model

import "errors"

// ErrNotFound is returned by event sources when a user or course does not exist.
var ErrNotFound = errors.New("not found")
