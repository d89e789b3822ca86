package model

import "errors"

// ErrNotFound is wrapped by every "row does not exist" error of the stores.
var ErrNotFound = errors.New("not found")
