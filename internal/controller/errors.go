package controller

import "errors"

// ErrInvalidRequest is returned for malformed lifecycle requests.
var ErrInvalidRequest = errors.New("invalid request")
