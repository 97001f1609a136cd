package api

import "errors"

var errInvalidPayload = errors.New("invalid webhook payload")
