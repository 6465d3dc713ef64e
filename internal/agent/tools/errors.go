package tools

import "errors"

var errNotObject = errors.New("arguments must be a JSON object")
