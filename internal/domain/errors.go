package domain

import "errors"

// Boundary validation failures surfaced as 400s by the API layer.
var ErrInvalidRequest = errors.New("invalid request")
