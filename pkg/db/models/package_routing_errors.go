package models

import "errors"

var (
	errRoutingPriority         = errors.New("routing priority must be positive")
	errRoutingAutoManual       = errors.New("auto routing cannot target the manual provider type")
	errRoutingMissingProvider  = errors.New("external auto routing requires a primary provider")
	errRoutingMissingCodeGroup = errors.New("code-backed auto routing requires a code group")
)
