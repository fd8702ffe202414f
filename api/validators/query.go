package validators

import (
	"net/http"
	"strconv"

	pkgerrors "github.com/oyunkod/oyunkod-backend/pkg/errors"
)

// ParseQueryInt reads an optional integer query parameter, clamping it
// to [min, max]. Absent parameters return def.
func ParseQueryInt(r *http.Request, name string, def, min, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, name+" must be an integer")
	}
	if value < min {
		value = min
	}
	if value > max {
		value = max
	}
	return value, nil
}
