package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/angelmondragon/platewise-backend/pkg/errors"
	"github.com/google/uuid"
)

// ParseQueryInt reads an integer query parameter, falling back to def when
// absent and clamping failures into a validation error.
func ParseQueryInt(r *http.Request, key string, def, min, max int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(errors.CodeValidation, "invalid query parameter").
			WithDetails(map[string]string{key: "must be an integer"})
	}
	if value < min || value > max {
		return 0, errors.New(errors.CodeValidation, "query parameter out of range").
			WithDetails(map[string]string{key: "must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max)})
	}
	return value, nil
}

// ParseQueryUUIDList reads a comma-separated list of UUIDs. Absent or empty
// values return a nil slice.
func ParseQueryUUIDList(r *http.Request, key string) ([]uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	ids := make([]uuid.UUID, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, errors.New(errors.CodeValidation, "invalid query parameter").
				WithDetails(map[string]string{key: "must be a comma-separated list of UUIDs"})
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ParseURLUUID reads a UUID path segment already extracted by the router.
func ParseURLUUID(value, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, errors.New(errors.CodeValidation, "invalid path parameter").
			WithDetails(map[string]string{name: "must be a valid UUID"})
	}
	return id, nil
}
