package orders

import "github.com/google/uuid"

// ValidID reports whether id has the canonical uuid form every key in the
// store uses. Callers turn a malformed id into a lookup miss instead of
// sending it to Postgres.
func ValidID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
