package schema

import "strings"

// ValidateUserID ensures a user id matches [a-z0-9._-] with no
// normalization: ids name files on disk and log fields, so case or
// whitespace variants must not alias each other.
func ValidateUserID(userID UserID) error {
	raw := string(userID)
	if raw == "" || strings.TrimSpace(raw) != raw {
		return ErrInvalidUser
	}
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-':
		default:
			return ErrInvalidUser
		}
	}
	return nil
}
