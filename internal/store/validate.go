package store

import "fmt"

// MaxUserIDLength is the maximum allowed length for user identifier
// strings. Matches the index-friendly column width in both backends.
const MaxUserIDLength = 255

// ValidateUserID checks that a user identifier does not exceed MaxUserIDLength.
func ValidateUserID(id string) error {
	if len(id) > MaxUserIDLength {
		return fmt.Errorf("user identifier too long: %d chars (max %d)", len(id), MaxUserIDLength)
	}
	return nil
}
