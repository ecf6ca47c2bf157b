package opentmi

import "regexp"

var objectIDRe = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// isObjectID reports whether value looks like a MongoDB ObjectID.
func isObjectID(value string) bool {
	return objectIDRe.MatchString(value)
}
