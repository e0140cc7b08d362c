package registry

import "fmt"

// Redis key patterns
const (
	IdentityPattern = "robot_identity:%s"
	IdentitySet     = "robot_identities"
)

// IdentityKey is the hash key of one robot identity.
func IdentityKey(serial string) string {
	return fmt.Sprintf(IdentityPattern, serial)
}
