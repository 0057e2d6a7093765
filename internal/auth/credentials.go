package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateConnectionCredentials returns a username/password pair the ACS
// provisions into a device's ManagementServer subtree so that later
// connection requests can be authenticated with digest auth.
func GenerateConnectionCredentials(deviceKey string) (user, password string, err error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate credentials: %w", err)
	}
	return fmt.Sprintf("acs-%s", deviceKey), hex.EncodeToString(buf), nil
}
