package cwmp

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NormalizeBool converts any boolean-ish input to the TR-069 wire
// convention "1"/"0". Accepts native bools, numeric strings, and word
// forms; anything unrecognized is "0".
func NormalizeBool(v interface{}) string {
	switch t := v.(type) {
	case bool:
		if t {
			return "1"
		}
		return "0"
	case int:
		if t != 0 {
			return "1"
		}
		return "0"
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "yes", "on":
			return "1"
		}
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil && n != 0 {
			return "1"
		}
		return "0"
	default:
		return "0"
	}
}

const commandKeyPrefix = "acs"

// EncodeCommandKey packs a task identity and timestamp into a Download/
// Upload command key. The device's eventual TransferComplete may arrive in
// an entirely new session, so this string is the only correlation handle.
func EncodeCommandKey(taskID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("%s-%s-%d", commandKeyPrefix, taskID.String(), at.Unix())
}

// DecodeCommandKey recovers the task ID from a command key produced by
// EncodeCommandKey. Foreign command keys (device-generated, other ACS)
// return false.
func DecodeCommandKey(key string) (uuid.UUID, bool) {
	parts := strings.Split(key, "-")
	// prefix + 5 uuid groups + timestamp
	if len(parts) != 7 || parts[0] != commandKeyPrefix {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.Join(parts[1:6], "-"))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
