// Package datamodel owns everything TR-098 vs TR-181: inferring which data
// model a device currently speaks and converting parameter paths between
// the two.
package datamodel

import (
	"strings"

	"github.com/crestwave/acs/internal/domain"
)

// Infer decides a device's data model from which parameter paths are
// populated. This is inference, not ground truth: a device that was never
// fully queried can look Unknown, and a freshly migrated device can look
// stale until its first post-migration Inform. Every caller must tolerate
// that.
func Infer(params []*domain.Parameter) domain.DataModel {
	var tr098, tr181 int
	for _, p := range params {
		switch {
		case strings.HasPrefix(p.Name, "Device."):
			tr181++
		case strings.HasPrefix(p.Name, "InternetGatewayDevice."):
			tr098++
		}
	}
	switch {
	case tr181 == 0 && tr098 == 0:
		return domain.DataModelUnknown
	case tr181 >= tr098:
		return domain.DataModelTR181
	default:
		return domain.DataModelTR098
	}
}

// InferFromNames is Infer over bare parameter names, for callers holding an
// Inform's parameter map rather than stored rows.
func InferFromNames(names map[string]domain.ParamValue) domain.DataModel {
	var tr098, tr181 int
	for name := range names {
		switch {
		case strings.HasPrefix(name, "Device."):
			tr181++
		case strings.HasPrefix(name, "InternetGatewayDevice."):
			tr098++
		}
	}
	switch {
	case tr181 == 0 && tr098 == 0:
		return domain.DataModelUnknown
	case tr181 >= tr098:
		return domain.DataModelTR181
	default:
		return domain.DataModelTR098
	}
}
