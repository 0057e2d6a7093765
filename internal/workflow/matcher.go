// Package workflow implements group-scoped device automation: rule-based
// group membership, the per-device workflow execution engine with dependency
// chaining, and the periodic scheduler.
package workflow

import (
	"context"
	"strconv"
	"strings"

	"github.com/crestwave/acs/internal/domain"
)

// deviceField resolves a rule field name to the device attribute it reads.
// Unknown fields resolve to the empty string, which makes the rule false for
// every operator except not_equals and not_contains.
func deviceField(d *domain.Device, field string) string {
	switch field {
	case "manufacturer":
		return d.Manufacturer
	case "oui":
		return d.OUI
	case "product_class":
		return d.ProductClass
	case "serial_number":
		return d.SerialNumber
	case "software_version":
		return d.SoftwareVersion
	case "hardware_version":
		return d.HardwareVersion
	case "device_key":
		return d.DeviceKey
	case "subscriber_id":
		return d.SubscriberID
	case "ip_address":
		return d.IPAddress
	case "online":
		return strconv.FormatBool(d.Online)
	default:
		return ""
	}
}

// evalRule applies one predicate. String comparisons are case-insensitive;
// gt/lt compare numerically when both sides parse, lexically otherwise so
// version strings still order sensibly.
func evalRule(d *domain.Device, r domain.GroupRule) bool {
	if r.Operator == domain.OpHasTag {
		return d.HasTag(r.Value)
	}

	got := strings.ToLower(deviceField(d, r.Field))
	want := strings.ToLower(r.Value)

	switch r.Operator {
	case domain.OpEquals:
		return got == want
	case domain.OpNotEquals:
		return got != want
	case domain.OpContains:
		return strings.Contains(got, want)
	case domain.OpNotContains:
		return !strings.Contains(got, want)
	case domain.OpStartsWith:
		return strings.HasPrefix(got, want)
	case domain.OpEndsWith:
		return strings.HasSuffix(got, want)
	case domain.OpGreaterThan:
		if a, errA := strconv.ParseFloat(got, 64); errA == nil {
			if b, errB := strconv.ParseFloat(want, 64); errB == nil {
				return a > b
			}
		}
		return got > want
	case domain.OpLessThan:
		if a, errA := strconv.ParseFloat(got, 64); errA == nil {
			if b, errB := strconv.ParseFloat(want, 64); errB == nil {
				return a < b
			}
		}
		return got < want
	case domain.OpIn:
		for _, candidate := range strings.Split(want, ",") {
			if got == strings.TrimSpace(candidate) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Matches reports whether a device satisfies a group's rule set. A group
// with no rules matches nothing.
func Matches(d *domain.Device, g *domain.DeviceGroup) bool {
	if len(g.Rules) == 0 {
		return false
	}
	for _, r := range g.Rules {
		ok := evalRule(d, r)
		if g.MatchType == domain.MatchAny && ok {
			return true
		}
		if g.MatchType != domain.MatchAny && !ok {
			return false
		}
	}
	return g.MatchType != domain.MatchAny
}

// Matcher computes group membership on demand against live device rows.
type Matcher struct {
	devices domain.DeviceRepository
	groups  domain.GroupRepository
}

func NewMatcher(devices domain.DeviceRepository, groups domain.GroupRepository) *Matcher {
	return &Matcher{devices: devices, groups: groups}
}

// GroupsFor returns the groups a device currently belongs to, highest
// priority first.
func (m *Matcher) GroupsFor(ctx context.Context, d *domain.Device) ([]*domain.DeviceGroup, error) {
	groups, err := m.groups.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*domain.DeviceGroup
	for _, g := range groups {
		if Matches(d, g) {
			out = append(out, g)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Priority > out[j-1].Priority; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

// Preview evaluates a group definition against the fleet without persisting
// anything, so an operator can see membership before saving rule changes.
func (m *Matcher) Preview(ctx context.Context, g *domain.DeviceGroup, limit int) ([]*domain.Device, int, error) {
	devices, _, err := m.devices.List(ctx, domain.DeviceFilter{})
	if err != nil {
		return nil, 0, err
	}
	var matched []*domain.Device
	for _, d := range devices {
		if Matches(d, g) {
			matched = append(matched, d)
		}
	}
	total := len(matched)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}
