package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type MatchType string

const (
	MatchAll MatchType = "all"
	MatchAny MatchType = "any"
)

type RuleOperator string

const (
	OpEquals      RuleOperator = "equals"
	OpNotEquals   RuleOperator = "not_equals"
	OpContains    RuleOperator = "contains"
	OpNotContains RuleOperator = "not_contains"
	OpStartsWith  RuleOperator = "starts_with"
	OpEndsWith    RuleOperator = "ends_with"
	OpGreaterThan RuleOperator = "gt"
	OpLessThan    RuleOperator = "lt"
	OpIn          RuleOperator = "in"
	OpHasTag      RuleOperator = "has_tag"
)

// GroupRule is one field/operator/value predicate over device attributes.
type GroupRule struct {
	Field    string       `json:"field"`
	Operator RuleOperator `json:"operator"`
	Value    string       `json:"value"`
}

// DeviceGroup is a named predicate. Membership is computed on demand by
// re-evaluating the rules against current device attributes, never stored.
type DeviceGroup struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	MatchType   MatchType   `json:"match_type"`
	Rules       []GroupRule `json:"rules"`
	Priority    int         `json:"priority"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type GroupRepository interface {
	Create(ctx context.Context, group *DeviceGroup) error
	GetByID(ctx context.Context, id uuid.UUID) (*DeviceGroup, error)
	List(ctx context.Context) ([]*DeviceGroup, error)
	Update(ctx context.Context, group *DeviceGroup) error
	Delete(ctx context.Context, id uuid.UUID) error
}
