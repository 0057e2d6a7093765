package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DataModel is the TR-069 data model a device speaks. It is inferred from
// which parameter paths are populated, never stored as ground truth, so
// callers must tolerate the inference being stale.
type DataModel string

const (
	DataModelTR098   DataModel = "TR-098"
	DataModelTR181   DataModel = "TR-181"
	DataModelUnknown DataModel = "unknown"
)

// RootPath returns the parameter path root for the data model.
func (m DataModel) RootPath() string {
	switch m {
	case DataModelTR181:
		return "Device."
	case DataModelTR098:
		return "InternetGatewayDevice."
	default:
		return ""
	}
}

type Device struct {
	ID              uuid.UUID  `json:"id"`
	DeviceKey       string     `json:"device_key"`
	Manufacturer    string     `json:"manufacturer"`
	OUI             string     `json:"oui"`
	ProductClass    string     `json:"product_class"`
	SerialNumber    string     `json:"serial_number"`
	SoftwareVersion string     `json:"software_version"`
	HardwareVersion string     `json:"hardware_version"`
	IPAddress       string     `json:"ip_address"`
	Online          bool       `json:"online"`
	LastInform      *time.Time `json:"last_inform"`

	ConnectionRequestURL      string `json:"connection_request_url"`
	ConnectionRequestUser     string `json:"-"`
	ConnectionRequestPassword string `json:"-"`

	XMPPJID     string `json:"xmpp_jid,omitempty"`
	XMPPEnabled bool   `json:"xmpp_enabled"`
	UDPAddress  string `json:"udp_address,omitempty"`

	SubscriberID string   `json:"subscriber_id,omitempty"`
	Tags         []string `json:"tags"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeviceKeyFor builds the deterministic identity key for a CPE. Two records
// may transiently exist for one physical unit across a data-model migration
// because a changed OUI yields a new key.
func DeviceKeyFor(oui, productClass, serialNumber string) string {
	return fmt.Sprintf("%s-%s-%s", oui, productClass, serialNumber)
}

func (d *Device) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// WithTag returns the device's tag set with tag appended, without duplicates.
func (d *Device) WithTag(tag string) []string {
	if d.HasTag(tag) {
		return d.Tags
	}
	return append(append([]string{}, d.Tags...), tag)
}

type DeviceFilter struct {
	Manufacturer *string
	ProductClass *string
	OUI          *string
	Online       *bool
	Tags         []string
	Page         int
	PerPage      int
	SortBy       string
	SortOrder    string
}

type DeviceRepository interface {
	Create(ctx context.Context, device *Device) error
	GetByID(ctx context.Context, id uuid.UUID) (*Device, error)
	GetByKey(ctx context.Context, key string) (*Device, error)
	// FindSiblings returns devices sharing serial number and product class
	// but carrying a different device key. Used for post-migration identity
	// reconciliation when an OUI change re-keys a physical unit.
	FindSiblings(ctx context.Context, serialNumber, productClass, excludeKey string) ([]*Device, error)
	List(ctx context.Context, filter DeviceFilter) ([]*Device, int, error)
	Update(ctx context.Context, device *Device) error
	UpdateTags(ctx context.Context, id uuid.UUID, tags []string) error
	UpdateOnline(ctx context.Context, id uuid.UUID, online bool) error
	SetLastInform(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountOnline(ctx context.Context) (online int, total int, err error)
}
