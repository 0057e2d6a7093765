package cwmp

import (
	"time"

	"github.com/crestwave/acs/internal/domain"
)

// CWMP namespace URIs by protocol version.
const (
	NamespaceCWMP10 = "urn:dslforum-org:cwmp-1-0"
	NamespaceCWMP11 = "urn:dslforum-org:cwmp-1-1"
	NamespaceCWMP12 = "urn:dslforum-org:cwmp-1-2"
)

const (
	nsSoapEnv = "http://schemas.xmlsoap.org/soap/envelope/"
	nsSoapEnc = "http://schemas.xmlsoap.org/soap/encoding/"
	nsXSD     = "http://www.w3.org/2001/XMLSchema"
	nsXSI     = "http://www.w3.org/2001/XMLSchema-instance"
)

// Event is one entry of an Inform's event list.
type Event struct {
	Code       string `json:"code"`
	CommandKey string `json:"command_key,omitempty"`
}

// Inform is the decoded device-initiated session opener.
type Inform struct {
	CwmpID       string
	Namespace    string
	Manufacturer string
	OUI          string
	ProductClass string
	SerialNumber string
	Events       []Event
	Parameters   map[string]domain.ParamValue
	MaxEnvelopes int
	CurrentTime  string
	RetryCount   int
}

// DeviceKey derives the device identity key from the Inform's DeviceId block.
func (i *Inform) DeviceKey() string {
	return domain.DeviceKeyFor(i.OUI, i.ProductClass, i.SerialNumber)
}

// HasEvent reports whether the inform carries the given event code prefix
// ("0 BOOTSTRAP", "1 BOOT", "7 TRANSFER COMPLETE", ...).
func (i *Inform) HasEvent(code string) bool {
	for _, e := range i.Events {
		if e.Code == code {
			return true
		}
	}
	return false
}

type ResponseKind string

const (
	KindGetParameterValuesResponse ResponseKind = "GetParameterValuesResponse"
	KindSetParameterValuesResponse ResponseKind = "SetParameterValuesResponse"
	KindGetParameterNamesResponse  ResponseKind = "GetParameterNamesResponse"
	KindTransferComplete           ResponseKind = "TransferComplete"
	KindAddObjectResponse          ResponseKind = "AddObjectResponse"
	KindDeleteObjectResponse       ResponseKind = "DeleteObjectResponse"
	KindGetRPCMethods              ResponseKind = "GetRPCMethods"
	KindFault                      ResponseKind = "Fault"
	KindEmpty                      ResponseKind = "Empty"
)

// FaultDetail describes either a SOAP fault or a CWMP FaultStruct.
type FaultDetail struct {
	Code   string `json:"code"`
	String string `json:"string"`
}

// TransferComplete is the decoded payload of a TransferComplete RPC. The
// command key correlates it back to the Download/Upload task that started
// the transfer, possibly in an earlier session.
type TransferComplete struct {
	CommandKey   string       `json:"command_key"`
	Fault        *FaultDetail `json:"fault,omitempty"`
	StartTime    time.Time    `json:"start_time"`
	CompleteTime time.Time    `json:"complete_time"`
}

// Response is a decoded device message other than Inform.
type Response struct {
	Kind      ResponseKind
	CwmpID    string
	Namespace string

	// GetParameterValuesResponse
	Parameters map[string]domain.ParamValue
	// SetParameterValuesResponse, AddObjectResponse, DeleteObjectResponse
	Status int
	// GetParameterNamesResponse: name -> writable
	Names map[string]bool
	// AddObjectResponse
	InstanceNumber int

	Transfer *TransferComplete
	Fault    *FaultDetail
}
