package cwmp

import (
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/crestwave/acs/internal/domain"
)

// requestCounter backs ACS-initiated cwmp:ID generation. Seeded once per
// process with a random value; uniqueness only needs to hold within one
// device's session history, so a process-scoped counter is sufficient and
// deliberately not anything heavier.
var requestCounter atomic.Uint64

func init() {
	requestCounter.Store(uint64(rand.Uint32()))
}

// NextRequestID returns a fresh cwmp:ID for an ACS-initiated request.
func NextRequestID() string {
	return fmt.Sprintf("acs_%d", requestCounter.Add(1))
}

// Session holds the protocol state of one CWMP conversation: the echoed
// cwmp:ID, the negotiated namespace, and the device context used for
// family-specific version rules. It owns no storage; the session layer
// hydrates it from the store at the start of each HTTP request and persists
// it after.
type Session struct {
	cwmpID    string
	namespace string
	device    *domain.Device
	rules     []NamespaceRule
	msgCount  int
}

// NewSession returns a fresh session using the given namespace rule table.
func NewSession(rules []NamespaceRule) *Session {
	return &Session{rules: rules}
}

func (s *Session) CwmpID() string      { return s.cwmpID }
func (s *Session) SetCwmpID(id string) { s.cwmpID = id }

func (s *Session) SetNamespace(ns string) { s.namespace = ns }

// Namespace resolves the CWMP namespace for outbound messages:
// session-observed first, then the device-family rule table, then 1.0.
func (s *Session) Namespace() string {
	if s.namespace != "" {
		return s.namespace
	}
	if s.device != nil {
		if ns, ok := ResolveNamespace(s.rules, s.device); ok {
			return ns
		}
	}
	return NamespaceCWMP10
}

// AttachDevice associates a device identity with the session so version
// rules can apply before any inbound message has been observed.
func (s *Session) AttachDevice(d *domain.Device) { s.device = d }

func (s *Session) Device() *domain.Device { return s.device }

func (s *Session) MessageCount() int { return s.msgCount }

func (s *Session) bumpMessageCount() { s.msgCount++ }

// Restore hydrates protocol state previously persisted by the session
// layer. HTTP requests are stateless and successive messages of one
// conversation may be handled by different processes.
func (s *Session) Restore(state *domain.CwmpSession) {
	if state == nil {
		return
	}
	s.cwmpID = state.CwmpID
	s.namespace = state.Namespace
	s.msgCount = state.MessageCount
}

// State exports the session for persistence.
func (s *Session) State(deviceKey string) *domain.CwmpSession {
	return &domain.CwmpSession{
		DeviceKey:    deviceKey,
		CwmpID:       s.cwmpID,
		Namespace:    s.namespace,
		MessageCount: s.msgCount,
	}
}
