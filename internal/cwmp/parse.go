package cwmp

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/crestwave/acs/internal/domain"
)

// extractSession pulls the CWMP namespace and cwmp:ID out of the document
// before any method-specific parsing. Both are cached on the session so the
// next outbound message echoes them.
func (s *Session) extractSession(root *xmlNode) (id, namespace string) {
	// Namespace: first try xmlns declarations on the root element, then
	// fall back to scanning every attribute value for a CWMP URN. Some
	// firmwares declare the namespace on the Body instead of the Envelope.
	for _, a := range root.attrs {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			if strings.HasPrefix(a.Value, "urn:dslforum-org:cwmp") {
				namespace = a.Value
				break
			}
		}
	}
	if namespace == "" {
		namespace = scanForCwmpURN(root)
	}

	// cwmp:ID lives in the SOAP header; check Header/ID, then any ID
	// element anywhere, since prefixing varies across vendors.
	if header := root.childLocal("Header"); header != nil {
		if idNode := header.childLocal("ID"); idNode != nil {
			id = strings.TrimSpace(idNode.text)
		}
	}
	if id == "" {
		if idNode := root.findLocal("ID"); idNode != nil {
			id = strings.TrimSpace(idNode.text)
		}
	}

	if namespace != "" {
		s.SetNamespace(namespace)
	}
	if id != "" {
		s.SetCwmpID(id)
	}
	return id, namespace
}

func scanForCwmpURN(n *xmlNode) string {
	for _, a := range n.attrs {
		if strings.HasPrefix(a.Value, "urn:dslforum-org:cwmp") {
			return a.Value
		}
	}
	for _, c := range n.children {
		if ns := scanForCwmpURN(c); ns != "" {
			return ns
		}
	}
	return ""
}

// ParseInform decodes a device Inform. Malformed XML or a missing DeviceId
// block is fatal for the message; everything optional degrades to zero
// values.
func (s *Session) ParseInform(body []byte) (*Inform, error) {
	root, err := parseXML(body)
	if err != nil {
		return nil, err
	}
	id, ns := s.extractSession(root)

	informNode := root.findLocal("Inform")
	if informNode == nil {
		return nil, fmt.Errorf("parse inform: no Inform element in body")
	}

	deviceID := informNode.childLocal("DeviceId")
	if deviceID == nil {
		return nil, fmt.Errorf("parse inform: missing DeviceId")
	}

	inf := &Inform{
		CwmpID:       id,
		Namespace:    ns,
		Manufacturer: deviceID.childText("Manufacturer"),
		OUI:          deviceID.childText("OUI"),
		ProductClass: deviceID.childText("ProductClass"),
		SerialNumber: deviceID.childText("SerialNumber"),
		Parameters:   map[string]domain.ParamValue{},
	}
	if inf.OUI == "" || inf.SerialNumber == "" {
		return nil, fmt.Errorf("parse inform: DeviceId missing OUI or SerialNumber")
	}

	if events := informNode.childLocal("Event"); events != nil {
		for _, es := range events.childrenLocal("EventStruct") {
			inf.Events = append(inf.Events, Event{
				Code:       es.childText("EventCode"),
				CommandKey: es.childText("CommandKey"),
			})
		}
	}

	if plist := informNode.childLocal("ParameterList"); plist != nil {
		for _, pvs := range plist.childrenLocal("ParameterValueStruct") {
			name := pvs.childText("Name")
			if name == "" {
				continue
			}
			var value, typ string
			if vn := pvs.childLocal("Value"); vn != nil {
				value = strings.TrimSpace(vn.text)
				typ = vn.attrLocal("type")
			}
			inf.Parameters[name] = domain.ParamValue{Value: value, Type: typ}
		}
	}

	inf.MaxEnvelopes, _ = strconv.Atoi(informNode.childText("MaxEnvelopes"))
	inf.CurrentTime = informNode.childText("CurrentTime")
	inf.RetryCount, _ = strconv.Atoi(informNode.childText("RetryCount"))

	s.bumpMessageCount()
	return inf, nil
}

// ParseResponse decodes any non-Inform device message. An empty body means
// the device is ending the session. A SOAP Fault anywhere short-circuits
// method-specific parsing.
func (s *Session) ParseResponse(body []byte) (*Response, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return &Response{Kind: KindEmpty}, nil
	}

	root, err := parseXML(body)
	if err != nil {
		return nil, err
	}
	id, ns := s.extractSession(root)
	resp := &Response{CwmpID: id, Namespace: ns}

	if fault := root.findLocal("Fault"); fault != nil {
		resp.Kind = KindFault
		resp.Fault = parseFault(fault)
		s.bumpMessageCount()
		return resp, nil
	}

	bodyNode := root.childLocal("Body")
	if bodyNode == nil {
		bodyNode = root
	}

	switch {
	case bodyNode.findLocal("GetParameterValuesResponse") != nil:
		resp.Kind = KindGetParameterValuesResponse
		resp.Parameters = map[string]domain.ParamValue{}
		n := bodyNode.findLocal("GetParameterValuesResponse")
		if plist := n.childLocal("ParameterList"); plist != nil {
			for _, pvs := range plist.childrenLocal("ParameterValueStruct") {
				name := pvs.childText("Name")
				if name == "" {
					continue
				}
				var value, typ string
				if vn := pvs.childLocal("Value"); vn != nil {
					value = strings.TrimSpace(vn.text)
					typ = vn.attrLocal("type")
				}
				resp.Parameters[name] = domain.ParamValue{Value: value, Type: typ}
			}
		}

	case bodyNode.findLocal("SetParameterValuesResponse") != nil:
		resp.Kind = KindSetParameterValuesResponse
		n := bodyNode.findLocal("SetParameterValuesResponse")
		resp.Status, _ = strconv.Atoi(n.childText("Status"))

	case bodyNode.findLocal("GetParameterNamesResponse") != nil:
		resp.Kind = KindGetParameterNamesResponse
		resp.Names = map[string]bool{}
		n := bodyNode.findLocal("GetParameterNamesResponse")
		if plist := n.childLocal("ParameterList"); plist != nil {
			for _, pis := range plist.childrenLocal("ParameterInfoStruct") {
				name := pis.childText("Name")
				if name == "" {
					continue
				}
				resp.Names[name] = parseBool(pis.childText("Writable"))
			}
		}

	case bodyNode.findLocal("TransferComplete") != nil:
		resp.Kind = KindTransferComplete
		n := bodyNode.findLocal("TransferComplete")
		tc := &TransferComplete{
			CommandKey:   n.childText("CommandKey"),
			StartTime:    parseCwmpTime(n.childText("StartTime")),
			CompleteTime: parseCwmpTime(n.childText("CompleteTime")),
		}
		// FaultStruct children are frequently unprefixed even when the
		// parent carries a namespace; childText matches by local name so
		// both shapes land here.
		if fs := n.childLocal("FaultStruct"); fs != nil {
			code := fs.childText("FaultCode")
			str := fs.childText("FaultString")
			if code != "" && code != "0" {
				tc.Fault = &FaultDetail{Code: code, String: str}
			}
		}
		resp.Transfer = tc

	case bodyNode.findLocal("AddObjectResponse") != nil:
		resp.Kind = KindAddObjectResponse
		n := bodyNode.findLocal("AddObjectResponse")
		resp.InstanceNumber, _ = strconv.Atoi(n.childText("InstanceNumber"))
		resp.Status, _ = strconv.Atoi(n.childText("Status"))

	case bodyNode.findLocal("DeleteObjectResponse") != nil:
		resp.Kind = KindDeleteObjectResponse
		n := bodyNode.findLocal("DeleteObjectResponse")
		resp.Status, _ = strconv.Atoi(n.childText("Status"))

	case bodyNode.findLocal("GetRPCMethods") != nil:
		resp.Kind = KindGetRPCMethods

	default:
		return nil, fmt.Errorf("parse response: unrecognized method in body")
	}

	s.bumpMessageCount()
	return resp, nil
}

func parseFault(fault *xmlNode) *FaultDetail {
	detail := &FaultDetail{
		Code:   fault.childText("faultcode"),
		String: fault.childText("faultstring"),
	}
	// A CWMP FaultStruct nested in detail carries the useful code.
	if fs := fault.findLocal("FaultCode"); fs != nil {
		detail.Code = strings.TrimSpace(fs.text)
	}
	if fs := fault.findLocal("FaultString"); fs != nil {
		detail.String = strings.TrimSpace(fs.text)
	}
	return detail
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func parseCwmpTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04:05Z0700"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
