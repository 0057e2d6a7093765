package cwmp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/crestwave/acs/internal/domain"
)

// envelope wraps a body fragment in a SOAP envelope. The xmlns declaration
// order on the Envelope element is a hard device-compatibility requirement:
// cwmp, soap-enc, soap-env, xsd, xsi, all five always present, or certain
// devices stall for minutes before proceeding. Building the string by hand
// keeps the order deterministic regardless of any library's attribute
// handling.
func (s *Session) envelope(cwmpID string, body string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<soap-env:Envelope`)
	b.WriteString(` xmlns:cwmp="` + s.Namespace() + `"`)
	b.WriteString(` xmlns:soap-enc="` + nsSoapEnc + `"`)
	b.WriteString(` xmlns:soap-env="` + nsSoapEnv + `"`)
	b.WriteString(` xmlns:xsd="` + nsXSD + `"`)
	b.WriteString(` xmlns:xsi="` + nsXSI + `"`)
	b.WriteString(">\n")
	b.WriteString("<soap-env:Header>\n")
	b.WriteString(`<cwmp:ID soap-env:mustUnderstand="1">` + xmlEscape(cwmpID) + "</cwmp:ID>\n")
	b.WriteString("</soap-env:Header>\n")
	b.WriteString("<soap-env:Body>\n")
	b.WriteString(body)
	b.WriteString("</soap-env:Body>\n")
	b.WriteString("</soap-env:Envelope>\n")
	return b.String()
}

// requestID picks the cwmp:ID for an ACS-initiated request: caller-supplied
// when given, freshly generated otherwise.
func requestID(id string) string {
	if id != "" {
		return id
	}
	return NextRequestID()
}

// CreateInformResponse acknowledges an Inform, echoing the session's
// device-chosen cwmp:ID.
func (s *Session) CreateInformResponse() string {
	body := "<cwmp:InformResponse>\n<MaxEnvelopes>1</MaxEnvelopes>\n</cwmp:InformResponse>\n"
	return s.envelope(s.cwmpID, body)
}

// CreateGetParameterValues builds a GetParameterValues request for the
// given parameter names.
func (s *Session) CreateGetParameterValues(id string, names []string) string {
	var b strings.Builder
	b.WriteString("<cwmp:GetParameterValues>\n")
	fmt.Fprintf(&b, "<ParameterNames soap-enc:arrayType=\"xsd:string[%d]\">\n", len(names))
	for _, n := range names {
		b.WriteString("<string>" + xmlEscape(n) + "</string>\n")
	}
	b.WriteString("</ParameterNames>\n</cwmp:GetParameterValues>\n")
	return s.envelope(requestID(id), b.String())
}

// CreateSetParameterValues builds a SetParameterValues request. Boolean
// values are normalized to the TR-069 wire convention "1"/"0"; parameter
// order is sorted so output is deterministic.
func (s *Session) CreateSetParameterValues(id string, values map[string]domain.ParamValue) string {
	names := make([]string, 0, len(values))
	for n := range values {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("<cwmp:SetParameterValues>\n")
	fmt.Fprintf(&b, "<ParameterList soap-enc:arrayType=\"cwmp:ParameterValueStruct[%d]\">\n", len(values))
	for _, n := range names {
		v := values[n]
		typ := v.Type
		if typ == "" {
			typ = "xsd:string"
		}
		val := v.Value
		if typ == "xsd:boolean" {
			val = NormalizeBool(val)
		}
		b.WriteString("<ParameterValueStruct>\n")
		b.WriteString("<Name>" + xmlEscape(n) + "</Name>\n")
		b.WriteString(`<Value xsi:type="` + xmlEscape(typ) + `">` + xmlEscape(val) + "</Value>\n")
		b.WriteString("</ParameterValueStruct>\n")
	}
	b.WriteString("</ParameterList>\n")
	b.WriteString("<ParameterKey></ParameterKey>\n")
	b.WriteString("</cwmp:SetParameterValues>\n")
	return s.envelope(requestID(id), b.String())
}

// CreateGetParameterNames builds a GetParameterNames request rooted at path.
func (s *Session) CreateGetParameterNames(id, path string, nextLevel bool) string {
	var b strings.Builder
	b.WriteString("<cwmp:GetParameterNames>\n")
	b.WriteString("<ParameterPath>" + xmlEscape(path) + "</ParameterPath>\n")
	b.WriteString("<NextLevel>" + NormalizeBool(nextLevel) + "</NextLevel>\n")
	b.WriteString("</cwmp:GetParameterNames>\n")
	return s.envelope(requestID(id), b.String())
}

func (s *Session) CreateReboot(id, commandKey string) string {
	body := "<cwmp:Reboot>\n<CommandKey>" + xmlEscape(commandKey) + "</CommandKey>\n</cwmp:Reboot>\n"
	return s.envelope(requestID(id), body)
}

func (s *Session) CreateFactoryReset(id string) string {
	return s.envelope(requestID(id), "<cwmp:FactoryReset>\n</cwmp:FactoryReset>\n")
}

func (s *Session) CreateAddObject(id, objectName, parameterKey string) string {
	var b strings.Builder
	b.WriteString("<cwmp:AddObject>\n")
	b.WriteString("<ObjectName>" + xmlEscape(objectName) + "</ObjectName>\n")
	b.WriteString("<ParameterKey>" + xmlEscape(parameterKey) + "</ParameterKey>\n")
	b.WriteString("</cwmp:AddObject>\n")
	return s.envelope(requestID(id), b.String())
}

func (s *Session) CreateDeleteObject(id, objectName, parameterKey string) string {
	var b strings.Builder
	b.WriteString("<cwmp:DeleteObject>\n")
	b.WriteString("<ObjectName>" + xmlEscape(objectName) + "</ObjectName>\n")
	b.WriteString("<ParameterKey>" + xmlEscape(parameterKey) + "</ParameterKey>\n")
	b.WriteString("</cwmp:DeleteObject>\n")
	return s.envelope(requestID(id), b.String())
}

// CreateDownload builds a Download request. commandKey must come from
// EncodeCommandKey so the later TransferComplete, possibly in an entirely
// new session, correlates back to the originating task.
func (s *Session) CreateDownload(id, commandKey string, dl domain.DownloadParams) string {
	fileType := dl.FileType
	if fileType == "" {
		fileType = "1 Firmware Upgrade Image"
	}
	var b strings.Builder
	b.WriteString("<cwmp:Download>\n")
	b.WriteString("<CommandKey>" + xmlEscape(commandKey) + "</CommandKey>\n")
	b.WriteString("<FileType>" + xmlEscape(fileType) + "</FileType>\n")
	b.WriteString("<URL>" + xmlEscape(dl.URL) + "</URL>\n")
	b.WriteString("<Username>" + xmlEscape(dl.Username) + "</Username>\n")
	b.WriteString("<Password>" + xmlEscape(dl.Password) + "</Password>\n")
	fmt.Fprintf(&b, "<FileSize>%d</FileSize>\n", dl.FileSize)
	b.WriteString("<TargetFileName>" + xmlEscape(dl.TargetFileName) + "</TargetFileName>\n")
	fmt.Fprintf(&b, "<DelaySeconds>%d</DelaySeconds>\n", dl.DelaySeconds)
	b.WriteString("<SuccessURL></SuccessURL>\n<FailureURL></FailureURL>\n")
	b.WriteString("</cwmp:Download>\n")
	return s.envelope(requestID(id), b.String())
}

func (s *Session) CreateUpload(id, commandKey string, up domain.UploadParams) string {
	fileType := up.FileType
	if fileType == "" {
		fileType = "1 Vendor Configuration File"
	}
	var b strings.Builder
	b.WriteString("<cwmp:Upload>\n")
	b.WriteString("<CommandKey>" + xmlEscape(commandKey) + "</CommandKey>\n")
	b.WriteString("<FileType>" + xmlEscape(fileType) + "</FileType>\n")
	b.WriteString("<URL>" + xmlEscape(up.URL) + "</URL>\n")
	b.WriteString("<Username>" + xmlEscape(up.Username) + "</Username>\n")
	b.WriteString("<Password>" + xmlEscape(up.Password) + "</Password>\n")
	b.WriteString("<DelaySeconds>0</DelaySeconds>\n")
	b.WriteString("</cwmp:Upload>\n")
	return s.envelope(requestID(id), b.String())
}

func xmlEscape(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(s)
}
