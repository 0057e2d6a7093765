package cwmp

import (
	"strconv"
	"strings"
)

// The two responses below are string templates on purpose. Certain strict
// firmwares compare these messages against a reference ACS byte-for-byte,
// attribute casing and prefix capitalization included, so they must never
// go through the general envelope builder. Keep the two code paths
// separate.

const transferCompleteResponseTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/" xmlns:SOAP-ENC="http://schemas.xmlsoap.org/soap/encoding/" xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:cwmp="{{NAMESPACE}}">
<SOAP-ENV:Header>
<cwmp:ID SOAP-ENV:mustUnderstand="1">{{ID}}</cwmp:ID>
</SOAP-ENV:Header>
<SOAP-ENV:Body>
<cwmp:TransferCompleteResponse></cwmp:TransferCompleteResponse>
</SOAP-ENV:Body>
</SOAP-ENV:Envelope>
`

// rpcMethods is exactly the method set the reference ACS advertises,
// vendor-extension RPCs included. Do not trim it: some firmwares gate
// features on its contents.
var rpcMethods = []string{
	"GetRPCMethods",
	"Inform",
	"TransferComplete",
	"AutonomousTransferComplete",
	"RequestDownload",
	"DUStateChangeComplete",
	"AutonomousDUStateChangeComplete",
	"X_CALIX_TransferLog",
}

const getRPCMethodsResponseHeader = `<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/" xmlns:SOAP-ENC="http://schemas.xmlsoap.org/soap/encoding/" xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:cwmp="{{NAMESPACE}}">
<SOAP-ENV:Header>
<cwmp:ID SOAP-ENV:mustUnderstand="1">{{ID}}</cwmp:ID>
</SOAP-ENV:Header>
<SOAP-ENV:Body>
<cwmp:GetRPCMethodsResponse>
<MethodList SOAP-ENC:arrayType="xsd:string[{{COUNT}}]">
`

const getRPCMethodsResponseFooter = `</MethodList>
</cwmp:GetRPCMethodsResponse>
</SOAP-ENV:Body>
</SOAP-ENV:Envelope>
`

// CreateTransferCompleteResponse acknowledges a TransferComplete, echoing
// the session's cwmp:ID.
func (s *Session) CreateTransferCompleteResponse() string {
	out := strings.ReplaceAll(transferCompleteResponseTemplate, "{{NAMESPACE}}", s.Namespace())
	return strings.ReplaceAll(out, "{{ID}}", xmlEscape(s.cwmpID))
}

// CreateGetRPCMethodsResponse answers a device-initiated GetRPCMethods.
func (s *Session) CreateGetRPCMethodsResponse() string {
	var b strings.Builder
	header := strings.ReplaceAll(getRPCMethodsResponseHeader, "{{NAMESPACE}}", s.Namespace())
	header = strings.ReplaceAll(header, "{{ID}}", xmlEscape(s.cwmpID))
	header = strings.ReplaceAll(header, "{{COUNT}}", strconv.Itoa(len(rpcMethods)))
	b.WriteString(header)
	for _, m := range rpcMethods {
		b.WriteString("<string>" + m + "</string>\n")
	}
	b.WriteString(getRPCMethodsResponseFooter)
	return b.String()
}
