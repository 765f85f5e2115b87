package signature

import "encoding/xml"

type errorBody struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

// EncodeAPIErrorToResponse renders an APIError as a standalone <Error>
// document. It is used by the gateway's auth middleware, which rejects a
// request before the dispatcher's own richer error renderer (with
// RequestId/Resource) ever gets involved.
func EncodeAPIErrorToResponse(e APIError) []byte {
	body := errorBody{Code: e.Code, Message: e.Description}
	out, err := xml.Marshal(body)
	if err != nil {
		return []byte(xml.Header)
	}
	return append([]byte(xml.Header), out...)
}
