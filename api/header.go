// File: api/header.go
// Package api
//
// Header is the parsed form of the client's HTTP Upgrade request,
// retained on the session for the lifetime of the connection (spec.md
// §3: "parsed handshake header (owned, cleared on delete)").

package api

// WSDraft identifies which WebSocket draft a request's version headers
// selected. Only RFC6455, HYBI10, and HYBI07 are accepted for upgrade;
// the rest exist purely so the handshake engine can produce a clean 501
// instead of a generic parse failure.
type WSDraft int

const (
	DraftUnknown WSDraft = iota
	DraftRFC6455
	DraftHYBI10
	DraftHYBI07
	DraftHYBI04to06
	DraftHixie76
	DraftHixie75
)

func (d WSDraft) String() string {
	switch d {
	case DraftRFC6455:
		return "RFC6455"
	case DraftHYBI10:
		return "HYBI10"
	case DraftHYBI07:
		return "HYBI07"
	case DraftHYBI04to06:
		return "HYBI04-06"
	case DraftHixie76:
		return "Hixie76"
	case DraftHixie75:
		return "Hixie75"
	default:
		return "unknown"
	}
}

// Upgradeable reports whether the draft is one the engine will complete
// the handshake for.
func (d WSDraft) Upgradeable() bool {
	return d == DraftRFC6455 || d == DraftHYBI10 || d == DraftHYBI07
}

// ExtensionOffer is one parsed "name;param=value;..." offer from a
// Sec-WebSocket-Extensions header.
type ExtensionOffer struct {
	Name   string
	Params map[string]string
}

// AcceptedExtension is a negotiated extension and the parameter string
// the server is echoing back to the client.
type AcceptedExtension struct {
	Name     string
	Accepted string
}

// Header is the parsed HTTP request plus the results of negotiation.
type Header struct {
	Method      string
	Path        string
	HTTPVersion string
	Host        string
	Origin      string
	Upgrade     string // raw "Upgrade" header value
	Connection  string // raw "Connection" header value
	Cookies     map[string]string

	SecWebSocketKey     string
	SecWebSocketVersion string
	Draft               WSDraft

	ProtocolOffers   []string
	ExtensionOffers  []ExtensionOffer
	WSProtocol       string // selected subprotocol; SubprotocolsDefault when no offer matches
	WSExtensions     []AcceptedExtension
	RawHeaderBytes   int
}
