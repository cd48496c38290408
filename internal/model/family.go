package model

import (
	"fmt"
	"strings"
)

// Family identifies the kind of scanner that produced a document.
// Merge keys are always scoped to a single family.
type Family string

const (
	// FamilyHost is the host-assessment family (RSAS style exports).
	FamilyHost Family = "host"
	// FamilyWeb is the web-scanner family (AWVS style exports).
	FamilyWeb Family = "web"
	// FamilyVulnMgmt is the vulnerability-management family (Nessus style exports).
	FamilyVulnMgmt Family = "vulnmgmt"
	// FamilyPort is the port-scanner family (nmap XML and port lists).
	FamilyPort Family = "port"
)

// AllFamilies returns the families in their canonical processing order.
func AllFamilies() []Family {
	return []Family{FamilyHost, FamilyWeb, FamilyVulnMgmt, FamilyPort}
}

// ParseFamily converts a family name into a Family.
func ParseFamily(s string) (Family, error) {
	want := Family(strings.ToLower(strings.TrimSpace(s)))
	for _, f := range AllFamilies() {
		if f == want {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown scanner family %q", s)
}

// URLKeyed reports whether records of this family are identified by URL
// rather than by host and port.
func (f Family) URLKeyed() bool {
	return f == FamilyWeb
}

// DisplayName returns a human-readable name for report headings.
func (f Family) DisplayName() string {
	switch f {
	case FamilyHost:
		return "Host assessment"
	case FamilyWeb:
		return "Web application"
	case FamilyVulnMgmt:
		return "Vulnerability management"
	case FamilyPort:
		return "Port scan"
	default:
		return string(f)
	}
}

// Protocol is the transport protocol of a host finding.
type Protocol int

const (
	// ProtocolUnspecified means the source did not state a protocol.
	ProtocolUnspecified Protocol = iota
	// ProtocolTCP is TCP.
	ProtocolTCP
	// ProtocolUDP is UDP.
	ProtocolUDP
)

// String returns the lower-case protocol name, or "" when unspecified.
func (p Protocol) String() string {
	switch p {
	case ProtocolTCP:
		return "tcp"
	case ProtocolUDP:
		return "udp"
	default:
		return ""
	}
}

// ParseProtocol recognizes "tcp" and "udp" case-insensitively.
// Anything else is ProtocolUnspecified.
func ParseProtocol(s string) Protocol {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tcp":
		return ProtocolTCP
	case "udp":
		return ProtocolUDP
	default:
		return ProtocolUnspecified
	}
}

// MarshalText writes the protocol name.
func (p Protocol) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses the protocol name.
func (p *Protocol) UnmarshalText(text []byte) error {
	*p = ParseProtocol(string(text))
	return nil
}
