package ledger

import (
	"fmt"
	"strings"
)

// X500Name is a node or party identity name.
type X500Name struct {
	CommonName       string
	OrganisationUnit string
	Organisation     string
	Locality         string
	State            string
	Country          string
}

// ParseX500Name parses names such as "O=Bank, L=London, C=GB".
// Attribute order in the input is free; O, L and C are mandatory.
func ParseX500Name(s string) (X500Name, error) {
	var n X500Name
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		attr, value, ok := strings.Cut(part, "=")
		if !ok {
			return X500Name{}, fmt.Errorf("parse x500 name %q: attribute %q has no value", s, part)
		}
		attr = strings.ToUpper(strings.TrimSpace(attr))
		value = strings.TrimSpace(value)
		if seen[attr] {
			return X500Name{}, fmt.Errorf("parse x500 name %q: duplicate attribute %s", s, attr)
		}
		seen[attr] = true
		switch attr {
		case "CN":
			n.CommonName = value
		case "OU":
			n.OrganisationUnit = value
		case "O":
			n.Organisation = value
		case "L":
			n.Locality = value
		case "ST":
			n.State = value
		case "C":
			n.Country = value
		default:
			return X500Name{}, fmt.Errorf("parse x500 name %q: unsupported attribute %s", s, attr)
		}
	}
	if err := n.Validate(); err != nil {
		return X500Name{}, fmt.Errorf("parse x500 name %q: %w", s, err)
	}
	return n, nil
}

// Validate checks mandatory attributes and the country code.
func (n X500Name) Validate() error {
	switch {
	case n.Organisation == "":
		return fmt.Errorf("organisation (O) is required")
	case n.Locality == "":
		return fmt.Errorf("locality (L) is required")
	case len(n.Country) != 2 || strings.ToUpper(n.Country) != n.Country:
		return fmt.Errorf("country (C) must be a two letter upper-case code, got %q", n.Country)
	}
	return nil
}

func (n X500Name) String() string {
	attrs := []struct{ key, value string }{
		{"CN", n.CommonName},
		{"OU", n.OrganisationUnit},
		{"O", n.Organisation},
		{"L", n.Locality},
		{"ST", n.State},
		{"C", n.Country},
	}
	parts := make([]string, 0, len(attrs))
	for _, a := range attrs {
		if a.value != "" {
			parts = append(parts, a.key+"="+a.value)
		}
	}
	return strings.Join(parts, ", ")
}

// Party is a well-known identity on the network.
type Party struct {
	Name      X500Name
	OwningKey []byte
}

// PartyAndCertificate pairs a party with its certificate path.
type PartyAndCertificate struct {
	Party    Party
	CertPath [][]byte
}

// IdentityLookup resolves party names against the node's identity service.
// It may return zero, one or several candidates.
type IdentityLookup interface {
	PartiesFromName(name X500Name) []Party
}

// IdentityLookupFunc adapts a function to IdentityLookup.
type IdentityLookupFunc func(name X500Name) []Party

func (f IdentityLookupFunc) PartiesFromName(name X500Name) []Party { return f(name) }

// StaticIdentities is an IdentityLookup over a fixed set of parties.
type StaticIdentities []Party

func (s StaticIdentities) PartiesFromName(name X500Name) []Party {
	var out []Party
	for _, p := range s {
		if p.Name == name {
			out = append(out, p)
		}
	}
	return out
}
