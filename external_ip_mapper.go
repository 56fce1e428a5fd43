package ice

import (
	"fmt"
	"net"
	"strings"
)

// externalIPMapper implements the NAT 1-to-1 mapping table of spec §4.1 /
// §6 ("nat_1to1_ip_candidate_type", "nat_1to1_ips"). Each entry is either a
// sole external IP ("implicit sole external": every local host candidate
// of that family is rewritten to it) or an "external/local" pair
// ("explicit local->external" table). Semantics are grounded on
// original_source/ice/src/external_ip_mapper (the Rust ExternalIpMapper,
// authoritative per spec §9a).
type externalIPMapper struct {
	candidateType candidateTypeForMapping
	ipv4          familyMapping
	ipv6          familyMapping
}

// candidateTypeForMapping restricts nat_1to1_ip_candidate_type to the two
// values spec §6 allows: Host (rewrite in place) or ServerReflexive
// (synthesize a second, srflx candidate).
type candidateTypeForMapping int

const (
	mappingCandidateTypeHost candidateTypeForMapping = iota
	mappingCandidateTypeServerReflexive
)

type familyMapping struct {
	sole    net.IP            // implicit sole external IP for this family, if any
	byLocal map[string]net.IP // explicit local -> external map for this family
}

// newExternalIPMapper parses the nat_1to1_ips config list. Each entry is
// either "external" (implicit, applies to every local address of that
// family) or "external/local" (explicit). Mixing implicit and explicit
// entries anywhere in the list, or supplying two implicit entries for the
// same family, is a ConfigInvalid error (spec §7).
func newExternalIPMapper(candType CandidateType, ips []string) (*externalIPMapper, error) {
	if len(ips) == 0 {
		return nil, nil //nolint:nilnil
	}

	mappingType := mappingCandidateTypeHost
	switch candType {
	case CandidateTypeHost, 0:
		mappingType = mappingCandidateTypeHost
	case CandidateTypeServerReflexive:
		mappingType = mappingCandidateTypeServerReflexive
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedNAT1To1IPCandidateType, candType)
	}

	m := &externalIPMapper{
		candidateType: mappingType,
		ipv4:          familyMapping{byLocal: map[string]net.IP{}},
		ipv6:          familyMapping{byLocal: map[string]net.IP{}},
	}

	haveImplicit, haveExplicit := false, false
	for _, entry := range ips {
		parts := strings.Split(entry, "/")
		switch len(parts) {
		case 1:
			haveImplicit = true
			ext, err := validateIPString(parts[0])
			if err != nil {
				return nil, err
			}
			fam := m.familyFor(ext)
			if fam.sole != nil {
				return nil, fmt.Errorf("%w: duplicate implicit mapping for address family", ErrInvalidNAT1To1IPMapping)
			}
			fam.sole = ext
			m.setFamily(ext, *fam)
		case 2:
			haveExplicit = true
			ext, err := validateIPString(parts[0])
			if err != nil {
				return nil, err
			}
			local, err := validateIPString(parts[1])
			if err != nil {
				return nil, err
			}
			if isIPv4(ext) != isIPv4(local) {
				return nil, fmt.Errorf("%w: external/local must be the same address family", ErrInvalidNAT1To1IPMapping)
			}
			fam := m.familyFor(ext)
			if _, exists := fam.byLocal[local.String()]; exists {
				return nil, fmt.Errorf("%w: duplicate local address %s", ErrInvalidNAT1To1IPMapping, local)
			}
			fam.byLocal[local.String()] = ext
			m.setFamily(ext, *fam)
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidNAT1To1IPMapping, entry)
		}
	}
	if haveImplicit && haveExplicit {
		return nil, fmt.Errorf("%w: cannot mix implicit and explicit entries", ErrInvalidNAT1To1IPMapping)
	}

	return m, nil
}

func validateIPString(s string) (net.IP, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("%w: %q", ErrAddressParseFailed, s)
	}
	return ip, nil
}

func isIPv4(ip net.IP) bool { return ip.To4() != nil }

func (m *externalIPMapper) familyFor(ip net.IP) *familyMapping {
	if isIPv4(ip) {
		return &m.ipv4
	}
	return &m.ipv6
}

func (m *externalIPMapper) setFamily(ip net.IP, fam familyMapping) {
	if isIPv4(ip) {
		m.ipv4 = fam
	} else {
		m.ipv6 = fam
	}
}

// findExternalIP resolves the external IP for a local address string, or
// ErrAddressParseFailed / nil-miss if none is configured for it.
func (m *externalIPMapper) findExternalIP(localIPStr string) (net.IP, error) {
	local := net.ParseIP(localIPStr)
	if local == nil {
		return nil, fmt.Errorf("%w: %q", ErrAddressParseFailed, localIPStr)
	}
	fam := m.familyFor(local)
	if fam.sole != nil {
		return fam.sole, nil
	}
	if ext, ok := fam.byLocal[local.String()]; ok {
		return ext, nil
	}
	return nil, fmt.Errorf("no external IP mapping for local address %s", localIPStr)
}
