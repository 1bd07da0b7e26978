package mcp

// SupportedProtocolVersions lists the protocol revisions this gateway can
// speak, ordered oldest to newest.
var SupportedProtocolVersions = []string{
	"2025-03-26",
	"2025-06-18",
}

// LatestProtocolVersion is the newest supported protocol revision.
const LatestProtocolVersion = "2025-06-18"

// NegotiateProtocolVersion selects the protocol version for an exchange given
// the version the client declared, which may be empty.
//
// A declared, supported version is pinned as-is. A declared but unsupported
// version falls back to the newest supported version rather than failing the
// handshake: the client ecosystems this gateway fronts each send their own
// fixed version string and cannot be changed, so strict rejection would shut
// out entire classes of clients. An absent version also pins the newest.
func NegotiateProtocolVersion(declared string) string {
	for _, v := range SupportedProtocolVersions {
		if v == declared {
			return v
		}
	}
	return LatestProtocolVersion
}
