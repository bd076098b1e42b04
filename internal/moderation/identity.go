package moderation

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"
)

// UnknownAddress is used when no request address can be determined.
const UnknownAddress = "unknown"

// ClientID is a derived pseudo-identity for an anonymous requester.
type ClientID string

// RequestMetadata is what the transport layer hands to Identify.
type RequestMetadata struct {
	ForwardedFor   string
	RealIP         string
	RemoteAddr     string
	UserAgent      string
	AcceptLanguage string
}

// Identity is the pair a ClientID is built from.
type Identity struct {
	ID          ClientID
	Address     string
	Fingerprint string
}

// Identify derives a stable ClientID from request metadata. Different clients
// behind one proxy with identical headers map to the same ClientID.
func Identify(meta RequestMetadata) Identity {
	addr := ClientAddress(meta)
	fp := Fingerprint(meta.UserAgent, meta.AcceptLanguage)
	return Identity{
		ID:          ClientID(addr + ":" + fp),
		Address:     addr,
		Fingerprint: fp,
	}
}

// ClientAddress picks the first forwarded address, then X-Real-IP, then the
// host of RemoteAddr.
func ClientAddress(meta RequestMetadata) string {
	if first, _, _ := strings.Cut(meta.ForwardedFor, ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if ip := strings.TrimSpace(meta.RealIP); ip != "" {
		return ip
	}
	if remote := strings.TrimSpace(meta.RemoteAddr); remote != "" {
		if host, _, err := net.SplitHostPort(remote); err == nil {
			return host
		}
		return remote
	}
	return UnknownAddress
}

// Fingerprint hashes low-entropy request signals into 16 hex characters.
func Fingerprint(userAgent, acceptLanguage string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(userAgent) + "|" + strings.TrimSpace(acceptLanguage)))
	return hex.EncodeToString(sum[:])[:16]
}
