package tor

import (
	"encoding/base32"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	// OnionSuffix is the suffix shared by all onion hosts.
	OnionSuffix = ".onion"

	onionV3Version = 0x03
)

var (
	onionV3Pattern = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)
	onionV2Pattern = regexp.MustCompile(`^[a-z2-7]{16}\.onion$`)

	checksumPrefix = []byte(".onion checksum")
)

// IsOnionHost reports whether host (optionally with a port or a
// subdomain) is a Tor onion service.
func IsOnionHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(stripPort(host), "."))
	return strings.HasSuffix(host, OnionSuffix)
}

// IsValidV3Address reports whether address is a v3 onion address with a
// correct checksum. Subdomains are not accepted; see ValidateOnionHost.
func IsValidV3Address(address string) bool {
	address = strings.ToLower(address)
	if !onionV3Pattern.MatchString(address) {
		return false
	}

	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(strings.TrimSuffix(address, OnionSuffix)))
	// public key (32) + checksum (2) + version (1)
	if err != nil || len(decoded) != 35 {
		return false
	}
	pubkey, checksum, version := decoded[:32], decoded[32:34], decoded[34]
	if version != onionV3Version {
		return false
	}
	want := computeV3Checksum(pubkey, version)
	return checksum[0] == want[0] && checksum[1] == want[1]
}

// computeV3Checksum returns the first two bytes of
// SHA3-256(".onion checksum" || pubkey || version).
func computeV3Checksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, len(checksumPrefix)+len(pubkey)+1)
	data = append(data, checksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)
	sum := sha3.Sum256(data)
	return sum[:2]
}

// ValidateOnionHost checks the onion service part of host, ignoring any
// port and subdomains. Non-onion hosts are accepted.
func ValidateOnionHost(host string) error {
	if !IsOnionHost(host) {
		return nil
	}
	host = strings.ToLower(strings.TrimSuffix(stripPort(host), "."))
	labels := strings.Split(strings.TrimSuffix(host, OnionSuffix), ".")
	service := labels[len(labels)-1] + OnionSuffix

	if IsValidV3Address(service) {
		return nil
	}
	if onionV2Pattern.MatchString(service) {
		return ErrV2AddressDeprecated
	}
	return ErrInvalidOnionAddress
}

// ComputeV3Address returns the v3 onion address of an ed25519 public key.
func ComputeV3Address(pubkey []byte) (string, error) {
	if len(pubkey) != 32 {
		return "", ErrInvalidOnionAddress
	}
	data := make([]byte, 35)
	copy(data[:32], pubkey)
	copy(data[32:34], computeV3Checksum(pubkey, onionV3Version))
	data[34] = onionV3Version
	return strings.ToLower(base32.StdEncoding.EncodeToString(data)) + OnionSuffix, nil
}

func stripPort(host string) string {
	if i := strings.LastIndexByte(host, ':'); i != -1 && !strings.Contains(host[i:], "]") {
		return host[:i]
	}
	return host
}
