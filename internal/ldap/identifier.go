package ldap

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/go-objectsid"
	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
)

// IdentifierType represents the detected format of a user identifier.
type IdentifierType int

const (
	IdentifierTypeUnknown IdentifierType = iota
	IdentifierTypeDN                     // Distinguished Name
	IdentifierTypeGUID                   // Globally Unique Identifier
	IdentifierTypeSID                    // Security Identifier
	IdentifierTypeUPN                    // User Principal Name
	IdentifierTypeSAM                    // DOMAIN\username
	IdentifierTypeUserID                 // Plain user ID (resolved via the user-ID attribute)
)

// String returns the string representation of the identifier type.
func (i IdentifierType) String() string {
	switch i {
	case IdentifierTypeDN:
		return "DN"
	case IdentifierTypeGUID:
		return "GUID"
	case IdentifierTypeSID:
		return "SID"
	case IdentifierTypeUPN:
		return "UPN"
	case IdentifierTypeSAM:
		return "SAM"
	case IdentifierTypeUserID:
		return "UserID"
	default:
		return "Unknown"
	}
}

// Identifier format patterns.
var (
	// DN format: CN=User,OU=Users,DC=example,DC=com
	dnRegex = regexp.MustCompile(`^(?i)(CN|OU|DC|O|C|UID|STREET|L|ST|POSTALCODE)=.+`)

	// SID format: S-1-5-21-domain-rid or S-1-5-32-alias
	sidRegex = regexp.MustCompile(`^S-1-\d+(-\d+)*$`)

	// UPN format: user@domain.com
	upnRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

	// SAM format: DOMAIN\username
	samRegex = regexp.MustCompile(`^[^\\@\s]+\\[^\\@\s]+$`)
)

// DetectIdentifierType analyzes an identifier string and determines its type.
// Anything that matches none of the structured formats is treated as a plain
// user ID.
func DetectIdentifierType(identifier string) IdentifierType {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return IdentifierTypeUnknown
	}

	// DN is the most specific format, check it first
	if dnRegex.MatchString(identifier) {
		return IdentifierTypeDN
	}

	if _, err := uuid.Parse(identifier); err == nil {
		return IdentifierTypeGUID
	}

	if sidRegex.MatchString(identifier) {
		return IdentifierTypeSID
	}

	if upnRegex.MatchString(identifier) {
		return IdentifierTypeUPN
	}

	if samRegex.MatchString(identifier) {
		return IdentifierTypeSAM
	}

	return IdentifierTypeUserID
}

// IdentifierFilter translates a user identifier into the equality filter
// that locates its entry. Plain user IDs match on userIDAttribute.
func IdentifierFilter(identifier, userIDAttribute string) (string, error) {
	identifier = strings.TrimSpace(identifier)

	switch DetectIdentifierType(identifier) {
	case IdentifierTypeDN:
		return fmt.Sprintf("(distinguishedName=%s)", ldap.EscapeFilter(identifier)), nil
	case IdentifierTypeGUID:
		return guidFilter(identifier)
	case IdentifierTypeSID:
		return fmt.Sprintf("(objectSid=%s)", ldap.EscapeFilter(identifier)), nil
	case IdentifierTypeUPN:
		return fmt.Sprintf("(userPrincipalName=%s)", ldap.EscapeFilter(identifier)), nil
	case IdentifierTypeSAM:
		// Strip the DOMAIN\ qualifier
		parts := strings.SplitN(identifier, "\\", 2)
		return fmt.Sprintf("(sAMAccountName=%s)", ldap.EscapeFilter(parts[1])), nil
	case IdentifierTypeUserID:
		if userIDAttribute == "" {
			userIDAttribute = "uid"
		}
		return fmt.Sprintf("(%s=%s)", userIDAttribute, ldap.EscapeFilter(identifier)), nil
	default:
		return "", fmt.Errorf("empty identifier")
	}
}

// guidFilter builds a binary objectGUID filter. Directory servers store
// GUIDs in mixed-endian form: the first three groups are little-endian,
// the rest big-endian.
func guidFilter(identifier string) (string, error) {
	u, err := uuid.Parse(identifier)
	if err != nil {
		return "", fmt.Errorf("invalid GUID %q: %w", identifier, err)
	}

	b := make([]byte, 16)
	copy(b, u[:])
	b[0], b[1], b[2], b[3] = b[3], b[2], b[1], b[0]
	b[4], b[5] = b[5], b[4]
	b[6], b[7] = b[7], b[6]

	return fmt.Sprintf("(objectGUID=%s)", ldap.EscapeFilter(string(b))), nil
}

// EntrySID extracts the objectSid attribute from an entry as its string
// form, or "" when absent or malformed. Handles both binary values (live
// directory) and pre-formatted strings (fixtures).
func EntrySID(entry *ldap.Entry) string {
	if entry == nil {
		return ""
	}

	sidBytes := entry.GetRawAttributeValue("objectSid")
	if len(sidBytes) > 0 {
		if s := decodeBinarySID(sidBytes); s != "" {
			return s
		}
	}

	if s := entry.GetAttributeValue("objectSid"); sidRegex.MatchString(s) {
		return s
	}

	return ""
}

func decodeBinarySID(b []byte) (s string) {
	// objectsid.Decode panics on truncated input
	defer func() {
		if recover() != nil {
			s = ""
		}
	}()

	if len(b) < 8 {
		return ""
	}
	sid := objectsid.Decode(b)
	if !sidRegex.MatchString(sid.String()) {
		return ""
	}
	return sid.String()
}
