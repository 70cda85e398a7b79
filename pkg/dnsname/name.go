// Package dnsname canonicalizes wire-format and textual domain names into
// the lookup key the rest of the resolver operates on.
package dnsname

import "strings"

// InvalidReason classifies why a name failed normalization.
type InvalidReason string

const (
	ReasonEmpty    InvalidReason = "Empty"
	ReasonTooLong  InvalidReason = "TooLong"
	ReasonBadLabel InvalidReason = "BadLabel"
)

// InvalidNameError is returned by Normalize when raw does not canonicalize to
// a valid Name.
type InvalidNameError struct {
	Reason InvalidReason
	Raw    string
}

func (e *InvalidNameError) Error() string {
	return "dnsname: invalid name " + e.Reason.String() + ": " + e.Raw
}

func (r InvalidReason) String() string { return string(r) }

const (
	maxNameLength  = 255
	maxLabelLength = 63
	maxLabelCount  = 127
)

// Normalize canonicalizes raw into its lookup key: trailing dot stripped,
// ASCII lower-cased, label and total length bounds verified. It is
// idempotent: Normalize(Normalize(x)) == Normalize(x) for any x that
// normalizes successfully.
func Normalize(raw string) (string, error) {
	name := strings.TrimSuffix(raw, ".")

	if name == "" {
		return "", &InvalidNameError{Reason: ReasonEmpty, Raw: raw}
	}

	if len(name) > maxNameLength {
		return "", &InvalidNameError{Reason: ReasonTooLong, Raw: raw}
	}

	labels := strings.Split(name, ".")
	if len(labels) > maxLabelCount {
		return "", &InvalidNameError{Reason: ReasonTooLong, Raw: raw}
	}

	out := make([]string, len(labels))
	for i, label := range labels {
		if err := validateLabel(label); err != nil {
			return "", &InvalidNameError{Reason: ReasonBadLabel, Raw: raw}
		}
		out[i] = toLowerASCII(label)
	}

	return strings.Join(out, "."), nil
}

func validateLabel(label string) error {
	if label == "" || len(label) > maxLabelLength {
		return &InvalidNameError{Reason: ReasonBadLabel, Raw: label}
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return &InvalidNameError{Reason: ReasonBadLabel, Raw: label}
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-':
		default:
			return &InvalidNameError{Reason: ReasonBadLabel, Raw: label}
		}
	}
	return nil
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Ancestors returns the proper ancestors of name, from the closest to the
// root, excluding name itself: "a.b.c" -> ["b.c", "c"]. name must already be
// normalized.
func Ancestors(name string) []string {
	labels := strings.Split(name, ".")
	if len(labels) <= 1 {
		return nil
	}
	out := make([]string, 0, len(labels)-1)
	for i := 1; i < len(labels); i++ {
		out = append(out, strings.Join(labels[i:], "."))
	}
	return out
}
