// Package output routes per-target outcomes to the primary record
// stream and, for failures, to an optional reject stream.
package output

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// Failure classifications used in the error-type field of failure
// records.
const (
	FailureSource     = "source"     // malformed input line
	FailureResolution = "resolution" // search failed, or matched zero or multiple entries
	FailureOperation  = "operation"  // server rejected the account operation
)

// Record is the rendered outcome for one target: either a success
// payload (attributes returned by the operation) or a failure with an
// error classification and message.
type Record struct {
	DN         string
	Failed     bool
	ErrorType  string
	Diagnostic string
	Attributes []Attribute
}

// Attribute is one named, ordered group of values in a success payload.
type Attribute struct {
	Name   string
	Values []string
}

// HasPayload reports whether the record carries any attribute values.
func (r *Record) HasPayload() bool {
	for _, attr := range r.Attributes {
		if len(attr.Values) > 0 {
			return true
		}
	}
	return false
}

// writeTo serializes the record in LDIF-style form: a dn line, a
// result line, failure details when present, one line per attribute
// value, and a terminating blank line. Values that are unsafe for the
// line-oriented form are base64-encoded with the "::" separator.
func (r *Record) writeTo(w io.Writer) error {
	var b strings.Builder

	writeLine(&b, "dn", r.DN)
	if r.Failed {
		writeLine(&b, "result", "failure")
		if r.ErrorType != "" {
			writeLine(&b, "error-type", r.ErrorType)
		}
		if r.Diagnostic != "" {
			writeLine(&b, "error-message", r.Diagnostic)
		}
	} else {
		writeLine(&b, "result", "success")
	}

	for _, attr := range r.Attributes {
		for _, v := range attr.Values {
			writeLine(&b, attr.Name, v)
		}
	}
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}

func writeLine(b *strings.Builder, name, value string) {
	if needsBase64(value) {
		fmt.Fprintf(b, "%s:: %s\n", name, base64.StdEncoding.EncodeToString([]byte(value)))
		return
	}
	fmt.Fprintf(b, "%s: %s\n", name, value)
}

// needsBase64 applies the LDIF safe-string rules: no leading space,
// colon, or less-than, and no control or non-ASCII bytes anywhere.
func needsBase64(value string) bool {
	if value == "" {
		return false
	}

	switch value[0] {
	case ' ', ':', '<':
		return true
	}

	for i := 0; i < len(value); i++ {
		c := value[i]
		if c < 0x20 || c > 0x7e {
			return true
		}
	}

	return false
}
