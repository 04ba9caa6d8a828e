package pwpstate

import (
	"fmt"

	ber "github.com/go-asn1-ber/asn1-ber"
)

// The extended request and response values share one structure:
//
//	PasswordPolicyStateValue ::= SEQUENCE {
//	  targetUser  LDAPDN,
//	  operations  SEQUENCE OF SEQUENCE {
//	    opType    ENUMERATED,
//	    opValues  SEQUENCE OF OCTET STRING OPTIONAL } OPTIONAL }
//
// A request with an empty operation list asks the server to return every
// state property (the get-all form).

// EncodeRequestValue builds the BER value for a password policy state
// request targeting the given user DN.
func EncodeRequestValue(targetDN string, ops []Operation) *ber.Packet {
	value := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "PasswordPolicyStateValue")
	value.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, targetDN, "targetUser"))

	if len(ops) == 0 {
		return value
	}

	opsSeq := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "operations")
	for _, op := range ops {
		opsSeq.AppendChild(encodeOperation(op))
	}
	value.AppendChild(opsSeq)

	return value
}

func encodeOperation(op Operation) *ber.Packet {
	opSeq := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "operation")
	opSeq.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, int64(op.Type), "opType"))

	if len(op.Values) > 0 {
		valSeq := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "opValues")
		for _, v := range op.Values {
			valSeq.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, v, "opValue"))
		}
		opSeq.AppendChild(valSeq)
	}

	return opSeq
}

// StateResult is the decoded response value: the canonical target DN as
// reported by the server, plus the returned state operations in server
// order.
type StateResult struct {
	TargetDN   string
	Operations []Operation
}

// DecodeResponseValue parses the BER value of a password policy state
// response. The packet may be either the decoded value SEQUENCE itself
// or an OCTET STRING wrapper still carrying the encoded value, depending
// on how the transport surfaced it.
func DecodeResponseValue(pkt *ber.Packet) (*StateResult, error) {
	if pkt == nil {
		return nil, fmt.Errorf("response has no value")
	}

	seq, err := unwrapValue(pkt)
	if err != nil {
		return nil, err
	}

	if len(seq.Children) < 1 {
		return nil, fmt.Errorf("malformed response value: empty sequence")
	}

	result := &StateResult{
		TargetDN: decodeString(seq.Children[0]),
	}

	if len(seq.Children) < 2 {
		return result, nil
	}

	for i, opPkt := range seq.Children[1].Children {
		op, err := decodeOperation(opPkt)
		if err != nil {
			return nil, fmt.Errorf("malformed response operation %d: %w", i, err)
		}
		result.Operations = append(result.Operations, op)
	}

	return result, nil
}

// unwrapValue normalizes the response value packet to the inner
// SEQUENCE, re-decoding an OCTET STRING wrapper when necessary.
func unwrapValue(pkt *ber.Packet) (*ber.Packet, error) {
	if pkt.ClassType == ber.ClassUniversal && pkt.Tag == ber.TagSequence && len(pkt.Children) > 0 {
		return pkt, nil
	}

	inner, err := ber.DecodePacketErr(pkt.Data.Bytes())
	if err != nil {
		return nil, fmt.Errorf("malformed response value: %w", err)
	}
	if inner.Tag != ber.TagSequence {
		return nil, fmt.Errorf("malformed response value: unexpected tag %d", inner.Tag)
	}
	return inner, nil
}

func decodeOperation(pkt *ber.Packet) (Operation, error) {
	if len(pkt.Children) < 1 {
		return Operation{}, fmt.Errorf("empty operation element")
	}

	opType, ok := pkt.Children[0].Value.(int64)
	if !ok {
		return Operation{}, fmt.Errorf("operation type is not an integer")
	}

	op := Operation{Type: OperationType(opType)}
	if len(pkt.Children) > 1 {
		for _, valPkt := range pkt.Children[1].Children {
			op.Values = append(op.Values, decodeString(valPkt))
		}
	}

	return op, nil
}

func decodeString(pkt *ber.Packet) string {
	if s, ok := pkt.Value.(string); ok {
		return s
	}
	return string(pkt.ByteValue)
}
