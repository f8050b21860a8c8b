package wire

import "fmt"

// RecordType represents a DNS resource record type code.
type RecordType uint16

// Record types the codec decodes into typed payloads. Everything else is
// carried through as an Unknown record.
const (
	TypeA     RecordType = 1
	TypeNS    RecordType = 2
	TypeCNAME RecordType = 5
	TypeSOA   RecordType = 6
	TypeMX    RecordType = 15
	TypeAAAA  RecordType = 28
)

// Known reports whether the type has a typed payload in this codec.
func (t RecordType) Known() bool {
	switch t {
	case TypeA, TypeNS, TypeCNAME, TypeSOA, TypeMX, TypeAAAA:
		return true
	default:
		return false
	}
}

// String returns the textual representation of the record type. Unknown
// types render as "TYPE<code>" in the RFC 3597 style.
func (t RecordType) String() string {
	switch t {
	case TypeA:
		return "A"
	case TypeNS:
		return "NS"
	case TypeCNAME:
		return "CNAME"
	case TypeSOA:
		return "SOA"
	case TypeMX:
		return "MX"
	case TypeAAAA:
		return "AAAA"
	default:
		return fmt.Sprintf("TYPE%d", uint16(t))
	}
}

// RecordTypeFromString converts a record type mnemonic to its code,
// returning 0 for unrecognised strings.
func RecordTypeFromString(s string) RecordType {
	switch s {
	case "A":
		return TypeA
	case "NS":
		return TypeNS
	case "CNAME":
		return TypeCNAME
	case "SOA":
		return TypeSOA
	case "MX":
		return TypeMX
	case "AAAA":
		return TypeAAAA
	default:
		return 0
	}
}

// ClassIN is the Internet class. quill reads whatever class is on the
// wire but only ever writes IN.
const ClassIN uint16 = 1

// ResponseCode is the 4-bit RCODE field of the DNS header.
type ResponseCode uint8

const (
	RcodeNoError        ResponseCode = 0
	RcodeFormatError    ResponseCode = 1
	RcodeServerFailure  ResponseCode = 2
	RcodeNameError      ResponseCode = 3
	RcodeNotImplemented ResponseCode = 4
	RcodeRefused        ResponseCode = 5
)

// String returns the conventional mnemonic for the response code.
func (r ResponseCode) String() string {
	switch r {
	case RcodeNoError:
		return "NOERROR"
	case RcodeFormatError:
		return "FORMERR"
	case RcodeServerFailure:
		return "SERVFAIL"
	case RcodeNameError:
		return "NXDOMAIN"
	case RcodeNotImplemented:
		return "NOTIMP"
	case RcodeRefused:
		return "REFUSED"
	default:
		return fmt.Sprintf("RCODE%d", uint8(r))
	}
}
