package wire

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// ParseRecord builds a record from its zone-file presentation form, the
// inverse of Record.Value for the writable types. Unknown types cannot be
// expressed in text and are rejected.
func ParseRecord(name string, rtype RecordType, ttl uint32, value string) (Record, error) {
	rec := Record{Name: name, Type: rtype, TTL: ttl}
	value = strings.TrimSpace(value)

	switch rtype {
	case TypeA:
		addr, err := netip.ParseAddr(value)
		if err != nil || !addr.Is4() {
			return Record{}, fmt.Errorf("invalid A address %q", value)
		}
		rec.Addr = addr

	case TypeAAAA:
		addr, err := netip.ParseAddr(value)
		if err != nil || !addr.Is6() || addr.Is4In6() {
			return Record{}, fmt.Errorf("invalid AAAA address %q", value)
		}
		rec.Addr = addr

	case TypeNS, TypeCNAME:
		if value == "" {
			return Record{}, fmt.Errorf("%s record needs a target host", rtype)
		}
		rec.Host = value

	case TypeMX:
		parts := strings.Fields(value)
		if len(parts) != 2 {
			return Record{}, fmt.Errorf("invalid MX value %q (expected: preference exchange)", value)
		}
		pref, err := strconv.ParseUint(parts[0], 10, 16)
		if err != nil {
			return Record{}, fmt.Errorf("invalid MX preference %q", parts[0])
		}
		rec.Preference = uint16(pref)
		rec.Host = parts[1]

	case TypeSOA:
		parts := strings.Fields(value)
		if len(parts) != 7 {
			return Record{}, fmt.Errorf("invalid SOA value %q (expected: mname rname serial refresh retry expire minimum)", value)
		}
		rec.MName = parts[0]
		rec.RName = parts[1]
		for i, dst := range [...]*uint32{&rec.Serial, &rec.Refresh, &rec.Retry, &rec.Expire, &rec.Minimum} {
			v, err := strconv.ParseUint(parts[i+2], 10, 32)
			if err != nil {
				return Record{}, fmt.Errorf("invalid SOA field %q", parts[i+2])
			}
			*dst = uint32(v)
		}

	default:
		return Record{}, fmt.Errorf("cannot parse records of type %s", rtype)
	}

	return rec, nil
}
