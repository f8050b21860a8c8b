package wire

import (
	"fmt"
	"net/netip"
)

// Record is a resource record: a closed sum over the types in §RecordType,
// discriminated by Type. Only the payload fields for the active variant
// are meaningful; everything else is zero. Keeping the union flat means
// record operations — Read, Write, Key — are single switches rather than
// an interface hierarchy.
type Record struct {
	Name string
	Type RecordType
	TTL  uint32

	// A, AAAA
	Addr netip.Addr

	// NS, CNAME target; MX exchange; SOA handling uses MName/RName below.
	Host string

	// MX
	Preference uint16

	// SOA
	MName   string
	RName   string
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32

	// Unknown: the raw type code and the RDLENGTH that was skipped.
	RawType uint16
	DataLen uint16
}

// ReadRecord parses one resource record at the buffer cursor. Records of
// unrecognised types have their RDATA skipped and come back as Unknown
// records carrying the raw type code and payload length.
func ReadRecord(buf *PacketBuffer) (Record, error) {
	name, err := buf.ReadName()
	if err != nil {
		return Record{}, err
	}

	typeNum, err := buf.ReadUint16()
	if err != nil {
		return Record{}, err
	}
	if _, err := buf.ReadUint16(); err != nil { // class, ignored on read
		return Record{}, err
	}
	ttl, err := buf.ReadUint32()
	if err != nil {
		return Record{}, err
	}
	rdLen, err := buf.ReadUint16()
	if err != nil {
		return Record{}, err
	}

	rec := Record{Name: name, TTL: ttl}

	switch RecordType(typeNum) {
	case TypeA:
		raw, err := buf.ReadUint32()
		if err != nil {
			return Record{}, err
		}
		rec.Type = TypeA
		rec.Addr = netip.AddrFrom4([4]byte{
			byte(raw >> 24), byte(raw >> 16), byte(raw >> 8), byte(raw),
		})

	case TypeAAAA:
		var raw [16]byte
		for i := 0; i < 16; i++ {
			b, err := buf.ReadUint8()
			if err != nil {
				return Record{}, err
			}
			raw[i] = b
		}
		rec.Type = TypeAAAA
		rec.Addr = netip.AddrFrom16(raw)

	case TypeNS, TypeCNAME:
		host, err := buf.ReadName()
		if err != nil {
			return Record{}, err
		}
		rec.Type = RecordType(typeNum)
		rec.Host = host

	case TypeMX:
		pref, err := buf.ReadUint16()
		if err != nil {
			return Record{}, err
		}
		host, err := buf.ReadName()
		if err != nil {
			return Record{}, err
		}
		rec.Type = TypeMX
		rec.Preference = pref
		rec.Host = host

	case TypeSOA:
		rec.Type = TypeSOA
		if rec.MName, err = buf.ReadName(); err != nil {
			return Record{}, err
		}
		if rec.RName, err = buf.ReadName(); err != nil {
			return Record{}, err
		}
		if rec.Serial, err = buf.ReadUint32(); err != nil {
			return Record{}, err
		}
		if rec.Refresh, err = buf.ReadUint32(); err != nil {
			return Record{}, err
		}
		if rec.Retry, err = buf.ReadUint32(); err != nil {
			return Record{}, err
		}
		if rec.Expire, err = buf.ReadUint32(); err != nil {
			return Record{}, err
		}
		if rec.Minimum, err = buf.ReadUint32(); err != nil {
			return Record{}, err
		}

	default:
		rec.Type = RecordType(typeNum)
		rec.RawType = typeNum
		rec.DataLen = rdLen
		if err := buf.Step(int(rdLen)); err != nil {
			return Record{}, err
		}
	}

	return rec, nil
}

// Write serialises the record at the buffer cursor and returns the number
// of octets written. Variable-length RDATA reserves two octets for
// RDLENGTH and back-patches them once the payload size is known. Unknown
// records are not emitted; callers drop them from section counts first.
func (r *Record) Write(buf *PacketBuffer) (int, error) {
	start := buf.Pos()

	switch r.Type {
	case TypeA:
		if err := r.writePreamble(buf); err != nil {
			return 0, err
		}
		if err := buf.WriteUint16(4); err != nil {
			return 0, err
		}
		v4 := r.Addr.As4()
		for _, b := range v4 {
			if err := buf.WriteUint8(b); err != nil {
				return 0, err
			}
		}

	case TypeAAAA:
		if err := r.writePreamble(buf); err != nil {
			return 0, err
		}
		if err := buf.WriteUint16(16); err != nil {
			return 0, err
		}
		v6 := r.Addr.As16()
		for _, b := range v6 {
			if err := buf.WriteUint8(b); err != nil {
				return 0, err
			}
		}

	case TypeNS, TypeCNAME:
		pos, err := r.writePreambleDeferred(buf)
		if err != nil {
			return 0, err
		}
		if err := buf.WriteName(r.Host); err != nil {
			return 0, err
		}
		if err := patchRDLength(buf, pos); err != nil {
			return 0, err
		}

	case TypeMX:
		pos, err := r.writePreambleDeferred(buf)
		if err != nil {
			return 0, err
		}
		if err := buf.WriteUint16(r.Preference); err != nil {
			return 0, err
		}
		if err := buf.WriteName(r.Host); err != nil {
			return 0, err
		}
		if err := patchRDLength(buf, pos); err != nil {
			return 0, err
		}

	case TypeSOA:
		pos, err := r.writePreambleDeferred(buf)
		if err != nil {
			return 0, err
		}
		if err := buf.WriteName(r.MName); err != nil {
			return 0, err
		}
		if err := buf.WriteName(r.RName); err != nil {
			return 0, err
		}
		for _, v := range [...]uint32{r.Serial, r.Refresh, r.Retry, r.Expire, r.Minimum} {
			if err := buf.WriteUint32(v); err != nil {
				return 0, err
			}
		}
		if err := patchRDLength(buf, pos); err != nil {
			return 0, err
		}

	default:
		// Unknown records are carried in memory but never re-emitted.
		return 0, nil
	}

	return buf.Pos() - start, nil
}

// writePreamble emits name, type, class, and TTL.
func (r *Record) writePreamble(buf *PacketBuffer) error {
	if err := buf.WriteName(r.Name); err != nil {
		return err
	}
	if err := buf.WriteUint16(uint16(r.Type)); err != nil {
		return err
	}
	if err := buf.WriteUint16(ClassIN); err != nil {
		return err
	}
	return buf.WriteUint32(r.TTL)
}

// writePreambleDeferred emits the preamble plus a placeholder RDLENGTH,
// returning the placeholder position for patchRDLength.
func (r *Record) writePreambleDeferred(buf *PacketBuffer) (int, error) {
	if err := r.writePreamble(buf); err != nil {
		return 0, err
	}
	pos := buf.Pos()
	if err := buf.WriteUint16(0); err != nil {
		return 0, err
	}
	return pos, nil
}

// patchRDLength back-fills the RDLENGTH placeholder at pos with the number
// of octets written since.
func patchRDLength(buf *PacketBuffer, pos int) error {
	size := buf.Pos() - (pos + 2)
	if size < 0 || size > 0xFFFF {
		return fmt.Errorf("%w: rdata of %d octets", ErrInvalidPacket, size)
	}
	return buf.SetUint16(pos, uint16(size))
}

// Writable reports whether the record can be serialised; Unknown records
// cannot.
func (r *Record) Writable() bool {
	return r.Type.Known()
}

// Key returns the record's identity for cache and zone de-duplication:
// two records with equal keys state the same fact and replace one another.
// The owner name is not part of the key; buckets are already per-name.
func (r *Record) Key() string {
	switch r.Type {
	case TypeA, TypeAAAA:
		return r.Type.String() + "|" + r.Addr.String()
	case TypeNS, TypeCNAME:
		return r.Type.String() + "|" + r.Host
	case TypeMX:
		return fmt.Sprintf("MX|%d|%s", r.Preference, r.Host)
	case TypeSOA:
		return "SOA|" + r.MName
	default:
		return fmt.Sprintf("TYPE%d|%d", r.RawType, r.DataLen)
	}
}

// Value renders the record payload in zone-file presentation form.
func (r *Record) Value() string {
	switch r.Type {
	case TypeA, TypeAAAA:
		return r.Addr.String()
	case TypeNS, TypeCNAME:
		return r.Host
	case TypeMX:
		return fmt.Sprintf("%d %s", r.Preference, r.Host)
	case TypeSOA:
		return fmt.Sprintf("%s %s %d %d %d %d %d",
			r.MName, r.RName, r.Serial, r.Refresh, r.Retry, r.Expire, r.Minimum)
	default:
		return fmt.Sprintf("\\# %d", r.DataLen)
	}
}
