package wire

// Question is a single entry of the question section: a domain name, a
// query type, and a class (always IN in practice).
type Question struct {
	Name  string
	Type  RecordType
	Class uint16
}

// Read parses a question at the buffer cursor.
func (q *Question) Read(buf *PacketBuffer) error {
	name, err := buf.ReadName()
	if err != nil {
		return err
	}
	q.Name = name

	typ, err := buf.ReadUint16()
	if err != nil {
		return err
	}
	q.Type = RecordType(typ)

	class, err := buf.ReadUint16()
	if err != nil {
		return err
	}
	q.Class = class
	return nil
}

// Write serialises the question at the buffer cursor. The class written
// is always IN.
func (q *Question) Write(buf *PacketBuffer) error {
	if err := buf.WriteName(q.Name); err != nil {
		return err
	}
	if err := buf.WriteUint16(uint16(q.Type)); err != nil {
		return err
	}
	return buf.WriteUint16(ClassIN)
}
