package authority

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/quilldns/quill/internal/dns/wire"
)

// BoltStore persists zones in a bbolt database, one bucket per zone apex.
// Zone metadata lives under a reserved key; each record is stored
// wire-encoded under its identity key, so the on-disk form round-trips
// through the same codec the server speaks.
type BoltStore struct {
	db *bolt.DB
}

var metaKey = []byte("\x00meta")

// OpenBolt opens (creating if needed) the zone database at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open zone db: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close releases the underlying database.
func (b *BoltStore) Close() error {
	return b.db.Close()
}

// SaveZone writes the zone's metadata and records, replacing any prior
// contents for the same apex.
func (b *BoltStore) SaveZone(z *Zone) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if bkt := tx.Bucket([]byte(z.Apex)); bkt != nil {
			if err := tx.DeleteBucket([]byte(z.Apex)); err != nil {
				return err
			}
		}
		bkt, err := tx.CreateBucket([]byte(z.Apex))
		if err != nil {
			return err
		}

		meta, err := encodeZoneMeta(z)
		if err != nil {
			return err
		}
		if err := bkt.Put(metaKey, meta); err != nil {
			return err
		}

		for key, rec := range z.records {
			buf := wire.NewPacketBuffer()
			if _, err := rec.Write(buf); err != nil {
				return fmt.Errorf("encode record %s: %w", key, err)
			}
			data := make([]byte, len(buf.Bytes()))
			copy(data, buf.Bytes())
			if err := bkt.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadAll restores every persisted zone into the store, bypassing the
// store's own persistence hook.
func (b *BoltStore) LoadAll(s *Store) error {
	return b.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(apex []byte, bkt *bolt.Bucket) error {
			z := &Zone{
				Apex:    string(apex),
				records: make(map[string]wire.Record),
			}
			err := bkt.ForEach(func(k, v []byte) error {
				if string(k) == string(metaKey) {
					return decodeZoneMeta(z, v)
				}
				buf := wire.PacketBufferFrom(v)
				rec, err := wire.ReadRecord(buf)
				if err != nil {
					return fmt.Errorf("zone %s: decode record %q: %w", apex, k, err)
				}
				z.records[string(k)] = rec
				return nil
			})
			if err != nil {
				return err
			}
			s.restore(z)
			return nil
		})
	})
}

// encodeZoneMeta packs zone metadata with the wire primitives: the two
// SOA names followed by the serial and the four timers (refresh, retry,
// expire, minimum).
func encodeZoneMeta(z *Zone) ([]byte, error) {
	buf := wire.NewPacketBuffer()
	if err := buf.WriteName(z.MName); err != nil {
		return nil, err
	}
	if err := buf.WriteName(z.RName); err != nil {
		return nil, err
	}
	for _, v := range [...]uint32{z.Serial, z.Refresh, z.Retry, z.Expire, z.Minimum} {
		if err := buf.WriteUint32(v); err != nil {
			return nil, err
		}
	}
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out, nil
}

func decodeZoneMeta(z *Zone, data []byte) error {
	buf := wire.PacketBufferFrom(data)
	var err error
	if z.MName, err = buf.ReadName(); err != nil {
		return err
	}
	if z.RName, err = buf.ReadName(); err != nil {
		return err
	}
	for _, dst := range [...]*uint32{&z.Serial, &z.Refresh, &z.Retry, &z.Expire, &z.Minimum} {
		if *dst, err = buf.ReadUint32(); err != nil {
			return err
		}
	}
	return nil
}
