package zonefile

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quilldns/quill/internal/dns/wire"
)

const sampleZone = `zone_root: local.test
primary_ns: ns1.local.test
admin: hostmaster.local.test
refresh: 3600
retry: 600
expire: 86400
minimum: 300
records:
  "@":
    NS: ns1.local.test
  www:
    A:
      - 10.0.0.1
      - 10.0.0.2
  mail:
    MX: 10 mx.local.test
  absolute.elsewhere.test.:
    CNAME: www.local.test
`

func writeZoneFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeZoneFile(t, dir, "local.yaml", sampleZone)
	writeZoneFile(t, dir, "notes.txt", "ignored")

	docs, err := LoadDirectory(dir, 120*time.Second)
	if err != nil {
		t.Fatalf("LoadDirectory: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("docs = %d, want 1", len(docs))
	}

	doc := docs[0]
	if doc.Apex != "local.test" || doc.MName != "ns1.local.test" || doc.RName != "hostmaster.local.test" {
		t.Errorf("metadata = %+v", doc)
	}
	if doc.Refresh != 3600 || doc.Retry != 600 || doc.Expire != 86400 || doc.Minimum != 300 {
		t.Errorf("timers = %+v", doc)
	}
	if len(doc.Records) != 5 {
		t.Fatalf("records = %d, want 5: %+v", len(doc.Records), doc.Records)
	}

	byKey := map[string]wire.Record{}
	for _, rec := range doc.Records {
		byKey[rec.Name+"|"+rec.Key()] = rec
		if rec.TTL != 120 {
			t.Errorf("TTL of %s = %d, want the 120s default", rec.Name, rec.TTL)
		}
	}

	if _, ok := byKey["local.test|NS|ns1.local.test"]; !ok {
		t.Errorf("@ did not expand to the apex: %v", byKey)
	}
	if rec, ok := byKey["www.local.test|A|10.0.0.1"]; !ok || rec.Addr != netip.AddrFrom4([4]byte{10, 0, 0, 1}) {
		t.Errorf("missing www A 10.0.0.1")
	}
	if _, ok := byKey["www.local.test|A|10.0.0.2"]; !ok {
		t.Errorf("list values did not fan out")
	}
	if rec, ok := byKey["mail.local.test|MX|10|mx.local.test"]; !ok || rec.Preference != 10 {
		t.Errorf("missing mail MX")
	}
	if _, ok := byKey["absolute.elsewhere.test|CNAME|www.local.test"]; !ok {
		t.Errorf("absolute name was relativised: %v", byKey)
	}
}

func TestLoadDirectory_Errors(t *testing.T) {
	t.Run("missing zone_root", func(t *testing.T) {
		dir := t.TempDir()
		writeZoneFile(t, dir, "broken.yaml", "records:\n  www:\n    A: 10.0.0.1\n")
		if _, err := LoadDirectory(dir, time.Minute); err == nil {
			t.Error("missing zone_root accepted")
		}
	})

	t.Run("bad record value", func(t *testing.T) {
		dir := t.TempDir()
		writeZoneFile(t, dir, "broken.yaml", "zone_root: local.test\nrecords:\n  www:\n    A: not-an-ip\n")
		if _, err := LoadDirectory(dir, time.Minute); err == nil {
			t.Error("invalid A value accepted")
		}
	})

	t.Run("unsupported type", func(t *testing.T) {
		dir := t.TempDir()
		writeZoneFile(t, dir, "broken.yaml", "zone_root: local.test\nrecords:\n  www:\n    TXT: hello\n")
		if _, err := LoadDirectory(dir, time.Minute); err == nil {
			t.Error("unsupported record type accepted")
		}
	})
}
