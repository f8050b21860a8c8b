// Package zonefile loads zone documents (YAML, JSON, or TOML) from a
// directory into authority zones at startup.
package zonefile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"

	"github.com/quilldns/quill/internal/dns/common/dnsname"
	"github.com/quilldns/quill/internal/dns/wire"
)

// Document is one parsed zone file.
type Document struct {
	Apex    string
	MName   string
	RName   string
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
	Records []wire.Record
}

// LoadDirectory walks dir and parses every supported zone file, skipping
// files with other extensions. A parse failure in any file fails the
// whole load; serving half a zone directory is worse than not starting.
func LoadDirectory(dir string, defaultTTL time.Duration) ([]Document, error) {
	var docs []Document
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		doc, ok, err := loadFile(path, defaultTTL)
		if err != nil {
			return fmt.Errorf("zone file %s: %w", path, err)
		}
		if ok {
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func loadFile(path string, defaultTTL time.Duration) (Document, bool, error) {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	case ".toml":
		parser = toml.Parser()
	default:
		return Document{}, false, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return Document{}, false, err
	}

	apex := dnsname.Canonical(k.String("zone_root"))
	if apex == "" {
		return Document{}, false, fmt.Errorf("missing 'zone_root'")
	}

	doc := Document{
		Apex:    apex,
		MName:   dnsname.Canonical(k.String("primary_ns")),
		RName:   dnsname.Canonical(k.String("admin")),
		Refresh: uint32(k.Int64("refresh")),
		Retry:   uint32(k.Int64("retry")),
		Expire:  uint32(k.Int64("expire")),
		Minimum: uint32(k.Int64("minimum")),
	}

	records, ok := k.Raw()["records"].(map[string]any)
	if !ok {
		return doc, true, nil
	}
	for label, raw := range records {
		byType, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		fqdn := dnsname.Canonical(expandName(label, apex))
		for typeName, val := range byType {
			rtype := wire.RecordTypeFromString(strings.ToUpper(typeName))
			if rtype == 0 {
				return Document{}, false, fmt.Errorf("unsupported record type %q for %s", typeName, fqdn)
			}
			for _, value := range stringValues(val) {
				rec, err := wire.ParseRecord(fqdn, rtype, uint32(defaultTTL.Seconds()), value)
				if err != nil {
					return Document{}, false, err
				}
				doc.Records = append(doc.Records, rec)
			}
		}
	}
	return doc, true, nil
}

// expandName turns a zone-file label into a fully qualified name: '@' is
// the apex, absolute names (trailing dot) stand alone, and anything else
// is relative to the apex.
func expandName(label, apex string) string {
	if label == "@" {
		return apex
	}
	if strings.HasSuffix(label, ".") {
		return label
	}
	return label + "." + apex
}

// stringValues accepts either a scalar string or a list of strings,
// skipping empty and non-string elements.
func stringValues(val any) []string {
	switch v := val.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		return []string{s}
	case []any:
		out := make([]string, 0, len(v))
		for _, elem := range v {
			s, ok := elem.(string)
			if !ok {
				continue
			}
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			out = append(out, s)
		}
		return out
	default:
		return nil
	}
}
