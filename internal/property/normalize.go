package property

import (
	"fmt"
	"sort"
	"strings"

	"github.com/evcraddock/property-sync/internal/apperr"
	"github.com/evcraddock/property-sync/internal/lookup"
)

// Keys promoted out of the attribute bag into named Record fields.
const (
	keyExternalID    = "zpid"
	keyExternalIDAlt = "external_id"
	keyStreet        = "address.street"
	keyPostalCode    = "address.zipcode"
)

// transportKeys name envelope sections of the result. They are dropped at
// the top level only; nested fields with the same names are data.
var transportKeys = map[string]bool{
	"raw":         true,
	"raw_payload": true,
	"request":     true,
	"message":     true,
}

// Normalize converts a lookup result into a Record. The result's raw body
// and any transport sections are discarded. Nested fields are flattened
// into dotted attribute keys and leaf values are copied verbatim.
func Normalize(res *lookup.Result) (*Record, error) {
	if res == nil || res.Fields == nil {
		return nil, apperr.New(apperr.KindMalformedRecord, "", "lookup result has no fields")
	}

	flat := make(map[string]any)
	flatten("", res.Fields, flat)

	id := scalarString(flat[keyExternalID])
	if id == "" {
		id = scalarString(flat[keyExternalIDAlt])
	}
	if id == "" {
		return nil, apperr.New(apperr.KindMalformedRecord, "", "lookup result has no external id")
	}

	rec := &Record{
		ExternalID: id,
		Address:    scalarString(flat[keyStreet]),
		PostalCode: scalarString(flat[keyPostalCode]),
	}
	for _, k := range []string{keyExternalID, keyExternalIDAlt, keyStreet, keyPostalCode} {
		delete(flat, k)
	}
	rec.Attributes = flat

	return rec, nil
}

// flatten walks a field tree, writing leaves under dotted keys. Repeated
// siblings get an index segment: photos.0.url, photos.1.url.
func flatten(prefix string, v any, out map[string]any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if prefix == "" && transportKeys[k] {
				continue
			}
			flatten(join(prefix, k), t[k], out)
		}
	case []any:
		for i, item := range t {
			flatten(join(prefix, fmt.Sprint(i)), item, out)
		}
	case []byte:
		// Byte payloads are wire data, not attributes.
	default:
		if prefix != "" {
			out[prefix] = t
		}
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
