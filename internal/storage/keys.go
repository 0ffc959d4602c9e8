package storage

import (
	"fmt"
	"net/url"
	"strings"
)

// Key layout:
//
//	meta:version                          schema version
//	meta:collection:{name}                collection definition (JSON)
//	meta:seq:{name}                       last insertion sequence
//	c:{name}:r:{id}                       record envelope (JSON)
//	c:{name}:u:{field}:{value}            unique index -> id
//	c:{name}:i:{field}:{value}:{id}       non-unique index entry
//
// Values and IDs are query-escaped so they never contain ':'.

var metaVersionKey = []byte("meta:version")

func metaCollectionKey(name string) []byte {
	return []byte("meta:collection:" + name)
}

func metaSeqKey(name string) []byte {
	return []byte("meta:seq:" + name)
}

func recordKey(collection, id string) []byte {
	return []byte(fmt.Sprintf("c:%s:r:%s", collection, esc(id)))
}

func recordPrefix(collection string) []byte {
	return []byte(fmt.Sprintf("c:%s:r:", collection))
}

func uniqueKey(collection, field, value string) []byte {
	return []byte(fmt.Sprintf("c:%s:u:%s:%s", collection, field, esc(value)))
}

func indexKey(collection, field, value, id string) []byte {
	return []byte(fmt.Sprintf("c:%s:i:%s:%s:%s", collection, field, esc(value), esc(id)))
}

func indexValuePrefix(collection, field, value string) []byte {
	return []byte(fmt.Sprintf("c:%s:i:%s:%s:", collection, field, esc(value)))
}

// idFromIndexKey recovers the record ID from a non-unique index key.
func idFromIndexKey(key, prefix []byte) (string, error) {
	raw := strings.TrimPrefix(string(key), string(prefix))
	return url.QueryUnescape(raw)
}

func esc(s string) string {
	return url.QueryEscape(s)
}
