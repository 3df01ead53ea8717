package keyspace

import (
	"encoding/base64"
	"encoding/json"

	"github.com/clinnotes/clinnotes/internal/platform/kvstore"
)

// EncodeCursor packs a continuation key into an opaque URL-safe token.
func EncodeCursor(key kvstore.Key) string {
	raw, _ := json.Marshal(key)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor unpacks a client-supplied cursor for resuming a note
// scan within partition. Cursors are a resume convenience, not an
// authorization boundary: any structural or semantic mismatch yields
// nil and the caller starts from the beginning. The decoded partition
// must equal the caller's already-authorized partition and the sort key
// must stay inside the note family; the returned key is rebuilt from
// the caller's partition so a forged cursor can never redirect the scan.
func DecodeCursor(cursor, partition string) *kvstore.Key {
	if cursor == "" {
		return nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil
	}
	var key kvstore.Key
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil
	}
	if key.Partition != partition {
		return nil
	}
	if _, _, err := ParsePatientPartition(key.Partition); err != nil {
		return nil
	}
	if _, _, err := ParseNoteSort(key.Sort); err != nil {
		return nil
	}
	return &kvstore.Key{Partition: partition, Sort: key.Sort}
}
