package store

import (
	"encoding/json"
	"fmt"
)

// Record is one indexed entry. Phone is the canonical 11-digit key and
// FormattedPhone its human-readable rendering; Fields carries whatever
// else the source layout provided (name parts, birth date, identifiers,
// raw positional values). Sources differ, so the schema beyond the two
// phone fields is open.
type Record struct {
	Phone          string
	FormattedPhone string
	Fields         map[string]string
}

// Partition is the content of one partition blob: canonical phone to
// Record for every record sharing the partition's prefix.
type Partition map[string]Record

// Merge folds other into p, with other winning on key collisions.
func (p Partition) Merge(other Partition) {
	for k, v := range other {
		p[k] = v
	}
}

// MarshalJSON flattens Fields into the record object alongside the two
// phone keys, producing the wire form {"phone": ..., "formattedPhone":
// ..., "<field>": ...}.
func (r Record) MarshalJSON() ([]byte, error) {
	flat := make(map[string]string, len(r.Fields)+2)
	for k, v := range r.Fields {
		flat[k] = v
	}
	flat["phone"] = r.Phone
	flat["formattedPhone"] = r.FormattedPhone
	return json.Marshal(flat)
}

// UnmarshalJSON is the inverse of MarshalJSON: the phone keys are lifted
// out and every other key lands in Fields.
func (r *Record) UnmarshalJSON(data []byte) error {
	flat := make(map[string]string)
	if err := json.Unmarshal(data, &flat); err != nil {
		return fmt.Errorf("unmarshal record: %w", err)
	}
	r.Phone = flat["phone"]
	r.FormattedPhone = flat["formattedPhone"]
	delete(flat, "phone")
	delete(flat, "formattedPhone")
	if len(flat) > 0 {
		r.Fields = flat
	} else {
		r.Fields = nil
	}
	return nil
}

func encodePartition(p Partition) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode partition: %w", err)
	}
	return data, nil
}

func decodePartition(data []byte) (Partition, error) {
	var p Partition
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode partition: %w", err)
	}
	if p == nil {
		p = Partition{}
	}
	return p, nil
}
