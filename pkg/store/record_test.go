package store

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestRecordJSONFlattening(t *testing.T) {
	r := Record{
		Phone:          "79991234567",
		FormattedPhone: "+7 (999) 123-45-67",
		Fields:         map[string]string{"last_name": "Иванов", "birth_date": "1980-01-02"},
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// Wire form is flat: source fields sit next to the phone keys.
	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("unmarshal flat: %v", err)
	}
	want := map[string]string{
		"phone":          "79991234567",
		"formattedPhone": "+7 (999) 123-45-67",
		"last_name":      "Иванов",
		"birth_date":     "1980-01-02",
	}
	if !reflect.DeepEqual(flat, want) {
		t.Errorf("wire form = %v, want %v", flat, want)
	}

	var back Record
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	if !reflect.DeepEqual(back, r) {
		t.Errorf("roundtrip = %+v, want %+v", back, r)
	}
}

func TestRecordJSONNoFields(t *testing.T) {
	r := Record{Phone: "79991234567", FormattedPhone: "+7 (999) 123-45-67"}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Record
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Fields != nil {
		t.Errorf("Fields = %v, want nil", back.Fields)
	}
	if !reflect.DeepEqual(back, r) {
		t.Errorf("roundtrip = %+v, want %+v", back, r)
	}
}

func TestPartitionMerge(t *testing.T) {
	a := Partition{
		"79991234567": {Phone: "79991234567"},
		"79991234568": {Phone: "79991234568", Fields: map[string]string{"v": "old"}},
	}
	b := Partition{
		"79991234568": {Phone: "79991234568", Fields: map[string]string{"v": "new"}},
		"79991234569": {Phone: "79991234569"},
	}
	a.Merge(b)
	if len(a) != 3 {
		t.Fatalf("merged size = %d, want 3", len(a))
	}
	if a["79991234568"].Fields["v"] != "new" {
		t.Error("merge did not prefer incoming record on collision")
	}
}
