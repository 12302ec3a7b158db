package store

import (
	"reflect"
	"testing"
)

func TestCommitteeNamesJSONRoundTrip(t *testing.T) {
	cases := [][]string{
		nil,
		{},
		{"司法及法制委員會"},
		{"內政委員會", "外交及國防委員會", "財政委員會"},
	}
	for _, names := range cases {
		encoded, err := encodeCommitteeNamesJSON(names)
		if err != nil {
			t.Fatalf("encode(%v): %v", names, err)
		}
		decoded, err := decodeCommitteeNamesJSON(encoded)
		if err != nil {
			t.Fatalf("decode(%q): %v", encoded, err)
		}
		want := names
		if want == nil {
			want = []string{}
		}
		if !reflect.DeepEqual(decoded, want) {
			t.Errorf("round trip %v -> %q -> %v, want %v", names, encoded, decoded, want)
		}
	}
}

func TestDecodeCommitteeNamesJSONEmptyString(t *testing.T) {
	decoded, err := decodeCommitteeNamesJSON("")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 0 {
		t.Errorf("decoded = %v, want empty", decoded)
	}
}
