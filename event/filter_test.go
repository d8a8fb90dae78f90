package event

import (
	"encoding/json"
	"testing"

	"github.com/girino/nostrkit/keys"
)

func TestFilterMarshalScenarioS4(t *testing.T) {
	limit := 10
	f := Filter{Kinds: []int{1}, Limit: &limit}
	b, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"kinds":[1],"limit":10}`
	if string(b) != want {
		t.Fatalf("got %s, want %s", b, want)
	}
}

func TestFilterOmitsAbsentSelectors(t *testing.T) {
	b, err := json.Marshal(Filter{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != "{}" {
		t.Fatalf("got %s, want {}", b)
	}
}

func TestFilterRoundTripsDynamicTags(t *testing.T) {
	f := Filter{
		Kinds: []int{1, 7},
		Tags: map[string][]string{
			"e": {"abc", "def"},
			"t": {},
		},
	}
	b, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got Filter
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !got.Equal(f) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, f)
	}
	if _, ok := got.Tags["t"]; !ok {
		t.Fatal("empty #t selector did not round trip")
	}
}

func TestFilterMatches(t *testing.T) {
	kp, err := keys.New()
	if err != nil {
		t.Fatalf("keys.New: %v", err)
	}
	defer kp.Zero()
	e, err := Sign(UnsignedEvent{Kind: 1, Tags: Tags{{"e", "abc"}}, Content: "hi"}, kp)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	cases := []struct {
		name string
		f    Filter
		want bool
	}{
		{"kind match", Filter{Kinds: []int{1}}, true},
		{"kind miss", Filter{Kinds: []int{2}}, false},
		{"author match", Filter{Authors: []string{e.PubKey.Hex()}}, true},
		{"author miss", Filter{Authors: []string{"deadbeef"}}, false},
		{"tag match", Filter{Tags: map[string][]string{"e": {"abc"}}}, true},
		{"tag miss", Filter{Tags: map[string][]string{"e": {"zzz"}}}, false},
		{"no selectors", Filter{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.f.Matches(e); got != tc.want {
				t.Fatalf("Matches = %v, want %v", got, tc.want)
			}
		})
	}
}

