package endpoint_test

import (
	"reflect"
	"testing"

	"github.com/sophialabs/plugmock/internal/domain/endpoint"
)

func TestClone_NestedMaps(t *testing.T) {
	orig := map[string]any{
		"user": map[string]any{"name": "ada", "tags": []any{"a", "b"}},
		"n":    1,
	}

	cp := endpoint.Clone(orig).(map[string]any)
	if !reflect.DeepEqual(cp, orig) {
		t.Fatalf("clone differs: %v vs %v", cp, orig)
	}

	cp["user"].(map[string]any)["name"] = "bob"
	cp["user"].(map[string]any)["tags"].([]any)[0] = "z"

	user := orig["user"].(map[string]any)
	if user["name"] != "ada" {
		t.Errorf("original map mutated: %v", user["name"])
	}
	if user["tags"].([]any)[0] != "a" {
		t.Errorf("original slice mutated: %v", user["tags"])
	}
}

type profile struct {
	Name   string
	Emails []string
	Meta   map[string]int
}

func TestClone_Structs(t *testing.T) {
	orig := &profile{Name: "ada", Emails: []string{"a@x"}, Meta: map[string]int{"k": 1}}

	cp := endpoint.Clone(orig).(*profile)
	if cp == orig {
		t.Fatal("expected a distinct pointer")
	}
	cp.Emails[0] = "b@x"
	cp.Meta["k"] = 2

	if orig.Emails[0] != "a@x" || orig.Meta["k"] != 1 {
		t.Errorf("original struct mutated: %+v", orig)
	}
}

func TestClone_Scalars(t *testing.T) {
	for _, v := range []any{nil, "s", 3, 2.5, true} {
		if got := endpoint.Clone(v); got != v {
			t.Errorf("Clone(%v) = %v", v, got)
		}
	}
}
