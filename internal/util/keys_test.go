package util

import (
	"strings"
	"testing"
)

func TestProjectHashStableAndDistinct(t *testing.T) {
	a1 := ProjectHash("/work/a")
	a2 := ProjectHash("/work/a")
	b := ProjectHash("/work/b")
	if a1 != a2 {
		t.Fatalf("hash not stable: %s vs %s", a1, a2)
	}
	if a1 == b {
		t.Fatalf("distinct locations share hash %s", a1)
	}
}

func TestStorageKeyShape(t *testing.T) {
	name := AttributeName("size", NullProject)
	if name != "gist@size@###null###" {
		t.Fatalf("name: %s", name)
	}
	k := StorageKey(name, 3, 17)
	if k != "attr:gist@size@###null###:v3:17" {
		t.Fatalf("key: %s", k)
	}
	if StorageKey(name, 4, 17) == k {
		t.Fatalf("version must be part of the key")
	}
	if !strings.HasSuffix(StorageKey(name, 3, 4294967295), ":4294967295") {
		t.Fatalf("max file id not rendered unsigned")
	}
}
