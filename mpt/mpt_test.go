package mpt

import (
	"bytes"
	"testing"
)

func keyNibbles(s string) Nibbles {
	return KeyToNibbles([]byte(s))
}

// buildFlat inserts every (key, value) pair into an initially-empty trie via
// the HashBuilder and returns the resulting root.
func buildFlat(t *testing.T, pairs map[string]string) Node {
	t.Helper()
	hb := &HashBuilder{}
	var root Node = Null{}
	for k, v := range pairs {
		var err error
		root, err = hb.insert(root, keyNibbles(k), []byte(v))
		if err != nil {
			t.Fatalf("insert(%q): %v", k, err)
		}
	}
	return root
}

func TestInsertGetRoundTrip(t *testing.T) {
	pairs := map[string]string{
		"dog":     "puppy",
		"doge":    "coin",
		"horse":   "stallion",
		"do":      "verb",
		"doggies": "many",
	}
	root := buildFlat(t, pairs)

	for k, want := range pairs {
		got, found, err := Get(root, keyNibbles(k))
		if err != nil {
			t.Fatalf("get(%q): %v", k, err)
		}
		if !found {
			t.Fatalf("get(%q): not found", k)
		}
		if !bytes.Equal(got, []byte(want)) {
			t.Fatalf("get(%q) = %q, want %q", k, got, want)
		}
	}

	if _, found, err := Get(root, keyNibbles("cat")); err != nil || found {
		t.Fatalf("get(\"cat\") = (found=%v, err=%v), want not found", found, err)
	}
}

func TestHashStableAcrossInsertionOrder(t *testing.T) {
	pairs := map[string]string{
		"dog":   "puppy",
		"doge":  "coin",
		"horse": "stallion",
	}

	hb := &HashBuilder{}
	var rootA Node = Null{}
	for _, k := range []string{"dog", "doge", "horse"} {
		var err error
		rootA, err = hb.insert(rootA, keyNibbles(k), []byte(pairs[k]))
		if err != nil {
			t.Fatal(err)
		}
	}

	var rootB Node = Null{}
	for _, k := range []string{"horse", "dog", "doge"} {
		var err error
		rootB, err = hb.insert(rootB, keyNibbles(k), []byte(pairs[k]))
		if err != nil {
			t.Fatal(err)
		}
	}

	ha, err := Hash(rootA)
	if err != nil {
		t.Fatal(err)
	}
	hb2, err := Hash(rootB)
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb2 {
		t.Fatalf("hash depends on insertion order: %x != %x", ha, hb2)
	}
}

func TestDeleteSingleLeafCollapsesToNull(t *testing.T) {
	hb := &HashBuilder{}
	root, err := hb.insert(Null{}, keyNibbles("only"), []byte("value"))
	if err != nil {
		t.Fatal(err)
	}
	root, err = hb.Update(root, []Write{{Key: keyNibbles("only"), Value: nil}})
	if err != nil {
		t.Fatal(err)
	}
	if _, isNull := root.(Null); !isNull {
		t.Fatalf("expected Null after deleting the only leaf, got %T", root)
	}
}

func TestDeleteMergesSurvivingSibling(t *testing.T) {
	pairs := map[string]string{
		"dog":  "puppy",
		"doge": "coin",
	}
	root := buildFlat(t, pairs)

	hb := &HashBuilder{}
	root, err := hb.Update(root, []Write{{Key: keyNibbles("doge"), Value: nil}})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, found, err := Get(root, keyNibbles("dog"))
	if err != nil || !found {
		t.Fatalf("get(dog) after deleting doge: found=%v err=%v", found, err)
	}
	if !bytes.Equal(got, []byte("puppy")) {
		t.Fatalf("get(dog) = %q, want puppy", got)
	}
	if _, found, _ := Get(root, keyNibbles("doge")); found {
		t.Fatal("doge should be gone")
	}

	// After removing one of two leaves sharing a prefix, the remaining
	// entry should collapse to a single Leaf (possibly under an Extension),
	// not leave a dangling Branch.
	switch root.(type) {
	case *Leaf, *Extension:
	default:
		t.Fatalf("expected collapse to Leaf/Extension, got %T", root)
	}
}

func TestResolveExpandsDigest(t *testing.T) {
	leaf := &Leaf{Key: keyNibbles("x"), Value: []byte("y")}
	enc, err := EncodeNode(leaf)
	if err != nil {
		t.Fatal(err)
	}
	h, err := Hash(leaf)
	if err != nil {
		t.Fatal(err)
	}

	table := map[[32]byte][]byte{h: enc}
	resolved, err := Resolve(Digest{Hash: h}, table)
	if err != nil {
		t.Fatal(err)
	}
	got, found, err := Get(resolved, keyNibbles("x"))
	if err != nil || !found || !bytes.Equal(got, []byte("y")) {
		t.Fatalf("resolved lookup failed: got=%q found=%v err=%v", got, found, err)
	}
}

func TestResolveEmptyRootDigestIsNull(t *testing.T) {
	resolved, err := Resolve(Digest{Hash: emptyNodeHash}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, isNull := resolved.(Null); !isNull {
		t.Fatalf("expected Null for the canonical empty-trie digest, got %T", resolved)
	}
}

func TestGetOnUnresolvedDigestFails(t *testing.T) {
	_, _, err := Get(Digest{Hash: [32]byte{1}}, keyNibbles("x"))
	if err != ErrUnresolved {
		t.Fatalf("err = %v, want ErrUnresolved", err)
	}
}

func TestForEachLeavesVisitsInNibbleOrder(t *testing.T) {
	pairs := map[string]string{
		"b": "2",
		"a": "1",
		"c": "3",
	}
	root := buildFlat(t, pairs)

	var order []string
	err := ForEachLeaves(root, nil, func(key Nibbles, value []byte) error {
		order = append(order, string(key.Bytes()))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestCompactEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		nib  Nibbles
		term bool
	}{
		{Nibbles{1, 2, 3, 4}, false},
		{Nibbles{1, 2, 3}, false},
		{Nibbles{}, true},
		{Nibbles{0xf}, true},
	}
	for _, c := range cases {
		enc := compactEncode(c.nib, c.term)
		gotNib, gotTerm := compactDecode(enc)
		if gotTerm != c.term {
			t.Fatalf("compactDecode(%v) terminator = %v, want %v", c.nib, gotTerm, c.term)
		}
		if len(gotNib) != len(c.nib) {
			t.Fatalf("compactDecode(%v) = %v, want same length", c.nib, gotNib)
		}
		for i := range c.nib {
			if gotNib[i] != c.nib[i] {
				t.Fatalf("compactDecode(%v) = %v, want %v", c.nib, gotNib, c.nib)
			}
		}
	}
}

func TestEncodeDecodeNodeRoundTrip(t *testing.T) {
	leaf := &Leaf{Key: keyNibbles("cat"), Value: []byte("meow")}
	enc, err := EncodeNode(leaf)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(enc)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := decoded.(*Leaf)
	if !ok {
		t.Fatalf("decoded type = %T, want *Leaf", decoded)
	}
	if !bytes.Equal(got.Value, leaf.Value) {
		t.Fatalf("decoded value = %q, want %q", got.Value, leaf.Value)
	}
}
