package demux

import (
	"testing"

	"github.com/zsiec/avdemux/internal/lavf"
)

func TestMeta(t *testing.T) {
	t.Parallel()
	c := &fakeContext{
		streams: []lavf.Stream{videoStream(0)},
		meta: map[string]string{
			"TITLE":      "Big Buck Bunny",
			"artist":     "Blender",
			"comment":    "open movie",
			"encoder":    "Lavf60.3.100",
			"encoded_by": "someone",
			"album":      "bad\xff",
			"unrelated":  "x",
		},
	}
	s, _ := openFake(t, "mp4", c)
	got := s.Meta()

	want := map[MetaKey]string{
		MetaTitle:       "Big Buck Bunny",
		MetaArtist:      "Blender",
		MetaDescription: "open movie",
		MetaSetting:     "Lavf60.3.100",
		MetaEncodedBy:   "someone",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%v: got %q, want %q", k, got[k], v)
		}
	}
}

func TestMetaKeyNames(t *testing.T) {
	t.Parallel()
	for _, k := range MetaKeys {
		if k.containerKey() == "" || k.String() == "" {
			t.Fatalf("key %d has no name", int(k))
		}
	}
	if got := MetaDescription.containerKey(); got != "comment" {
		t.Fatalf("got %q, want comment", got)
	}
}
