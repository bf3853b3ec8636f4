package demux

import (
	"strings"
	"unicode/utf8"
)

// MetaKey names one of the metadata fields a Session reports.
type MetaKey int

const (
	MetaTitle MetaKey = iota
	MetaArtist
	MetaGenre
	MetaCopyright
	MetaAlbum
	MetaDescription
	MetaDate
	MetaSetting
	MetaLanguage
	MetaPublisher
	MetaEncodedBy
)

// MetaKeys lists every MetaKey in display order.
var MetaKeys = []MetaKey{
	MetaTitle, MetaArtist, MetaGenre, MetaCopyright, MetaAlbum, MetaDescription,
	MetaDate, MetaSetting, MetaLanguage, MetaPublisher, MetaEncodedBy,
}

// containerKey returns the container tag a MetaKey is read from.
func (k MetaKey) containerKey() string {
	switch k {
	case MetaTitle:
		return "title"
	case MetaArtist:
		return "artist"
	case MetaGenre:
		return "genre"
	case MetaCopyright:
		return "copyright"
	case MetaAlbum:
		return "album"
	case MetaDescription:
		return "comment"
	case MetaDate:
		return "date"
	case MetaSetting:
		return "encoder"
	case MetaLanguage:
		return "language"
	case MetaPublisher:
		return "publisher"
	case MetaEncodedBy:
		return "encoded_by"
	}
	return ""
}

func (k MetaKey) String() string {
	switch k {
	case MetaDescription:
		return "description"
	case MetaSetting:
		return "setting"
	}
	return k.containerKey()
}

// Meta returns the container metadata for the known keys. Tags are
// matched case-insensitively; values that are not valid UTF-8 are left
// out.
func (s *Session) Meta() map[MetaKey]string {
	tags := s.lc.Metadata()
	out := make(map[MetaKey]string)
	for _, k := range MetaKeys {
		if v, ok := lookupTag(tags, k.containerKey()); ok && utf8.ValidString(v) {
			out[k] = v
		}
	}
	return out
}

func lookupTag(tags map[string]string, key string) (string, bool) {
	if v, ok := tags[key]; ok {
		return v, true
	}
	for k, v := range tags {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}
