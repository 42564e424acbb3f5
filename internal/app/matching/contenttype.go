package matching

import (
	"bytes"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"
)

const (
	MediaTypeJSON      = "application/json"
	MediaTypeText      = "text/plain"
	MediaTypeXML       = "application/xml"
	MediaTypeForm      = "application/x-www-form-urlencoded"
	MediaTypeMultipart = "multipart/form-data"
	MediaTypeBinary    = "application/octet-stream"
)

// BaseMediaType strips parameters and lower-cases a content type. Unparseable
// values are returned trimmed and lower-cased.
func BaseMediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		base := strings.SplitN(contentType, ";", 2)[0]
		return strings.ToLower(strings.TrimSpace(base))
	}
	return mediaType
}

func SameMediaType(expected, actual string) bool {
	return BaseMediaType(expected) == BaseMediaType(actual)
}

func IsJSON(contentType string) bool {
	base := BaseMediaType(contentType)
	return base == MediaTypeJSON || strings.HasSuffix(base, "+json")
}

func IsXML(contentType string) bool {
	base := BaseMediaType(contentType)
	return base == MediaTypeXML || base == "text/xml" || strings.HasSuffix(base, "+xml")
}

// IsTextual reports whether bodies of this type are stored as strings rather
// than base64 in contract files.
func IsTextual(contentType string) bool {
	base := BaseMediaType(contentType)
	switch {
	case base == "":
		return false
	case strings.HasPrefix(base, "text/"), IsJSON(base), IsXML(base):
		return true
	case base == MediaTypeForm, base == "application/javascript":
		return true
	}
	return false
}

// DetectContentType guesses the type of a body that declares none.
func DetectContentType(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return MediaTypeText
	}
	if (trimmed[0] == '{' || trimmed[0] == '[') && isValidJSON(trimmed) {
		return MediaTypeJSON
	}
	if bytes.HasPrefix(trimmed, []byte("<?xml")) {
		return MediaTypeXML
	}
	detected := BaseMediaType(http.DetectContentType(body))
	if detected == MediaTypeBinary && utf8.Valid(body) {
		return MediaTypeText
	}
	return detected
}

func isValidJSON(data []byte) bool {
	_, err := DecodeJSON(data)
	return err == nil
}

const nonUTF8Body = "ERROR: could not convert to UTF-8 from bytes"

// BodyString renders a body for diagnostics. Bytes that are not UTF-8 are
// replaced by a fixed error marker.
func BodyString(body []byte) string {
	if !utf8.Valid(body) {
		return nonUTF8Body
	}
	return string(body)
}
