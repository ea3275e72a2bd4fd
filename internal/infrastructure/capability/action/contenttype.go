package action

import (
	"encoding/json"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// inferContentType picks the response content type: explicit value first,
// then the body file extension, then the body itself.
func inferContentType(explicit, bodyFile string, body []byte) string {
	if explicit != "" {
		return explicit
	}

	if bodyFile != "" {
		ext := strings.ToLower(filepath.Ext(bodyFile))
		switch ext {
		case ".json":
			return "application/json"
		case ".xml":
			return "application/xml"
		case ".csv":
			return "text/csv"
		}
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
	}

	if len(body) == 0 {
		return "application/octet-stream"
	}
	if json.Valid(body) {
		return "application/json"
	}
	return http.DetectContentType(body)
}
