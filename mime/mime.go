// Package mime maps file name extensions to the content types the
// gateleen tree expects on upload.
package mime

// byExt is case sensitive on purpose: "JSON" is not "json".
var byExt = map[string]string{
	"7z":    "application/x-7z-compressed",
	"bin":   "application/octet-stream",
	"css":   "text/css",
	"csv":   "text/csv",
	"gif":   "image/gif",
	"gz":    "application/gzip",
	"htm":   "text/html",
	"html":  "text/html",
	"ico":   "image/vnd.microsoft.icon",
	"jar":   "application/java-archive",
	"jpeg":  "image/jpeg",
	"jpg":   "image/jpeg",
	"js":    "text/javascript",
	"json":  "application/json",
	"mp3":   "audio/mpeg",
	"mpeg":  "video/mpeg",
	"odp":   "application/vnd.oasis.opendocument.presentation",
	"ods":   "application/vnd.oasis.opendocument.spreadsheet",
	"odt":   "application/vnd.oasis.opendocument.text",
	"pdf":   "application/pdf",
	"png":   "image/png",
	"svg":   "image/svg+xml",
	"tar":   "application/x-tar",
	"txt":   "text/plain",
	"wav":   "audio/wav",
	"weba":  "audio/webm",
	"webm":  "video/webm",
	"webp":  "image/webp",
	"woff":  "font/woff",
	"woff2": "font/woff2",
	"xhtml": "application/xhtml+xml",
	"xml":   "text/xml",
	"zip":   "application/zip",
}

// DefaultType is what gateleen assumes for resources without extension.
const DefaultType = "application/json"

// ExtToMime returns the content type for ext (without the leading dot).
func ExtToMime(ext string) (string, bool) {
	t, ok := byExt[ext]
	return t, ok
}

// ForPath infers the Content-Type to send for a resource path.
// The extension is whatever follows the last '.' of the last segment.
// Paths without an extension (or ending in '/') get DefaultType. An
// unknown extension yields ok == false: send no Content-Type at all.
func ForPath(p string) (contentType string, ok bool) {
	i := len(p) - 1
	for ; i >= 0; i-- {
		if p[i] == '.' || p[i] == '/' {
			break
		}
	}
	if i < 0 || p[i] == '/' {
		return DefaultType, true
	}
	return ExtToMime(p[i+1:])
}
