// Package resclone mirrors a gateleen resource tree to and from a tar
// archive.
//
// A pull walks the JSON collection listings below a root URL depth
// first, GETs every leaf and appends it to the archive as a regular
// file. A per-depth regex Filter prunes the walk. A push reads the
// regular files of an archive back and PUTs each one below the root
// URL, with a Content-Type derived from its extension.
//
// Requests are strictly sequential. Failures carry a Kind, see Error.
package resclone
