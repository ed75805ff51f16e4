package resclone

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/gateleen/resclone/mime"
	"github.com/gateleen/resclone/misc"
)

// UploaderConfig wires an Uploader.
type UploaderConfig struct {
	Session   *Session
	Transport *Transport
	Logger    *misc.Logger
	Metrics   *Metrics
	Stats     *misc.ProgressStats
}

// Uploader PUTs archive entries below the root URL, one at a time.
type Uploader struct {
	// base is the root URL without its trailing '/'.
	base      string
	transport *Transport
	logger    *misc.Logger
	metrics   *Metrics
	stats     *misc.ProgressStats
}

func NewUploader(cfg UploaderConfig) *Uploader {
	if cfg.Logger == nil {
		cfg.Logger = misc.Discard()
	}
	if cfg.Stats == nil {
		cfg.Stats = misc.NewProgressStats()
	}
	return &Uploader{
		base:      strings.TrimSuffix(cfg.Session.RootURL, "/"),
		transport: cfg.Transport,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		stats:     cfg.Stats,
	}
}

// URLFor returns the target URL of an entry name.
func (u *Uploader) URLFor(name string) string {
	return u.base + "/" + encodePathSegmentPreservingSlashes(name)
}

// PutEntry uploads size bytes of body as the resource name. Only a
// transport failure is an error; an unexpected status is logged.
func (u *Uploader) PutEntry(ctx context.Context, name string, body io.Reader, size int64) error {
	url := u.URLFor(name)
	contentType, ok := mime.ForPath(name)
	if !ok {
		u.logger.Debugf("Unknown file extension for '%s'. Will NOT add Content-Type header.", name)
		contentType = ""
	}

	u.logger.Infof("Upload '%s'", url)
	res, err := u.transport.Put(ctx, url, contentType, &misc.CountingReader{R: body, Stats: u.stats}, size)
	if err != nil {
		return err
	}
	if res.StatusCode <= 199 || res.StatusCode >= 300 {
		u.logger.Warnf("Got RspCode %d for 'PUT %s'", res.StatusCode, url)
		u.metrics.skip("put_status")
		return nil
	}
	u.stats.ItemDone()
	u.metrics.fileDone(ModePush)
	return nil
}

// Push uploads every regular file of src in archive order and returns
// how many PUT requests were issued.
func (u *Uploader) Push(ctx context.Context, src *ArchiveSource) (int, error) {
	u.stats.ResetStart()
	puts := 0
	for {
		if err := ctx.Err(); err != nil {
			return puts, err
		}
		entry, err := src.Next()
		if err == io.EOF {
			return puts, nil
		}
		if err != nil {
			return puts, err
		}
		// Archives made with "tar -C dir ." carry a "./" prefix.
		name := strings.TrimPrefix(entry.Name, "./")
		if !validEntryName(name) {
			u.logger.Warnf("Ignore entry with unusable name '%s'", entry.Name)
			u.metrics.skip("bad_name")
			continue
		}
		if err := u.PutEntry(ctx, name, entry.Body, entry.Size); err != nil {
			return puts, err
		}
		puts++
	}
}

// Stats returns the totals of the run so far.
func (u *Uploader) Stats() misc.StatResult {
	return u.stats.Stats(time.Now(), true)
}

// validEntryName rejects names that would leave the root URL.
func validEntryName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return false
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return false
		}
	}
	return path.Clean(name) != "."
}
