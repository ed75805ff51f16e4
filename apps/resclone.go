package apps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/gateleen/resclone/misc"
	"github.com/gateleen/resclone/resclone"
)

// ErrHelp is returned by AppResCloneConfigByArgs after printing usage.
var ErrHelp = errors.New("help requested")

// ==========================================
// Section 1: Configuration & Flags
// ==========================================

type AppResCloneConfig struct {
	Logger  *misc.Logger
	Session *resclone.Session

	Header      http.Header
	NoCompress  bool
	ForceTTY    bool
	MetricsFile string

	// Stdout is checked for a terminal before pulling to it.
	Stdout *os.File
}

func AppResCloneConfigByArgs(logWriter io.Writer, args []string) (*AppResCloneConfig, error) {
	var (
		pull, push             bool
		rawURL                 string
		filterPart, filterFull string
		file, compress         string
		headers                []string
		verbose, quiet, help   bool
	)
	config := &AppResCloneConfig{Stdout: os.Stdout}

	fs := pflag.NewFlagSet("resclone", pflag.ContinueOnError)
	fs.SetOutput(logWriter)
	fs.BoolVar(&pull, "pull", false, "download the remote tree into a tar archive")
	fs.BoolVar(&push, "push", false, "upload the regular files of a tar archive")
	fs.StringVar(&rawURL, "url", "", "root node of the remote tree")
	fs.StringVar(&filterPart, "filter-part", "", "per-segment regex path filter; deeper paths are accepted")
	fs.StringVar(&filterFull, "filter-full", "", "like --filter-part, but deeper paths are rejected")
	fs.StringVar(&file, "file", "", "archive to read/write (default stdin/stdout)")
	fs.StringArrayVar(&headers, "header", nil, "extra request header \"Name: value\" (repeatable)")
	fs.StringVar(&compress, "compress", "", "compress the pulled archive: none, gzip or zstd (default from --file suffix)")
	fs.BoolVar(&config.NoCompress, "no-accept-encoding", false, "do not ask the server for compressed responses")
	fs.BoolVar(&config.ForceTTY, "force-tty", false, "allow writing the archive to a terminal")
	fs.StringVar(&config.MetricsFile, "metrics-file", "", "write run counters in Prometheus text format to this file")
	fs.BoolVarP(&verbose, "verbose", "v", false, "log debug messages")
	fs.BoolVarP(&quiet, "quiet", "q", false, "log errors only")
	fs.BoolVarP(&help, "help", "h", false, "show this help")

	fs.Usage = func() {
		App_ResClone_usage_flagSet(fs)
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, ErrHelp
		}
		return nil, &resclone.Error{Kind: resclone.KindConfig, Err: err}
	}
	if help {
		App_ResClone_usage_flagSet(fs)
		return nil, ErrHelp
	}
	if fs.NArg() > 0 {
		return nil, configErrorf("unknown arg %s", fs.Arg(0))
	}
	if pull && push {
		return nil, configErrorf("mode already specified, use either --pull or --push")
	}
	for _, name := range []string{"url", "filter-part", "filter-full", "file"} {
		if fs.Changed(name) && fs.Lookup(name).Value.String() == "" {
			return nil, configErrorf("arg '--%s' needs a value", name)
		}
	}
	if verbose && quiet {
		return nil, configErrorf("--verbose and --quiet exclude each other")
	}

	level := misc.LevelInfo
	switch {
	case verbose:
		level = misc.LevelDebug
	case quiet:
		level = misc.LevelError
	}
	config.Logger = misc.NewLogger(logWriter, "[resclone] ", level)

	var err error
	if config.Header, err = parseHeaders(headers); err != nil {
		return nil, err
	}

	mode := resclone.ModeNone
	switch {
	case pull:
		mode = resclone.ModePull
	case push:
		mode = resclone.ModePush
	}
	config.Session, err = resclone.NewSession(resclone.SessionConfig{
		Mode:        mode,
		URL:         rawURL,
		FilterPart:  filterPart,
		FilterFull:  filterFull,
		File:        file,
		Compression: compress,
	})
	if err != nil {
		return nil, err
	}
	return config, nil
}

func App_ResClone_usage_flagSet(fs *pflag.FlagSet) {
	fmt.Fprintln(fs.Output(), "resclone - mirror a gateleen resource tree into/from a tar archive")
	fmt.Fprintln(fs.Output(), "\nUsage: resclone --pull|--push --url <url> [options]")
	fmt.Fprintln(fs.Output(), "\nOptions:")
	fs.PrintDefaults()
	fmt.Fprintln(fs.Output(), "\nFilters apply to the path below --url, one regex per segment.")
	fmt.Fprintln(fs.Output(), "\nExample:")
	fmt.Fprintln(fs.Output(), "  resclone --pull --url http://localhost:7012/houston/ --filter-part '/foo/[0-9]+/bar' --file out.tar")
	fmt.Fprintln(fs.Output(), "  resclone --push --url http://localhost:7012/houston/ --file out.tar")
}

func configErrorf(format string, args ...interface{}) error {
	return &resclone.Error{Kind: resclone.KindConfig, Err: fmt.Errorf(format, args...)}
}

func parseHeaders(raw []string) (http.Header, error) {
	h := http.Header{}
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, configErrorf("bad --header %q, want \"Name: value\"", kv)
		}
		h.Add(name, strings.TrimSpace(value))
	}
	return h, nil
}

// ==========================================
// Section 2: Main Logic
// ==========================================

func App_ResClone_main_withconfig(ctx context.Context, config *AppResCloneConfig) error {
	var metrics *resclone.Metrics
	if config.MetricsFile != "" {
		metrics = resclone.NewMetrics()
	}
	transport := resclone.NewTransport(resclone.TransportConfig{
		Header:     config.Header,
		NoCompress: config.NoCompress,
		Logger:     config.Logger,
		Metrics:    metrics,
	})

	var err error
	switch config.Session.Mode {
	case resclone.ModePull:
		err = pull(ctx, config, transport, metrics)
	case resclone.ModePush:
		err = push(ctx, config, transport, metrics)
	default:
		err = configErrorf("no mode")
	}

	if merr := metrics.WriteTextfile(config.MetricsFile); merr != nil {
		config.Logger.Warnf("Writing metrics to %s: %v", config.MetricsFile, merr)
	}
	return err
}

func pull(ctx context.Context, config *AppResCloneConfig, transport *resclone.Transport, metrics *resclone.Metrics) error {
	s := config.Session
	if s.File == "" && !config.ForceTTY && config.Stdout != nil && misc.IsTerminal(config.Stdout) {
		return configErrorf("are you sure you wanna write binary content to tty? (use --file or --force-tty)")
	}

	walker := resclone.NewWalker(resclone.WalkerConfig{
		Session:   s,
		Transport: transport,
		Sink:      resclone.NewFileSink(s.File, s.Compression),
		Logger:    config.Logger,
		Metrics:   metrics,
	})
	config.Logger.Debugf("Pull '%s' (filter '%s', full=%v, compress=%s)", s.RootURL, s.Filter, s.Filter.Full(), s.Compression)
	err := walker.Run(ctx)
	logSummary(config.Logger, "Pulled", walker.Stats())
	return err
}

func push(ctx context.Context, config *AppResCloneConfig, transport *resclone.Transport, metrics *resclone.Metrics) error {
	s := config.Session
	src, err := resclone.OpenFileSource(s.File, config.Logger)
	if err != nil {
		return err
	}
	defer src.Close()

	up := resclone.NewUploader(resclone.UploaderConfig{
		Session:   s,
		Transport: transport,
		Logger:    config.Logger,
		Metrics:   metrics,
	})
	n, err := up.Push(ctx, src)
	config.Logger.Debugf("Issued %d PUT requests, ignored %d non-regular entries", n, src.Skipped())
	logSummary(config.Logger, "Pushed", up.Stats())
	return err
}

func logSummary(logger *misc.Logger, verb string, st misc.StatResult) {
	logger.Infof("%s %d files, %s (%s/s)", verb, st.TotalItems,
		misc.FormatBytes(st.TotalBytes), misc.FormatBytes(int64(st.SpeedBps)))
}

// ExitCode maps the outcome of a run to a process exit status: 0 on
// success, 1 for every error including a help request.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

// Run parses args and executes the requested mode, logging to logWriter.
func Run(ctx context.Context, logWriter io.Writer, args []string) error {
	config, err := AppResCloneConfigByArgs(logWriter, args)
	if err != nil {
		if !errors.Is(err, ErrHelp) {
			fmt.Fprintf(logWriter, "ERROR: %v\n", err)
		}
		return err
	}
	start := time.Now()
	err = App_ResClone_main_withconfig(ctx, config)
	if err != nil {
		config.Logger.Errorf("%v", err)
		config.Logger.Debugf("%+v", err)
		return err
	}
	config.Logger.Debugf("Done in %s", time.Since(start).Round(time.Millisecond))
	return nil
}
