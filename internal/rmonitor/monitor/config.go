package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danshapiro/flowmon/internal/rmonitor/procutil"
	"github.com/danshapiro/flowmon/internal/workflow/hook"
)

const (
	DefaultLogFormat       = "resource-rule-%%"
	DefaultInterval        = 1
	DefaultProbeRemoteName = "cctools-monitor"
	// DefaultOverflowExitCode is the probe's exit status when the command
	// it watches went over one of its limits.
	DefaultOverflowExitCode = 147
	// NodeIDPlaceholder is replaced by the node id in LogFormat.
	NodeIDPlaceholder = "%%"
	wrapperPrefix     = "resource_monitor"
)

// Options is the user-facing configuration, read from a file or from the
// hook argument bag.
type Options struct {
	LogDir           string `json:"log_dir" yaml:"log_dir"`
	LogFormat        string `json:"log_format,omitempty" yaml:"log_format,omitempty"`
	Interval         *int   `json:"interval,omitempty" yaml:"interval,omitempty"`
	EnableDebug      bool   `json:"enable_debug,omitempty" yaml:"enable_debug,omitempty"`
	EnableTimeSeries bool   `json:"enable_time_series,omitempty" yaml:"enable_time_series,omitempty"`
	EnableListFiles  bool   `json:"enable_list_files,omitempty" yaml:"enable_list_files,omitempty"`

	ProbePath        string `json:"probe_path,omitempty" yaml:"probe_path,omitempty"`
	ProbeRemoteName  string `json:"probe_remote_name,omitempty" yaml:"probe_remote_name,omitempty"`
	OverflowExitCode int    `json:"overflow_exit_code,omitempty" yaml:"overflow_exit_code,omitempty"`

	// WorkDir is where the task runs and where flat outputs land. Relative
	// paths in the other options resolve against it. Empty means the
	// process working directory.
	WorkDir string `json:"work_dir,omitempty" yaml:"work_dir,omitempty"`
	// WrapperDir receives the execution wrapper scripts. Empty means WorkDir.
	WrapperDir string `json:"wrapper_dir,omitempty" yaml:"wrapper_dir,omitempty"`

	Stats StatsOptions `json:"stats,omitempty" yaml:"stats,omitempty"`
}

// StatsOptions configures cross-run statistics publishing.
type StatsOptions struct {
	EtcdEndpoints []string `json:"etcd_endpoints,omitempty" yaml:"etcd_endpoints,omitempty"`
	Prefix        string   `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	DialTimeoutMS int      `json:"dial_timeout_ms,omitempty" yaml:"dial_timeout_ms,omitempty"`
}

func (s StatsOptions) Enabled() bool {
	for _, ep := range s.EtcdEndpoints {
		if strings.TrimSpace(ep) != "" {
			return true
		}
	}
	return false
}

func (s StatsOptions) DialTimeout() time.Duration {
	if s.DialTimeoutMS <= 0 {
		return 0
	}
	return time.Duration(s.DialTimeoutMS) * time.Millisecond
}

// LoadOptionsFile reads YAML, or JSON when the file ends in .json. Unknown
// fields and trailing documents are rejected.
func LoadOptionsFile(path string) (*Options, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var opts Options
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = decodeJSONStrict(b, &opts)
	default:
		err = decodeYAMLStrict(b, &opts)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	applyOptionDefaults(&opts)
	return &opts, nil
}

func decodeJSONStrict(b []byte, opts *Options) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(opts); err != nil {
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return fmt.Errorf("json: multiple top-level values are not allowed")
		}
		return err
	}
	return nil
}

func decodeYAMLStrict(b []byte, opts *Options) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(opts); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return fmt.Errorf("yaml: multiple documents are not allowed")
		}
		return err
	}
	return nil
}

// argKeys lists the accepted argument names for an option; the legacy
// resource_monitor_ spelling is accepted too.
func argKeys(name string) []string {
	return []string{name, "resource_monitor_" + name}
}

// OptionsFromArgs reads the recognized keys from a hook argument bag.
// Unrecognized keys belong to other listeners and are ignored.
func OptionsFromArgs(args hook.Args) (*Options, error) {
	opts := &Options{}
	opts.LogDir, _ = args.LookupString(argKeys("log_dir")...)
	opts.LogFormat, _ = args.LookupString(argKeys("log_format")...)
	opts.ProbePath, _ = args.LookupString(argKeys("probe_path")...)
	opts.ProbeRemoteName, _ = args.LookupString(argKeys("probe_remote_name")...)
	opts.WorkDir, _ = args.LookupString(argKeys("work_dir")...)
	opts.WrapperDir, _ = args.LookupString(argKeys("wrapper_dir")...)

	if n, ok, err := args.LookupInt(argKeys("interval")...); err != nil {
		return nil, &ConfigurationError{Field: "interval", Err: err}
	} else if ok {
		opts.Interval = &n
	}
	if n, ok, err := args.LookupInt(argKeys("overflow_exit_code")...); err != nil {
		return nil, &ConfigurationError{Field: "overflow_exit_code", Err: err}
	} else if ok {
		opts.OverflowExitCode = n
	}

	flags := []struct {
		name string
		dst  *bool
	}{
		{"enable_debug", &opts.EnableDebug},
		{"enable_time_series", &opts.EnableTimeSeries},
		{"enable_list_files", &opts.EnableListFiles},
	}
	for _, f := range flags {
		b, ok, err := args.LookupBool(argKeys(f.name)...)
		if err != nil {
			return nil, &ConfigurationError{Field: f.name, Err: err}
		}
		if ok {
			*f.dst = b
		}
	}

	if eps, ok := args.LookupString(argKeys("stats_etcd_endpoints")...); ok {
		for _, ep := range strings.Split(eps, ",") {
			if ep = strings.TrimSpace(ep); ep != "" {
				opts.Stats.EtcdEndpoints = append(opts.Stats.EtcdEndpoints, ep)
			}
		}
	}
	opts.Stats.Prefix, _ = args.LookupString(argKeys("stats_prefix")...)

	applyOptionDefaults(opts)
	return opts, nil
}

func applyOptionDefaults(opts *Options) {
	if opts == nil {
		return
	}
	opts.LogDir = strings.TrimSpace(opts.LogDir)
	opts.LogFormat = strings.TrimSpace(opts.LogFormat)
	if opts.LogFormat == "" {
		opts.LogFormat = DefaultLogFormat
	}
	if opts.Interval == nil {
		n := DefaultInterval
		opts.Interval = &n
	}
	if strings.TrimSpace(opts.ProbeRemoteName) == "" {
		opts.ProbeRemoteName = DefaultProbeRemoteName
	}
	if opts.OverflowExitCode == 0 {
		opts.OverflowExitCode = DefaultOverflowExitCode
	}
}

// Config is the validated, immutable monitor configuration.
type Config struct {
	LogDir            string
	LogFormat         string
	LogPrefixTemplate string
	Interval          int

	EnableDebug      bool
	EnableTimeSeries bool
	EnableListFiles  bool

	ProbeExecutable           string
	ProbeExecutableRemoteName string
	OverflowExitCode          int

	WorkDir    string
	WrapperDir string

	Stats StatsOptions
}

// NewConfig validates opts and resolves the probe executable.
func NewConfig(opts *Options, loc procutil.Locator) (*Config, error) {
	if opts == nil {
		opts = &Options{}
	}
	o := *opts
	applyOptionDefaults(&o)

	if o.LogDir == "" {
		return nil, &ConfigurationError{Field: "log_dir", Reason: "a log output directory is required"}
	}
	if *o.Interval < 1 {
		return nil, &ConfigurationError{Field: "interval", Reason: fmt.Sprintf("must be at least 1 second, got %d", *o.Interval)}
	}
	if strings.Contains(o.ProbeRemoteName, "/") {
		return nil, &ConfigurationError{Field: "probe_remote_name", Reason: "must be a bare file name"}
	}
	exe, err := loc.Locate(o.ProbePath)
	if err != nil {
		return nil, &ConfigurationError{Field: "probe_path", Reason: "could not find the resource probe", Err: err}
	}

	cfg := &Config{
		LogDir:                    filepath.Clean(o.LogDir),
		LogFormat:                 o.LogFormat,
		Interval:                  *o.Interval,
		EnableDebug:               o.EnableDebug,
		EnableTimeSeries:          o.EnableTimeSeries,
		EnableListFiles:           o.EnableListFiles,
		ProbeExecutable:           exe,
		ProbeExecutableRemoteName: strings.TrimSpace(o.ProbeRemoteName),
		OverflowExitCode:          o.OverflowExitCode,
		WorkDir:                   strings.TrimSpace(o.WorkDir),
		WrapperDir:                strings.TrimSpace(o.WrapperDir),
		Stats:                     o.Stats,
	}
	cfg.LogPrefixTemplate = cfg.LogDir + "/" + cfg.LogFormat
	return cfg, nil
}

// path resolves a workflow-relative path against WorkDir.
func (c *Config) path(p string) string {
	if c.WorkDir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.WorkDir, p)
}

func (c *Config) wrapperDir() string {
	if c.WrapperDir == "" {
		return c.WorkDir
	}
	return c.path(c.WrapperDir)
}
