// Package config resolves the run configuration from a YAML file,
// environment variables and command-line flags.
package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Brownie44l1/breed-classify/internal/model"
)

// ErrConfiguration is returned for malformed or invalid settings.
var ErrConfiguration = errors.New("configuration error")

const (
	ModelFile    = "model.onnx"
	ManifestFile = "sample_valid.csv"
)

// Config is read once at startup and not changed afterwards.
type Config struct {
	RootDir   string `yaml:"rootdir"`
	DataDir   string `yaml:"datadir"`
	ImageSize int    `yaml:"imgsize"`
	RunMode   string `yaml:"runmode"`

	OutDir    string `yaml:"outdir"`
	ORTLib    string `yaml:"ortlib"`
	HistoryDB string `yaml:"historydb"`
	Progress  bool   `yaml:"progress"`

	// ListRuns and ExportRun select a history query instead of a run.
	ListRuns  int    `yaml:"-"`
	ExportRun string `yaml:"-"`

	Mode model.RunMode `yaml:"-"`
}

func defaults() Config {
	return Config{
		RootDir: "./",
		DataDir: "./",
		RunMode: string(model.ModeCPU),
		OutDir:  "./",
	}
}

// Load resolves the configuration: defaults, then the YAML file named by
// CONFIG_PATH (or config.yaml), then environment variables, then args.
func Load(args []string) (Config, error) {
	cfg := defaults()

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(ErrConfiguration, "error parsing %s: %v", configPath, err)
		}
	}

	envOverride(&cfg.RootDir, "ROOTDIR")
	envOverride(&cfg.DataDir, "DATADIR")
	envOverride(&cfg.RunMode, "RUNMODE")
	envOverride(&cfg.OutDir, "OUTDIR")
	envOverride(&cfg.ORTLib, "ORT_LIB")
	envOverride(&cfg.HistoryDB, "HISTORY_DB")
	if err := envOverrideInt(&cfg.ImageSize, "IMGSIZE"); err != nil {
		return Config{}, err
	}
	if err := envOverrideBool(&cfg.Progress, "PROGRESS"); err != nil {
		return Config{}, err
	}

	if err := parseFlags(&cfg, args); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.RootDir, "rootdir", cfg.RootDir, "directory holding "+ModelFile+" and "+ManifestFile)
	fs.StringVar(&cfg.DataDir, "datadir", cfg.DataDir, "directory holding <id>.jpg images")
	fs.IntVar(&cfg.ImageSize, "imgsize", cfg.ImageSize, "square input resolution of the model")
	fs.StringVar(&cfg.RunMode, "runmode", cfg.RunMode, "execution mode: cpu or gpu")
	fs.StringVar(&cfg.OutDir, "outdir", cfg.OutDir, "directory for result_<mode>.csv")
	fs.StringVar(&cfg.ORTLib, "ortlib", cfg.ORTLib, "path to the onnxruntime shared library")
	fs.StringVar(&cfg.HistoryDB, "historydb", cfg.HistoryDB, "sqlite file for run history (empty disables)")
	fs.BoolVar(&cfg.Progress, "progress", cfg.Progress, "show a progress bar")
	fs.IntVar(&cfg.ListRuns, "history", 0, "list the N most recent runs from historydb and exit")
	fs.StringVar(&cfg.ExportRun, "export", "", "print the predictions of a stored run as result CSV and exit")
	if err := fs.Parse(args); err != nil {
		return errors.Wrapf(ErrConfiguration, "%v", err)
	}
	return nil
}

// HistoryQuery reports whether the invocation only reads run history.
func (c Config) HistoryQuery() bool {
	return c.ListRuns > 0 || c.ExportRun != ""
}

// Validate checks the settings and fills in Mode.
func (c *Config) Validate() error {
	if c.ListRuns < 0 {
		return errors.Wrapf(ErrConfiguration, "history must not be negative, got %d", c.ListRuns)
	}
	if c.HistoryQuery() {
		if c.HistoryDB == "" {
			return errors.Wrap(ErrConfiguration, "history queries need historydb")
		}
		return nil
	}
	if c.ImageSize <= 0 {
		return errors.Wrapf(ErrConfiguration, "imgsize must be a positive integer, got %d", c.ImageSize)
	}
	mode, err := model.ParseRunMode(c.RunMode)
	if err != nil {
		return errors.Wrapf(ErrConfiguration, "runmode: %v", err)
	}
	c.Mode = mode
	return nil
}

func (c Config) ModelPath() string {
	return filepath.Join(c.RootDir, ModelFile)
}

func (c Config) ManifestPath() string {
	return filepath.Join(c.RootDir, ManifestFile)
}

// Print writes the resolved settings, one per line.
func (c Config) Print(w io.Writer) {
	fmt.Fprintf(w, "rootdir: %s\n", c.RootDir)
	fmt.Fprintf(w, "datadir: %s\n", c.DataDir)
	fmt.Fprintf(w, "imgsize: %d\n", c.ImageSize)
	fmt.Fprintf(w, "runmode: %s\n", c.RunMode)
	fmt.Fprintf(w, "outdir: %s\n", c.OutDir)
	if c.HistoryDB != "" {
		fmt.Fprintf(w, "historydb: %s\n", c.HistoryDB)
	}
}

func envOverride(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envOverrideInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return errors.Wrapf(ErrConfiguration, "%s: invalid integer %q", key, v)
	}
	*dst = n
	return nil
}

func envOverrideBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return errors.Wrapf(ErrConfiguration, "%s: invalid boolean %q", key, v)
	}
	*dst = b
	return nil
}
