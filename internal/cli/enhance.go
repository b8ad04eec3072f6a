package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/ramlenhance/internal/enhancer"
	"github.com/mark3labs/ramlenhance/internal/expansion"
	"github.com/mark3labs/ramlenhance/internal/logging"
	"github.com/mark3labs/ramlenhance/internal/output"
	"github.com/mark3labs/ramlenhance/internal/source"
)

// EnhanceConfig captures all inputs that influence the enhance command after
// merging defaults, config file values, and CLI overrides.
type EnhanceConfig struct {
	Input            string        `flag:"input" validate:"required"`
	Out              string        `flag:"out"`
	Format           string        `flag:"format" validate:"oneof=json yaml"`
	Pretty           bool          `flag:"pretty"`
	ExpanderCmd      string        `flag:"expander-cmd"`
	ExpansionTimeout time.Duration `flag:"expansion-timeout" validate:"gte=0"`
	Concurrency      int           `flag:"concurrency" validate:"gte=0"`
	ConfigPath       string        `flag:"config"`
	LogFile          string        `flag:"log-file"`
	DryRun           bool          `flag:"dry-run"`
	Force            bool          `flag:"force"`
	Verbose          bool          `flag:"verbose"`

	stdout io.Writer
}

func defaultEnhanceConfig() EnhanceConfig {
	return EnhanceConfig{Format: "json", ExpansionTimeout: time.Minute}
}

var enhanceRunner = runEnhance

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report flag names instead of Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("flag"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

func newEnhanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enhance",
		Short: "Enhance a RAML JSON (or OpenAPI/Swagger) document",
		Long: "Enhance a RAML JSON document for documentation tooling. " +
			"Options can be provided via flags, config files, or defaults.",
		Example: strings.TrimSpace(`  ramlenhance enhance --input api.json --pretty
  ramlenhance enhance --input openapi.yaml --out api.enhanced.json --force
  ramlenhance --config ramlenhance.toml enhance --dry-run`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveEnhanceConfig(cmd)
			if err != nil {
				return err
			}
			cfg.stdout = cmd.OutOrStdout()
			return enhanceRunner(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("input", "", "Path or URL to the RAML JSON, OpenAPI or Swagger document")
	flags.String("out", "", "Output file; stdout when omitted or -")
	flags.String("format", "", "Output format (json|yaml); defaults to json")
	flags.Bool("pretty", false, "Indent JSON output")
	flags.String("expander-cmd", "", "External program computing expanded/canonical type forms")
	flags.Duration("expansion-timeout", 0, "Give up on type expansion after this long (0 disables)")
	flags.Int("concurrency", 0, "Maximum in-flight expansion requests (0 is unbounded)")
	flags.Bool("dry-run", false, "Render and report the planned write without writing")
	flags.Bool("force", false, "Overwrite an existing output file")

	return cmd
}

func resolveEnhanceConfig(cmd *cobra.Command) (*EnhanceConfig, error) {
	cfg := defaultEnhanceConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyEnhanceConfigFromFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyEnhanceFlagOverrides(cmd.Flags(), &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnhanceFlagOverrides(flags *pflag.FlagSet, cfg *EnhanceConfig) error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"input", &cfg.Input},
		{"out", &cfg.Out},
		{"format", &cfg.Format},
		{"expander-cmd", &cfg.ExpanderCmd},
		{"log-file", &cfg.LogFile},
	}
	for _, f := range strs {
		if !flags.Changed(f.name) {
			continue
		}
		value, err := flags.GetString(f.name)
		if err != nil {
			return err
		}
		*f.dst = strings.TrimSpace(value)
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"pretty", &cfg.Pretty},
		{"dry-run", &cfg.DryRun},
		{"force", &cfg.Force},
		{"verbose", &cfg.Verbose},
	}
	for _, f := range bools {
		if !flags.Changed(f.name) {
			continue
		}
		value, err := flags.GetBool(f.name)
		if err != nil {
			return err
		}
		*f.dst = value
	}

	if flags.Changed("expansion-timeout") {
		value, err := flags.GetDuration("expansion-timeout")
		if err != nil {
			return err
		}
		cfg.ExpansionTimeout = value
	}
	if flags.Changed("concurrency") {
		value, err := flags.GetInt("concurrency")
		if err != nil {
			return err
		}
		cfg.Concurrency = value
	}

	return nil
}

func (c *EnhanceConfig) normalize() {
	c.Input = strings.TrimSpace(c.Input)
	c.Out = strings.TrimSpace(c.Out)
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	if c.Format == "" {
		c.Format = "json"
	}
	c.ExpanderCmd = strings.TrimSpace(c.ExpanderCmd)
	c.LogFile = strings.TrimSpace(c.LogFile)
}

func (c *EnhanceConfig) validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return newUsageError(fmt.Sprintf("enhance: --%s is required (set via flag or config file)", fe.Field()))
	case "oneof":
		allowed := strings.Join(strings.Fields(fe.Param()), ", ")
		return newUsageError(fmt.Sprintf("enhance: unsupported --%s %q (allowed: %s)", fe.Field(), fmt.Sprint(fe.Value()), allowed))
	default:
		return newUsageError(fmt.Sprintf("enhance: invalid --%s %v (must be %s %s)", fe.Field(), fe.Value(), fe.Tag(), fe.Param()))
	}
}

func runEnhance(ctx context.Context, cfg *EnhanceConfig) error {
	stdout := cfg.stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	level := "warn"
	if cfg.Verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Options{Level: level, File: cfg.LogFile})
	if err != nil {
		return newUsageError(fmt.Sprintf("enhance: logger: %v", err))
	}
	defer func() { _ = logger.Sync() }()

	// 1) Load the input (file or http/https URL), converting OpenAPI/Swagger
	doc, err := source.Load(ctx, cfg.Input, source.WithLogger(logger))
	if err != nil {
		return friendlyError(err)
	}

	// 2) Enhance
	var expander enhancer.Expander = expansion.Identity{}
	if cfg.ExpanderCmd != "" {
		command, err := expansion.NewCommand(cfg.ExpanderCmd, 0, logger)
		if err != nil {
			return newUsageError(fmt.Sprintf("enhance: --expander-cmd: %v", err))
		}
		expander = command
	}
	root, err := enhancer.Enhance(ctx, doc.Tree,
		enhancer.WithExpander(expander),
		enhancer.WithExpansionTimeout(cfg.ExpansionTimeout),
		enhancer.WithConcurrency(cfg.Concurrency),
		enhancer.WithLogger(logger),
	)
	if err != nil {
		return friendlyError(err)
	}

	// 3) Write
	res, err := output.Write(root, output.Options{
		Path:   cfg.Out,
		Format: output.Format(cfg.Format),
		Pretty: cfg.Pretty,
		Force:  cfg.Force,
		DryRun: cfg.DryRun,
		Stdout: stdout,
	})
	if err != nil {
		return wrapOutputError(err, cfg.Out)
	}
	if cfg.DryRun {
		target := res.Path
		if target == "-" {
			target = "stdout"
		}
		fmt.Fprintf(stdout, "Planned write to %s (%s, %d bytes)\n", target, res.Format, res.Size)
	}
	logger.Info("Enhanced document",
		zap.String("input", doc.Location),
		zap.String("source_format", string(doc.Format)),
		zap.String("output", res.Path),
		zap.Int("bytes", res.Size),
		zap.Bool("written", res.Written))
	return nil
}

func wrapOutputError(err error, out string) error {
	if errors.Is(err, output.ErrExists) {
		return newUsageError(fmt.Sprintf("output error: %v", err))
	}
	// Provide clearer guidance for common FS failures.
	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "permission") || strings.Contains(lower, "read-only") || strings.Contains(lower, "directory") || strings.Contains(lower, "rename") {
		return newUsageError(fmt.Sprintf("output error for %s: %s\nHint: choose a different --out or use --force when appropriate.", out, msg))
	}
	return err
}

// readConfigFile decodes a config file into a loose map. .toml files are TOML;
// everything else is YAML, which covers JSON.
func readConfigFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newUsageError(fmt.Sprintf("read config file %q: %v", path, err))
	}
	raw := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &raw)
	default:
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, newUsageError(fmt.Sprintf("parse config file %q: %v", path, err))
	}
	return raw, nil
}

func applyEnhanceConfigFromFile(cfg *EnhanceConfig, path string) error {
	raw, err := readConfigFile(path)
	if err != nil {
		return err
	}

	for key, value := range raw {
		var ferr error
		switch normalizeKey(key) {
		case "input":
			cfg.Input, ferr = valueAsString(value)
		case "out":
			cfg.Out, ferr = valueAsString(value)
		case "format":
			cfg.Format, ferr = valueAsString(value)
		case "pretty":
			cfg.Pretty, ferr = valueAsBool(value)
		case "expandercmd":
			cfg.ExpanderCmd, ferr = valueAsString(value)
		case "expansiontimeout":
			cfg.ExpansionTimeout, ferr = valueAsDuration(value)
		case "concurrency":
			cfg.Concurrency, ferr = valueAsInt(value)
		case "logfile":
			cfg.LogFile, ferr = valueAsString(value)
		case "dryrun":
			cfg.DryRun, ferr = valueAsBool(value)
		case "force":
			cfg.Force, ferr = valueAsBool(value)
		case "verbose":
			cfg.Verbose, ferr = valueAsBool(value)
		default:
			return newUsageError(fmt.Sprintf("config file %q: unknown field %q", path, key))
		}
		if ferr != nil {
			return newUsageError(fmt.Sprintf("config field %q: %v", key, ferr))
		}
	}

	return nil
}

func normalizeKey(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	lowered = strings.ReplaceAll(lowered, "-", "")
	lowered = strings.ReplaceAll(lowered, "_", "")
	return lowered
}

func valueAsString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func valueAsBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		trimmed := strings.ToLower(strings.TrimSpace(val))
		switch trimmed {
		case "true", "t", "1", "yes", "y":
			return true, nil
		case "false", "f", "0", "no", "n":
			return false, nil
		case "":
			return false, nil
		default:
			return false, fmt.Errorf("invalid boolean value %q", val)
		}
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}

// valueAsInt accepts the integer types YAML and TOML decode to.
func valueAsInt(v any) (int, error) {
	switch val := v.(type) {
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case uint64:
		return int(val), nil
	case float64:
		if val != math.Trunc(val) {
			return 0, fmt.Errorf("expected integer, got %v", val)
		}
		return int(val), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, fmt.Errorf("invalid integer value %q", val)
		}
		return n, nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

// valueAsDuration accepts Go duration strings ("30s") or a number of seconds.
func valueAsDuration(v any) (time.Duration, error) {
	switch val := v.(type) {
	case string:
		if strings.TrimSpace(val) == "" {
			return 0, nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(val))
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", val)
		}
		return d, nil
	case float64:
		return time.Duration(val * float64(time.Second)), nil
	case nil:
		return 0, nil
	default:
		n, err := valueAsInt(v)
		if err != nil {
			return 0, fmt.Errorf("expected duration, got %T", v)
		}
		return time.Duration(n) * time.Second, nil
	}
}
