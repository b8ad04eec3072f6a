package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// InitConfig captures the options for the init command.
type InitConfig struct {
	OutputPath string
	Force      bool
	Verbose    bool

	stdout io.Writer
}

var initRunner = runInit

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a sample ramlenhance configuration file",
		Long: "Scaffold a commented ramlenhance configuration file that documents available options. " +
			"A .toml target gets TOML, anything else YAML.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return err
			}
			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			cfg := &InitConfig{
				OutputPath: out,
				Force:      force,
				Verbose:    verbose,
				stdout:     cmd.OutOrStdout(),
			}
			return initRunner(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("out", "ramlenhance.yaml", "Where to write the sample config file")
	cmd.Flags().Bool("force", false, "Overwrite the target file if it already exists")

	return cmd
}

func runInit(ctx context.Context, cfg *InitConfig) error {
	_ = ctx

	out := strings.TrimSpace(cfg.OutputPath)
	if out == "" {
		out = "ramlenhance.yaml"
	}
	absPath, err := filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("init: resolve output path: %w", err)
	}

	if st, err := os.Stat(absPath); err == nil && !cfg.Force {
		if st.Mode().IsRegular() {
			return newUsageError(fmt.Sprintf("init: %q already exists (use --force to overwrite)", absPath))
		}
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot create parent directory: %v", err))
	}

	sample := sampleConfigYAML
	if strings.EqualFold(filepath.Ext(absPath), ".toml") {
		sample = sampleConfigTOML
	}
	content := strings.TrimSpace(sample) + "\n"

	// Atomic write via temp + rename
	tmp := absPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot write temp file: %v\nHint: choose a different --out or check directory permissions.", err))
	}
	if err := os.Rename(tmp, absPath); err != nil {
		_ = os.Remove(tmp)
		return newUsageError(fmt.Sprintf("init: cannot place file at %s: %v", absPath, err))
	}
	stdout := cfg.stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	fmt.Fprintf(stdout, "Wrote sample config to %s\n", absPath)
	return nil
}

// sampleConfigYAML is a commented example config documenting available options.
const sampleConfigYAML = `# ramlenhance configuration (YAML)
# All fields are optional. Command-line flags override config values.

# Path or URL to the RAML JSON, OpenAPI 3 or Swagger 2 document.
# input: ./api.json

# Output file. Writes to stdout when omitted or "-".
# out: ./api.enhanced.json

# Output format (json|yaml). Defaults to json.
# format: json

# Indent JSON output.
# pretty: true

# External program computing expanded/canonical type forms. It receives one
# JSON request per stage and type on stdin and prints the form on stdout.
# expanderCmd: raml-type-algebra --stdio

# Give up on type expansion after this long. 0 disables the limit.
# expansionTimeout: 1m

# Maximum in-flight expansion requests. 0 is unbounded.
# concurrency: 8

# Also write logs to this rotated file.
# logFile: ./ramlenhance.log

# Render and report the planned write without writing.
# dryRun: false

# Overwrite an existing output file.
# force: false

# Enable verbose logging.
# verbose: false
`

// sampleConfigTOML mirrors sampleConfigYAML.
const sampleConfigTOML = `# ramlenhance configuration (TOML)
# All fields are optional. Command-line flags override config values.

# input = "./api.json"
# out = "./api.enhanced.json"
# format = "json"
# pretty = true
# expanderCmd = "raml-type-algebra --stdio"
# expansionTimeout = "1m"
# concurrency = 8
# logFile = "./ramlenhance.log"
# dryRun = false
# force = false
# verbose = false
`
