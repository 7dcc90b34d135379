package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/config"
	"github.com/LuciaGiagnolini12/FileSystem-to-BoDi-sub001/internal/fault"
)

// ConfigValidation is the config validate output.
type ConfigValidation struct {
	Valid   bool     `json:"valid"`
	File    string   `json:"file"`
	Devices []string `json:"devices"`
}

// NewConfigCommand creates the config command and its subcommands.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(newConfigShowCommand(rootOpts))
	cmd.AddCommand(newConfigValidateCommand(rootOpts))
	return cmd
}

func newConfigShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		Long: `Print the configuration in effect after defaults are applied and relative
output paths are resolved against the config file's directory.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer sess.Close()

			if sess.out.Format == "json" {
				return sess.out.Success(sess.cfg)
			}
			data, err := sess.cfg.Marshal()
			if err != nil {
				return sess.out.Fail("failed to render configuration", err)
			}
			if sess.cfg.Source != "" {
				sess.out.VerboseLog("# source: %s", sess.cfg.Source)
			}
			return sess.out.Success(strings.TrimSuffix(string(data), "\n"))
		},
	}
}

func newConfigValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a configuration file against the schema",
		Long: `Validate a configuration file against the embedded schema. Without a
file, the --config flag or the fixity.yaml found from the working directory
is checked.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{
				Format:    rootOpts.Format,
				Writer:    cmd.OutOrStdout(),
				ErrWriter: cmd.ErrOrStderr(),
				Verbose:   rootOpts.Verbose,
			}

			path := rootOpts.Config
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				wd, err := os.Getwd()
				if err != nil {
					return out.Fail("failed to resolve working directory", fault.New(fault.KindIO, "getwd", "", err))
				}
				if path, err = config.Find(wd); err != nil {
					return out.Fail("failed to find configuration", fault.New(fault.KindConfiguration, "find config", wd, err))
				}
				if path == "" {
					return out.Fail("no configuration file", fault.Errorf(fault.KindConfiguration, "find config", wd, "%s not found", config.FileName))
				}
			}

			cfg, err := config.Load(path)
			if err != nil {
				return out.Fail("invalid configuration", err)
			}

			result := ConfigValidation{Valid: true, File: cfg.Source, Devices: cfg.DeviceNames()}
			if out.Format == "json" {
				return out.Success(result)
			}
			return out.Success("✓ " + filepath.Base(cfg.Source) + " is valid (" + pluralDevices(len(result.Devices)) + ")")
		},
	}
}

func pluralDevices(n int) string {
	if n == 1 {
		return "1 device"
	}
	return fmt.Sprintf("%d devices", n)
}
