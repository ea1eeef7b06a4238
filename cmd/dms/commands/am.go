package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/DMS/am"
	"github.com/teranos/DMS/errors"
)

// AmCmd groups the configuration commands
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Inspect and change DMS configuration",
	Long: `Display and manage DMS configuration ("I am").

Configuration sources (later overrides earlier):
  1. Built-in defaults
  2. /etc/dms/config.toml
  3. ~/.dms/am.toml
  4. ./am.toml (searched upward from the working directory)
  5. --config <file>
  6. DMS_* environment variables (e.g. DMS_SERVER_PORT, DMS_AUTH_SECRET_KEY)

Examples:
  dms am show                         # Effective configuration as TOML
  dms am show --format json --sources # Every key with the source that set it
  dms am get ingestion.process_delay  # One value
  dms am set server.port 9000         # Write to the active config file
  dms am validate                     # Check the effective configuration`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value (dot notation)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a configuration value to a config file",
	Long: `Write a value into a TOML config file, keeping the other keys.

The target is --file, else the active config file, else ./am.toml.
Integers and booleans are stored typed; comma-separated values become lists.`,
	Args: cobra.ExactArgs(2),
	RunE: runAmSet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	RunE:  runAmValidate,
}

var (
	amFormat  string
	amSources bool
	amSetFile string
)

func init() {
	amShowCmd.Flags().StringVar(&amFormat, "format", "toml", "Output format: toml, json, yaml")
	amShowCmd.Flags().BoolVar(&amSources, "sources", false, "List each setting with the source that set it")
	amSetCmd.Flags().StringVar(&amSetFile, "file", "", "Config file to write")

	AmCmd.AddCommand(amShowCmd, amGetCmd, amSetCmd, amValidateCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if amSources {
		return showSources(cmd)
	}

	if _, err := am.Load(); err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	redacted := am.GetViper().AllSettings()
	// Never print the signing key
	if section, ok := redacted["auth"].(map[string]interface{}); ok {
		if key, _ := section["secret_key"].(string); key != "" {
			section["secret_key"] = "********"
		}
	}

	switch amFormat {
	case "json":
		data, err := json.MarshalIndent(redacted, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Fprintln(out, string(data))
	case "yaml":
		data, err := yaml.Marshal(redacted)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Fprintf(out, "# DMS configuration\n%s", data)
	case "toml":
		data, err := toml.Marshal(redacted)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Fprintf(out, "# DMS configuration\n%s", data)
	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", amFormat)
	}
	return nil
}

func showSources(cmd *cobra.Command) error {
	intro, err := am.GetConfigIntrospection()
	if err != nil {
		return err
	}
	if amFormat == "json" {
		data, err := json.MarshalIndent(intro, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal introspection")
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	if intro.ConfigFile != "" {
		pterm.Info.Printfln("Active config file: %s", intro.ConfigFile)
	}
	data := pterm.TableData{{"Key", "Value", "Source", "From"}}
	for _, s := range intro.Settings {
		value := fmt.Sprintf("%v", s.Value)
		if len(value) > 50 {
			value = value[:47] + "..."
		}
		data = append(data, []string{s.Key, value, string(s.Source), s.SourcePath})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	if !am.IsSet(key) {
		return errors.Newf("configuration key %q not found", key)
	}
	if key == "auth.secret_key" {
		fmt.Fprintln(cmd.OutOrStdout(), "********")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), am.Get(key))
	return nil
}

func runAmSet(cmd *cobra.Command, args []string) error {
	key, raw := args[0], args[1]
	if !am.IsSet(key) {
		return errors.Newf("unknown configuration key %q", key)
	}

	path := amSetFile
	if path == "" {
		path = am.ActiveConfigFile()
	}
	if path == "" {
		path = "am.toml"
	}
	if err := os.MkdirAll(filepath.Dir(path), am.DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create %s", filepath.Dir(path))
	}

	if err := am.SetValue(path, key, parseConfigValue(raw)); err != nil {
		return err
	}
	pterm.Success.Printfln("%s written to %s", key, path)
	return nil
}

// parseConfigValue converts a command line value into a typed TOML value
func parseConfigValue(raw string) interface{} {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if strings.Contains(raw, ",") {
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return raw
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(); err != nil {
		return err
	}
	pterm.Success.Println("Configuration is valid")
	return nil
}
