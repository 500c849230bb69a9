package cmd

import (
	"fmt"
	"net/http"

	gptscriptcmd "github.com/gptscript-ai/cmd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mcpauth/oauth-bridge/pkg/config"
	"github.com/mcpauth/oauth-bridge/pkg/dispatcher"
	"github.com/mcpauth/oauth-bridge/pkg/httpclient"
	"github.com/mcpauth/oauth-bridge/pkg/registry"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// RootCmd is the CLI surface, bound to flags and MCPAUTH_-prefixed
// environment variables by gptscript-ai/cmd.
type RootCmd struct {
	ConfigPath string `name:"config" env:"MCPAUTH_CONFIG" usage:"Path to the TOML configuration file" default:"config.toml"`
	Host       string `name:"host" env:"MCPAUTH_HOST" usage:"Host to bind the server to"`
	Port       string `name:"port" env:"MCPAUTH_PORT" usage:"Port to bind the server to"`

	Verbose bool `name:"verbose,v" usage:"Enable debug-level logging"`
	Version bool `name:"version" usage:"Show version information"`
}

func (c *RootCmd) Run(cobraCmd *cobra.Command, args []string) error {
	if c.Version {
		fmt.Printf("mcp-oauth-bridge\nVersion: %s\nBuilt: %s\n", version, buildTime)
		return nil
	}

	if c.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	fileCfg, err := config.Load(c.ConfigPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if c.Host != "" {
		fileCfg.Server.Host = c.Host
	}
	if c.Port != "" {
		fileCfg.Server.Port = c.Port
	}

	reg, err := registry.New(fileCfg)
	if err != nil {
		return fmt.Errorf("validating configuration: %w", err)
	}

	client := httpclient.New()
	handler := dispatcher.New(reg, client)

	address := reg.Server.Host + ":" + reg.Server.Port
	log.Info().Str("address", address).Int("downstreams", len(fileCfg.Downstreams)).Msg("starting mcp-oauth-bridge")

	server := &http.Server{
		Addr:    address,
		Handler: handler,
	}

	return serve(server)
}

// Customize sets cobra's display metadata, following the teacher's
// Customize hook.
func (c *RootCmd) Customize(cobraCmd *cobra.Command) {
	cobraCmd.Use = "mcp-oauth-bridge"
	cobraCmd.Short = "Authentication-translating reverse proxy for MCP servers"
	cobraCmd.Long = `mcp-oauth-bridge exposes an OAuth 2.1 + PKCE authorization server per
configured downstream MCP server, translating a client's bearer credential
into whatever scheme each downstream expects, while holding no persistent
server-side state.

Configuration is a single TOML file (see --config); environment variables
prefixed MCPAUTH_ override the state secret and per-downstream client
secrets.`
	cobraCmd.Version = version
}

// Execute is the CLI entry point.
func Execute() error {
	rootCmd := &RootCmd{}
	cobraCmd := gptscriptcmd.Command(rootCmd)
	return cobraCmd.Execute()
}
