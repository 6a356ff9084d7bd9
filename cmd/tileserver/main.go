package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/tileserver/internal/server"
)

// Options defines the CLI flags and env vars for the tile server.
// Flags: --host, --port, --data-dir, --config
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_CONFIG
type Options struct {
	Host          string `doc:"Host to bind to" default:"0.0.0.0"`
	Port          int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir       string `doc:"Directory for cache databases and derived state" default:".data"`
	Config        string `doc:"Path to the JSON source configuration file" short:"c" default:"config.json"`
	StrictSources bool   `doc:"Fail startup instead of skipping a source that fails to initialize"`
}

func newServer(opts *Options) (*server.Server, error) {
	return server.New(server.Config{
		Host:          opts.Host,
		Port:          fmt.Sprintf("%d", opts.Port),
		DataDir:       opts.DataDir,
		ConfigFile:    opts.Config,
		StrictSources: opts.StrictSources,
	})
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		srv, err := newServer(opts)
		if err != nil {
			log.Fatalf("tileserver: %v", err)
		}

		hooks.OnStart(func() {
			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("tileserver starting...\n")
			fmt.Printf("  Server: %s\n", baseURL)
			fmt.Printf("  Config: %s\n", opts.Config)
			fmt.Printf("  Data:   %s\n", opts.DataDir)
			fmt.Println()
			fmt.Printf("  TMS:    %s/tms/1.0.0\n", baseURL)
			fmt.Printf("  XYZ:    %s/xyz/{layer}/{z}/{x}/{y}.png\n", baseURL)
			fmt.Printf("  WMTS:   %s/wmts\n", baseURL)
			fmt.Printf("  WMS:    %s/wms\n", baseURL)
			fmt.Printf("  Docs:   %s/docs\n", baseURL)
			fmt.Println()

			defer srv.Close()
			if err := http.ListenAndServe(addr, srv); err != nil {
				log.Fatalf("tileserver: %v", err)
			}
		})
	})

	cli.Root().Use = "tileserver"
	cli.Root().Short = "Tile map server exposing TMS, XYZ, WMTS, and WMS"
	cli.Root().Version = "0.1.0"

	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec for the admin API (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv, err := newServer(opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error building server: %v\n", err)
				os.Exit(1)
			}
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	cli.Run()
}
