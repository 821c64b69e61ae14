package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions carries the parsed command line.
type AppOptions struct {
	ConfigFile   string
	Model        string
	Input        string
	OutputFile   string
	RenderFile   string
	RenderFormat string
	Seed         uint32
	SeedSet      bool
	StorePath    string
	History      bool
	Limit        int
	MqttMode     bool
	HttpMode     bool
	HttpPort     int
	WriteConfig  string
}

// Application is the set of modes the command line can start.
type Application interface {
	ApplyOptions(opts AppOptions)
	RunEstimate() error
	RunHistory() error
	RunService() error
	RunWriteConfig() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp(os.Stdout)); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal(err)
	}
}

// run parses args and dispatches to the selected mode of app.
func run(args []string, out io.Writer, app Application) error {
	fs := flag.NewFlagSet("lomsac", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "", "Path to configuration file (defaults apply when empty)")
	fs.StringVar(&opts.Model, "model", "line", "Model kind: line, plane, rigid, similarity or affine")
	fs.StringVar(&opts.Input, "input", "", "GeoJSON FeatureCollection to fit (file path or http(s) URL)")
	fs.StringVar(&opts.OutputFile, "output", "", "Write observations tagged with inlier status as GeoJSON")
	fs.StringVar(&opts.RenderFile, "render", "", "Write a plot of the result (.svg or .png)")
	fs.StringVar(&opts.RenderFormat, "format", "", "Render format: vector or raster (default from config)")
	fs.Func("seed", "Random seed, 0 to 4294967295 (overrides config)", func(v string) error {
		seed, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid seed %q: must be an integer in [0, %d]", v, uint32(math.MaxUint32))
		}
		opts.Seed = uint32(seed)
		opts.SeedSet = true
		return nil
	})
	fs.StringVar(&opts.StorePath, "store", "", "SQLite run history (overrides config)")
	fs.BoolVar(&opts.History, "history", false, "List stored runs and exit")
	fs.IntVar(&opts.Limit, "limit", 20, "Number of runs listed by --history")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Run the MQTT job service")
	fs.BoolVar(&opts.HttpMode, "http", false, "Run the HTTP API")
	fs.IntVar(&opts.HttpPort, "http-port", 0, "HTTP server port (default from config)")
	fs.StringVar(&opts.WriteConfig, "write-config", "", "Write the effective configuration as YAML and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "lomsac version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.WriteConfig != "":
		return app.RunWriteConfig()
	case opts.History:
		return app.RunHistory()
	case opts.MqttMode || opts.HttpMode:
		return app.RunService()
	case opts.Input != "":
		return app.RunEstimate()
	}

	fmt.Fprintln(out, "Use --input FILE --model KIND to fit a dataset")
	fmt.Fprintln(out, "Use --output and --render to export the result")
	fmt.Fprintln(out, "Use --history to list stored runs")
	fmt.Fprintln(out, "Use --mqtt to run the MQTT job service")
	fmt.Fprintln(out, "Use --http to run the HTTP API")
	fmt.Fprintln(out, "Use --mqtt --http to run both together")
	fmt.Fprintln(out, "Use --write-config FILE to save the effective configuration")
	return nil
}
