package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/kwv/lomsac/fitting"
	"github.com/kwv/lomsac/store"
)

// App encapsulates the application state and dependencies
type App struct {
	Out     io.Writer
	Config  *fitting.Config
	Store   *store.Store
	Metrics *fitting.Metrics

	// CLI Flags (effectively dependencies)
	ConfigFile   string
	Model        string
	Input        string
	OutputFile   string
	RenderFile   string
	RenderFormat string
	Seed         uint32
	SeedSet      bool
	StorePath    string
	Limit        int
	MqttMode     bool
	HttpMode     bool
	HttpPort     int
	WriteConfig  string
}

// NewApp creates a new App instance writing its reports to out
func NewApp(out io.Writer) *App {
	return &App{
		Out:     out,
		Metrics: fitting.NewMetrics(),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.Model = opts.Model
	a.Input = opts.Input
	a.OutputFile = opts.OutputFile
	a.RenderFile = opts.RenderFile
	a.RenderFormat = opts.RenderFormat
	a.Seed = opts.Seed
	a.SeedSet = opts.SeedSet
	a.StorePath = opts.StorePath
	a.Limit = opts.Limit
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
	a.HttpPort = opts.HttpPort
	a.WriteConfig = opts.WriteConfig
}

// loadConfig loads the configuration file and applies flag overrides.
func (a *App) loadConfig() error {
	config, err := fitting.LoadConfig(a.ConfigFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.ConfigFile != "" {
		log.Printf("Loaded config from %s", a.ConfigFile)
	}

	if a.SeedSet {
		config.Estimator.RandomSeed = a.Seed
	}
	if a.StorePath != "" {
		config.Store.Path = a.StorePath
	}
	if a.HttpPort != 0 {
		config.HTTP.Port = a.HttpPort
	}
	if a.RenderFormat != "" {
		config.Render.Format = a.RenderFormat
	}
	if err := config.Validate(); err != nil {
		return err
	}
	a.Config = config
	return nil
}

// openStore opens the run history when a path is configured.
func (a *App) openStore() error {
	if a.Store != nil || a.Config.Store.Path == "" {
		return nil
	}
	s, err := store.Open(a.Config.Store.Path)
	if err != nil {
		return fmt.Errorf("opening run store: %w", err)
	}
	a.Store = s
	return nil
}

func (a *App) closeStore() {
	if a.Store != nil {
		a.Store.Close()
		a.Store = nil
	}
}

// RunEstimate fits the input file once and writes the requested outputs
func (a *App) RunEstimate() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	kind, err := fitting.ParseKind(a.Model)
	if err != nil {
		return err
	}
	ds, err := fitting.OpenDataset(context.Background(), kind, a.Input)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.Out, "Fitting %d %s observations from %s\n", ds.Len(), kind, a.Input)
	res, err := fitting.Estimate(ds, a.Config.Estimator)
	if err != nil {
		return err
	}
	a.printResult(res)

	if a.OutputFile != "" {
		if err := writeFeatureCollection(a.OutputFile, res, ds); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "Wrote %s\n", a.OutputFile)
	}

	if a.RenderFile != "" {
		if err := a.renderToFile(a.RenderFile, res, ds); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "Rendered %s\n", a.RenderFile)
	}

	if err := a.openStore(); err != nil {
		return err
	}
	defer a.closeStore()
	if a.Store != nil {
		if err := a.Store.RecordRun(res); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "Recorded run %s in %s\n", res.ID, a.Config.Store.Path)
	}
	return nil
}

func (a *App) printResult(res *fitting.Result) {
	fmt.Fprintf(a.Out, "Run %s: %s\n", res.ID, res.Summary())
	if !res.Valid() {
		fmt.Fprintln(a.Out, "No model found")
		return
	}
	fmt.Fprintf(a.Out, "Model: %s\n", res.Model)
	if res.Score != nil {
		fmt.Fprintf(a.Out, "Score: %.6g\n", *res.Score)
	}
	fmt.Fprintf(a.Out, "Inlier ratio: %.3f (%.1f ms)\n", res.InlierRatio, res.DurationMS)
}

func writeFeatureCollection(path string, res *fitting.Result, ds *fitting.Dataset) error {
	data, err := json.MarshalIndent(res.FeatureCollection(ds), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding GeoJSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// renderToFile picks the renderer from the configured format and the file
// extension: raster always writes PNG, vector writes SVG unless the file
// ends in .png.
func (a *App) renderToFile(path string, res *fitting.Result, ds *fitting.Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case a.Config.Render.Format == "raster":
		err = fitting.NewRasterRenderer(a.Config.Render.Width).RenderPNG(f, res, ds)
	case ext == ".png":
		err = fitting.NewVectorRenderer().RenderToPNG(f, res, ds)
	default:
		err = fitting.NewVectorRenderer().RenderToSVG(f, res, ds)
	}
	if err != nil {
		return fmt.Errorf("rendering %s: %w", path, err)
	}
	return f.Close()
}

// RunWriteConfig saves the configuration after file, environment and flag
// overrides, so it can seed a config file.
func (a *App) RunWriteConfig() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	if err := fitting.SaveConfig(a.WriteConfig, a.Config); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Wrote config to %s\n", a.WriteConfig)
	return nil
}

// RunHistory prints the newest stored runs
func (a *App) RunHistory() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	if a.Config.Store.Path == "" {
		return errors.New("no run store configured (use --store or store.path)")
	}
	if err := a.openStore(); err != nil {
		return err
	}
	defer a.closeStore()

	runs, err := a.Store.ListRuns(a.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.Out, "No runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tINLIERS\tITERATIONS\tSCORE\tCREATED")
	for _, r := range runs {
		score := "-"
		if r.Score != nil {
			score = fmt.Sprintf("%.4g", *r.Score)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%d\t%s\t%s\n",
			r.ID, r.Kind, r.NumInliers, r.NumData, r.NumIterations, score,
			r.CreatedAt.Local().Format(time.RFC3339))
	}
	return tw.Flush()
}

// RunService runs the MQTT job service and/or the HTTP API until
// SIGINT or SIGTERM
func (a *App) RunService() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.serve(ctx)
}

// serve runs the configured services until ctx is done.
func (a *App) serve(ctx context.Context) error {
	fmt.Fprintln(a.Out, "Starting lomsac service...")

	if err := a.loadConfig(); err != nil {
		return err
	}
	if err := a.openStore(); err != nil {
		return err
	}
	defer a.closeStore()

	var recorder fitting.RunRecorder
	if a.Store != nil {
		recorder = a.Store
		log.Printf("Recording runs in %s", a.Config.Store.Path)
	}

	var jobs *fitting.JobService
	if a.MqttMode {
		if a.Config.MQTT.Broker == "" {
			return errors.New("MQTT broker not configured (set mqtt.broker or MQTT_BROKER)")
		}
		jobs = fitting.NewJobService(a.Config, a.Metrics, recorder)
		jobs.Start(ctx)
	}

	var srv *http.Server
	errCh := make(chan error, 1)
	if a.HttpMode {
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", a.Config.HTTP.Port),
			Handler:           newHTTPServer(a.Config, a.Store, a.Metrics, jobs),
			ReadHeaderTimeout: 10 * time.Second,
		}
		fmt.Fprintf(a.Out, "HTTP server starting on %s\n", srv.Addr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("HTTP server error: %w", err)
			}
		}()
	}

	a.printServiceInfo(jobs)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	fmt.Fprintln(a.Out, "\nShutting down service...")
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[HTTP] Shutdown error: %v", err)
		}
	}
	if jobs != nil {
		jobs.Disconnect()
	}
	fmt.Fprintln(a.Out, "Service stopped")
	return runErr
}

func (a *App) printServiceInfo(jobs *fitting.JobService) {
	fmt.Fprintln(a.Out, "\nService Running")
	fmt.Fprintln(a.Out, "===============")

	if jobs != nil {
		prefix := a.Config.MQTT.Prefix
		fmt.Fprintln(a.Out, "\nMQTT:")
		fmt.Fprintf(a.Out, "  Subscribed to: %s\n", jobs.JobsTopic())
		fmt.Fprintf(a.Out, "  Results:       %s/results/{id}\n", prefix)
		fmt.Fprintf(a.Out, "  Latest:        %s/results/latest\n", prefix)
		fmt.Fprintf(a.Out, "  Errors:        %s/errors\n", prefix)
	}

	if a.HttpMode {
		fmt.Fprintf(a.Out, "\nHTTP endpoints (port %d):\n", a.Config.HTTP.Port)
		fmt.Fprintln(a.Out, "  GET  /health             - Health check")
		fmt.Fprintln(a.Out, "  POST /estimate?kind=     - Fit a GeoJSON body")
		fmt.Fprintln(a.Out, "  POST /render?kind=&format=svg|png - Fit and plot")
		fmt.Fprintln(a.Out, "  GET  /runs               - Stored runs")
		fmt.Fprintln(a.Out, "  GET  /runs/{id}          - One stored run")
		fmt.Fprintln(a.Out, "  GET  /metrics            - Prometheus metrics")
	}

	fmt.Fprintln(a.Out, "\nPress Ctrl+C to stop")
}
