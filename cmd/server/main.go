// Package main is the entry point for the watchfs server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/CageChen/watchfs/internal/config"
	backend "github.com/CageChen/watchfs/internal/fs"
	"github.com/CageChen/watchfs/internal/handler"
	"github.com/CageChen/watchfs/internal/logging"
	"github.com/CageChen/watchfs/internal/metrics"
	"github.com/CageChen/watchfs/internal/preview"
	"github.com/CageChen/watchfs/internal/vfs"
	"github.com/CageChen/watchfs/internal/watcher"
)

type flags struct {
	configFile string
	paths      []string
	port       int
	debounce   time.Duration
	logLevel   string
	logFormat  string
	noMetrics  bool
	open       bool
}

func main() {
	var f flags
	cmd := &cobra.Command{
		Use:   "watchfs",
		Short: "Serve and watch directory trees over HTTP",
		Long: `watchfs serves one or more directory trees (or git refs) over a REST API,
keeps a watched, cached view of them and streams change events to WebSocket clients.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, f.open)
		},
	}

	cmd.Flags().StringVarP(&f.configFile, "config", "c", "", "Configuration file path")
	cmd.Flags().StringSliceVarP(&f.paths, "path", "p", nil, "Root directory to serve (repeatable, replaces configured roots)")
	cmd.Flags().IntVar(&f.port, "port", 0, "HTTP server port")
	cmd.Flags().DurationVar(&f.debounce, "debounce", 0, "Watcher debounce window")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "", "Log format (json, console)")
	cmd.Flags().BoolVar(&f.noMetrics, "no-metrics", false, "Disable the /metrics endpoint")
	cmd.Flags().BoolVar(&f.open, "open", false, "Open browser on startup")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration file; flags override it only if set.
func loadConfig(cmd *cobra.Command, f flags) (*config.Config, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return nil, err
	}

	if len(f.paths) > 0 {
		// CLI --path overrides saved roots
		cfg.Roots = nil
		for _, p := range f.paths {
			if err := cfg.AddRoot(p, "", "", nil); err != nil {
				return nil, err
			}
		}
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = f.port
	}
	if cmd.Flags().Changed("debounce") {
		cfg.Debounce = f.debounce
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	if f.noMetrics {
		cfg.Metrics = false
	}
	if len(cfg.Roots) == 0 {
		if err := cfg.AddRoot(".", "", "", nil); err != nil {
			return nil, err
		}
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg *config.Config, open bool) error {
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	limits := vfs.VisitOptions{MaxDepth: cfg.MaxDepth, MaxEntries: cfg.MaxEntries}
	fsOpts := []vfs.Option{
		vfs.WithLogger(logger),
		vfs.WithMetrics(m),
		vfs.WithVisitDefaults(limits),
	}

	local := backend.NewOSFS(backend.WithTrashDir(filepath.Join(config.GetConfigDir(), "trash")))
	w, err := watcher.New(watcher.Options{
		Debounce: cfg.Debounce,
		Logger:   logger,
		Stat:     local.Stat,
	})
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()
	metrics.RegisterWatcher(reg, w.Metrics)

	localFS := vfs.New(local, w, fsOpts...)
	localFS.Init()
	systems := []*vfs.FileSystem{localFS}

	var mounts []*handler.Mount
	for _, root := range cfg.Roots {
		mount := &handler.Mount{
			Name:   root.Alias,
			Filter: cfg.Filter(root),
			Globs:  cfg.Globs(root),
		}
		if root.ReadOnly() {
			mount.Path = gitMountPath(root)
			mount.ReadOnly = true
			// Excludes are relative to the mount, not the repository on disk.
			virtual := root
			virtual.Path = mount.Path
			mount.Filter = cfg.Filter(virtual)
			mount.FS = vfs.New(backend.NewGitFS(root.Path, root.GitRef, mount.Path), nil, fsOpts...)
			mount.FS.Init()
			systems = append(systems, mount.FS)
		} else {
			p, err := vfs.NormalizePath(filepath.ToSlash(root.Path), true, false)
			if err != nil {
				return fmt.Errorf("root %s: %w", root.Path, err)
			}
			mount.Path = p
			mount.FS = localFS
		}
		mounts = append(mounts, mount)
	}

	renderer := preview.NewRenderer(nil)
	ws := handler.NewWSHandler(logger)
	for _, fsys := range systems {
		defer ws.Subscribe(fsys)()
		defer invalidatePreviews(fsys, renderer)()
	}

	for _, mount := range mounts {
		if err := watchMount(ctx, mount); err != nil {
			logger.Warn("root not watched", zap.String("path", mount.Path), zap.Error(err))
			continue
		}
		logger.Info("serving root",
			zap.String("name", mount.Name),
			zap.String("path", mount.Path),
			zap.Bool("read_only", mount.ReadOnly))
	}

	set := handler.NewMounts(mounts...)
	h := &handler.Handlers{
		Tree:  handler.NewTreeHandler(set, limits),
		File:  handler.NewFileHandler(set, renderer, 0),
		Watch: handler.NewWatchHandler(set, logger),
		WS:    ws,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.Middleware(logger))
	r.Use(corsMiddleware())
	if cfg.Metrics {
		r.Use(m.Middleware())
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}
	h.Register(r.Group("/api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if open {
		go openBrowser(fmt.Sprintf("http://localhost:%d", cfg.Port))
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("config", cfg.GetConfigFilePath()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errs := srv.Shutdown(shutdownCtx)
	for _, fsys := range systems {
		errs = multierr.Append(errs, fsys.Close())
	}
	return errs
}

func watchMount(ctx context.Context, mount *handler.Mount) error {
	dir, err := mount.FS.GetDirectoryForPath(mount.Path)
	if err != nil {
		return err
	}
	return mount.FS.Watch(ctx, dir, mount.Filter, mount.Globs)
}

// gitMountPath places a git ref under a virtual /git/ tree.
func gitMountPath(root config.Root) string {
	ref := strings.NewReplacer("/", "-", " ", "-").Replace(root.GitRef)
	return "/git/" + filepath.Base(root.Path) + "@" + ref + "/"
}

// invalidatePreviews drops rendered previews of changed entries.
func invalidatePreviews(fsys *vfs.FileSystem, renderer *preview.Renderer) (cancel func()) {
	cancelChange := fsys.OnChange(func(ev vfs.ChangeEvent) {
		if ev.Wholesale() {
			renderer.Forget("")
			return
		}
		renderer.Forget(ev.Entry.Path())
		for _, e := range ev.Removed {
			renderer.Forget(e.Path())
		}
	})
	cancelRename := fsys.OnRename(func(ev vfs.RenameEvent) {
		renderer.Forget(ev.OldPath)
	})
	return func() {
		cancelChange()
		cancelRename()
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, If-Match")
		c.Header("Access-Control-Expose-Headers", "ETag")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func openBrowser(url string) {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "windows":
		cmd = "rundll32"
		args = []string{"url.dll,FileProtocolHandler", url}
	case "darwin":
		cmd = "open"
		args = []string{url}
	default: // linux, etc.
		cmd = "xdg-open"
		args = []string{url}
	}

	_ = exec.Command(cmd, args...).Start()
}
