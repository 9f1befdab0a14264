// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/z5labs/kiln"
	"github.com/z5labs/kiln/config"
	"github.com/z5labs/kiln/pkg/maskslog"
	"github.com/z5labs/kiln/pkg/noop"
	"github.com/z5labs/kiln/pkg/otelconfig"
	"github.com/z5labs/kiln/pkg/otelslog"
	"github.com/z5labs/kiln/pkg/slogfield"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// Modules maps module names to the servers they define by name.
type Modules map[string]map[string]*kiln.Server

// Option configures the command returned by [New].
type Option func(*runner)

// Server binds the command to s. No MODULE:SERVER argument is accepted then.
func Server(s *kiln.Server) Option {
	return func(r *runner) {
		r.server = s
	}
}

// WithModules registers the servers a MODULE:SERVER argument is resolved against.
func WithModules(mods Modules) Option {
	return func(r *runner) {
		r.modules = mods
	}
}

// Config adds a source read before the file given with --config.
func Config(src config.Source) Option {
	return func(r *runner) {
		r.srcs = append(r.srcs, src)
	}
}

// FileSystem sets the file system the --config file is read from.
func FileSystem(fs afero.Fs) Option {
	return func(r *runner) {
		r.fs = fs
	}
}

type runner struct {
	server  *kiln.Server
	modules Modules
	srcs    []config.Source
	fs      afero.Fs
	v       *viper.Viper
}

// New returns the root command.
func New(opts ...Option) *cobra.Command {
	r := &runner{
		fs: afero.NewOsFs(),
		v:  viper.New(),
	}
	for _, opt := range opts {
		opt(r)
	}

	use := "kiln MODULE:SERVER"
	args := cobra.MaximumNArgs(1)
	if r.server != nil {
		use = "kiln"
		args = cobra.NoArgs
	}

	cmd := &cobra.Command{
		Use:           use,
		Short:         "Serve a kiln server over HTTP",
		Args:          args,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          r.run,
	}

	fs := cmd.Flags()
	fs.String("host", "localhost", "Host to listen on")
	fs.Uint("port", 8080, "Port to listen on")
	fs.Bool("quiet", false, "Discard all log output")
	fs.Bool("verbose", false, "Log at debug level")
	fs.Bool("init-only", false, "Initialize the server and exit without serving")
	fs.String("config", "", "YAML config file, rendered as a text/template first")

	r.v.SetEnvPrefix("KILN")
	r.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	r.v.AutomaticEnv()
	// only fails for a nil flag set
	_ = r.v.BindPFlags(fs)

	return cmd
}

// Execute runs the root command built from opts with the process arguments
// and exits non-zero on failure.
func Execute(ctx context.Context, opts ...Option) {
	cmd := New(opts...)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	os.Exit(1)
}

func (r *runner) run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	srv, err := r.resolve(args)
	if err != nil {
		return err
	}

	cfg, err := r.loadConfig()
	if err != nil {
		return err
	}

	h := r.logHandler(cmd.ErrOrStderr(), cfg.Logging)
	log := slog.New(h)

	err = srv.Apply(append(cfg.Options(), kiln.LogHandler(h))...)
	if err != nil {
		return err
	}

	host := r.v.GetString("host")
	port := r.v.GetUint("port")
	addr := net.JoinHostPort(host, strconv.FormatUint(uint64(port), 10))

	if r.v.GetBool("init-only") {
		log.InfoContext(ctx, "initialized server", slogfield.String("server", srv.String()))
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s would serve on %s\n", srv, addr)
		for _, rt := range srv.Routes() {
			fmt.Fprintln(out, rt)
		}
		return nil
	}

	initer, err := otelconfig.New(cfg.OTel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	tp, err := initer.Init(ctx)
	if err != nil {
		return err
	}
	shutdown := otelconfig.Install(tp)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(gctx, "serving", slogfield.String("addr", addr))
		return srv.Run(gctx, host, port)
	})
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	serr := shutdown(context.WithoutCancel(ctx))
	if serr != nil {
		log.ErrorContext(ctx, "failed to shut down tracer provider", slogfield.Error(serr))
	}
	return errors.Join(err, serr)
}

func (r *runner) resolve(args []string) (*kiln.Server, error) {
	if r.server != nil {
		return r.server, nil
	}
	if len(args) == 0 {
		return nil, ErrMissingReference
	}

	ref := args[0]
	module, name, ok := strings.Cut(ref, ":")
	if !ok || module == "" || name == "" || strings.Contains(name, ":") {
		return nil, InvalidReferenceError{Reference: ref}
	}

	servers, ok := r.modules[module]
	if !ok {
		return nil, ModuleNotFoundError{Module: module}
	}
	srv, ok := servers[name]
	if !ok || srv == nil {
		return nil, ModuleNotFoundError{Module: module, Server: name}
	}
	return srv, nil
}

func (r *runner) loadConfig() (kiln.Config, error) {
	srcs := append([]config.Source{}, r.srcs...)
	path := r.v.GetString("config")
	if path != "" {
		f := config.NewFileReader(r.fs, path)
		srcs = append(srcs, config.FromYaml(
			config.RenderTextTemplate(f, config.EnvFuncs()),
		))
	}
	return kiln.LoadConfig(srcs...)
}

func (r *runner) logHandler(w io.Writer, cfg kiln.LoggingConfig) slog.Handler {
	if r.v.GetBool("quiet") {
		return noop.LogHandler{}
	}

	level := cfg.Level
	if r.v.GetBool("verbose") {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
	}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		h = slog.NewJSONHandler(w, opts)
	}
	if len(cfg.Mask) > 0 {
		h = maskslog.NewHandler(h, cfg.Mask...)
	}
	return otelslog.NewHandler(h, otelslog.RecordErrors())
}
