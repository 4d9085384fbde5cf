// Command gist computes per-file summaries and keeps them in persistent
// storage, recomputing only when a file or the reindex generation changes.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/unkn0wn-root/gist"
	"github.com/unkn0wn-root/gist/config"
	"github.com/unkn0wn-root/gist/vfs"
)

var Version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "gist:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "gist",
		Usage:   "Persistent per-file summaries",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (default: nearest gist.toml)",
			},
			&cli.StringFlag{
				Name:    "project",
				Aliases: []string{"p"},
				Usage:   "Project root that scopes stored summaries",
				Value:   ".",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "compute",
				Usage:     "Print a summary for each file, reusing stored values",
				ArgsUsage: "PATH...",
				Flags:     []cli.Flag{gistFlag()},
				Action:    computeCmd,
			},
			{
				Name:   "invalidate",
				Usage:  "Bump the reindex generation so every stored summary is recomputed",
				Action: invalidateCmd,
			},
			{
				Name:      "watch",
				Usage:     "Watch a directory and print summaries of changed files",
				ArgsUsage: "DIR",
				Flags:     []cli.Flag{gistFlag()},
				Action:    watchCmd,
			},
		},
	}
}

func gistFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "gist",
		Aliases: []string{"g"},
		Usage:   "Summary to compute: digest|lines|size|stats",
		Value:   "size",
	}
}

type session struct {
	m       *gist.Manager
	fs      *vfs.FS
	stack   *config.Stack
	cfg     config.Config
	project vfs.Project
	tracker *tracker
	gists   map[string]runner
}

func openSession(c *cli.Context) (*session, error) {
	path := c.String("config")
	if path == "" {
		path = config.Find(".")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	root, err := filepath.Abs(c.String("project"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project %q: %w", c.String("project"), err)
	}

	stack, err := config.Build(c.Context, cfg)
	if err != nil {
		return nil, err
	}
	m, err := gist.NewManager(stack.Options)
	if err != nil {
		stack.Close()
		return nil, err
	}
	files, err := vfs.New(vfs.WithState(cfg.StatePath()), vfs.WithLogger(stack.Options.Logger))
	if err != nil {
		_ = m.Close(c.Context)
		stack.Close()
		return nil, err
	}

	s := &session{m: m, fs: files, stack: stack, cfg: cfg, project: files.Project(root), tracker: &tracker{}}
	s.gists, err = registry(m, s.tracker)
	if err != nil {
		_ = s.Close(c.Context)
		return nil, err
	}
	return s, nil
}

func (s *session) Close(ctx context.Context) error {
	err := errors.Join(s.fs.Close(), s.m.Close(ctx))
	s.stack.Close()
	return err
}

func (s *session) runner(name string) (runner, error) {
	r, ok := s.gists[name]
	if !ok {
		return nil, fmt.Errorf("unknown gist %q (want %s)", name, gistNames(s.gists))
	}
	return r, nil
}

// line renders one result as "<path>\t<value>\t<hit|miss>"; "-" means no data.
func (s *session) line(ctx context.Context, r runner, path string) (string, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return "", err
	}
	s.tracker.reset()
	v, ok, err := r(ctx, s.project, f)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	if !ok {
		v = "-"
	}
	status := "hit"
	if s.tracker.computed {
		status = "miss"
	}
	return fmt.Sprintf("%s\t%s\t%s", path, v, status), nil
}

func computeCmd(c *cli.Context) (err error) {
	if c.NArg() == 0 {
		return errors.New("compute: at least one PATH is required")
	}
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.Close(c.Context)) }()

	r, err := s.runner(c.String("gist"))
	if err != nil {
		return err
	}
	for _, p := range c.Args().Slice() {
		out, err := s.line(c.Context, r, p)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, out)
	}
	return nil
}

func invalidateCmd(c *cli.Context) (err error) {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.Close(c.Context)) }()

	if s.cfg.Generation.Backend == config.GenLocal {
		// the bump would die with this process
		return errors.New(`invalidate: generation.backend = "local" does not persist; use "file" or "redis"`)
	}

	g, err := s.m.InvalidateData(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "reindex generation %d\n", g)
	return nil
}

func watchCmd(c *cli.Context) (err error) {
	if c.NArg() != 1 {
		return errors.New("watch: exactly one DIR is required")
	}
	dir := c.Args().First()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(c)
	if err != nil {
		return err
	}
	// ctx is canceled by now; close with the parent
	defer func() { err = errors.Join(err, s.Close(c.Context)) }()

	r, err := s.runner(c.String("gist"))
	if err != nil {
		return err
	}
	emit := func(path string) {
		out, err := s.line(ctx, r, path)
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(c.App.Writer, "%s\tremoved\n", path)
			return
		}
		if err != nil {
			if !errors.Is(err, vfs.ErrIsDir) {
				fmt.Fprintln(c.App.ErrWriter, "gist:", err)
			}
			return
		}
		fmt.Fprintln(c.App.Writer, out)
	}

	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		emit(filepath.Clean(p))
		return nil
	})
	if err != nil {
		return err
	}
	return s.fs.Watch(ctx, dir, emit)
}
