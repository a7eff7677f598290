package respace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/walteh/sqlreflow/pkg/config"
	"github.com/walteh/sqlreflow/pkg/debug"
	"github.com/walteh/sqlreflow/pkg/depthmap"
	"github.com/walteh/sqlreflow/pkg/diff"
	"github.com/walteh/sqlreflow/pkg/fix"
	"github.com/walteh/sqlreflow/pkg/reflow"
	"github.com/walteh/sqlreflow/pkg/segment"
)

var ErrEditsFound = errors.Base("respacing would change files")

// faults are the errors which point at a bug in the reflow rules rather than
// at bad input
var faults = []error{
	reflow.ErrUnexpectedConstraint,
	reflow.ErrNoAnchor,
	fix.ErrMissingInsertion,
	depthmap.ErrNoCommonAncestor,
	depthmap.ErrUnknownSegment,
}

func isFault(err error) bool {
	for _, f := range faults {
		if errors.Is(err, f) {
			return true
		}
	}
	return false
}

type Handler struct {
	fs afero.Fs

	configPath    string
	stripNewlines bool
	filter        string
	format        string
	tabWidth      int
	check         bool
	debug         bool
}

func NewRespaceCommand() *cobra.Command {
	return newCommand(&Handler{fs: afero.NewOsFs()})
}

func newCommand(me *Handler) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "respace [flags] <parse-tree>...",
		Short:         "report the whitespace edits each parse tree needs",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringVarP(&me.configPath, "config", "c", "", "layout config file (.yaml, .yml or .hcl), defaults apply when empty")
	cmd.Flags().BoolVar(&me.stripNewlines, "strip-newlines", false, "remove newlines between blocks")
	cmd.Flags().StringVar(&me.filter, "filter", string(reflow.FilterAll), "which points to respace: all, inline or newline")
	cmd.Flags().StringVarP(&me.format, "format", "f", "text", "output format: text, diff, yaml or json")
	cmd.Flags().IntVar(&me.tabWidth, "tab-width", 0, "tab stop width, 0 reads .editorconfig then the layout config")
	cmd.Flags().BoolVar(&me.check, "check", false, "exit non-zero when any edit is found")
	cmd.Flags().BoolVar(&me.debug, "debug", false, "enable debug logging")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		level := zerolog.InfoLevel
		if me.debug {
			level = zerolog.DebugLevel
		}
		ctx := debug.WithLogger(cmd.Context(), cmd.ErrOrStderr(), debug.WithLevel(level))
		return me.Run(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), args)
	}

	return cmd
}

// EditReport is one edit in a form fit for printing
type EditReport struct {
	Type    string `json:"type" yaml:"type"`
	Segment string `json:"segment" yaml:"segment"`
	Line    int    `json:"line" yaml:"line"`
	Column  int    `json:"column" yaml:"column"`
	Raw     string `json:"raw" yaml:"raw"`
	Payload string `json:"payload" yaml:"payload"`
}

type FileReport struct {
	File  string       `json:"file" yaml:"file"`
	Edits []EditReport `json:"edits" yaml:"edits"`

	before, after string
}

func NewEditReport(e *fix.Edit) EditReport {
	r := EditReport{
		Type:    e.Type.String(),
		Segment: e.Anchor.Type(),
		Raw:     e.Anchor.Raw(),
	}
	if pos := e.Anchor.PosMarker(); pos != nil {
		r.Line = pos.SourceLoc().Line
		r.Column = pos.SourceLoc().Character
	}
	for _, p := range e.Payload {
		r.Payload += p.Raw()
	}
	return r
}

func (me *Handler) Run(ctx context.Context, out, errOut io.Writer, patterns []string) error {
	switch me.format {
	case "text", "diff", "yaml", "json":
	default:
		return errors.Errorf("unknown format %q, expected one of text, diff, yaml, json", me.format)
	}

	filter, err := reflow.ParseFilter(me.filter)
	if err != nil {
		return err
	}

	cfg, err := me.loadConfig()
	if err != nil {
		return err
	}

	files, err := me.expand(patterns)
	if err != nil {
		return err
	}

	opts := []reflow.RespaceOption{reflow.WithFilter(filter)}
	if me.stripNewlines {
		opts = append(opts, reflow.WithStripNewlines())
	}

	var (
		reports []FileReport
		errs    error
		total   int
	)
	for _, file := range files {
		report, err := me.respaceFile(ctx, cfg, file, opts...)
		if err != nil {
			if isFault(err) {
				zerolog.Ctx(ctx).Error().Err(err).Str("file", file).Msg("reflow fault")
				fmt.Fprintf(errOut, "internal error: %s: %v\n", file, err)
			} else {
				fmt.Fprintf(errOut, "error: %s: %v\n", file, err)
			}
			errs = multierr.Append(errs, err)
			continue
		}
		total += len(report.Edits)
		reports = append(reports, report)
	}

	if err := me.write(out, reports); err != nil {
		return err
	}

	if errs != nil {
		return errors.Errorf("respacing %d of %d files failed: %w", len(multierr.Errors(errs)), len(files), errs)
	}
	if me.check && total > 0 {
		return errors.Errorf("%w: %d edits", ErrEditsFound, total)
	}
	return nil
}

func (me *Handler) loadConfig() (*config.ReflowConfig, error) {
	if me.configPath == "" {
		return config.Default()
	}
	return config.Load(me.fs, me.configPath)
}

// expand resolves every pattern to the files it matches. Each pattern must
// match at least one file.
func (me *Handler) expand(patterns []string) ([]string, error) {
	seen := map[string]bool{}
	var files []string
	for _, p := range patterns {
		pattern := filepath.ToSlash(p)
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.Errorf("invalid pattern %q", p)
		}

		fsys, base := me.fs, ""
		if filepath.IsAbs(p) {
			base, pattern = doublestar.SplitPattern(pattern)
			fsys = afero.NewBasePathFs(me.fs, filepath.FromSlash(base))
		}

		matches, err := doublestar.Glob(afero.NewIOFS(fsys), pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, errors.Errorf("matching %q: %w", p, err)
		}
		if len(matches) == 0 {
			return nil, errors.Errorf("no parse trees match %q", p)
		}

		sort.Strings(matches)
		for _, m := range matches {
			file := filepath.FromSlash(m)
			if base != "" {
				file = filepath.Join(filepath.FromSlash(base), file)
			}
			if !seen[file] {
				seen[file] = true
				files = append(files, file)
			}
		}
	}
	return files, nil
}

func (me *Handler) tabWidthFor(ctx context.Context, cfg *config.ReflowConfig, file string) int {
	if me.tabWidth > 0 {
		return me.tabWidth
	}
	width, err := config.TabWidthFor(me.fs, file)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("file", file).Msg("ignoring editorconfig")
	}
	if width > 0 {
		return width
	}
	return cfg.TabSpaceSize
}

func (me *Handler) respaceFile(ctx context.Context, cfg *config.ReflowConfig, file string, opts ...reflow.RespaceOption) (FileReport, error) {
	width := me.tabWidthFor(ctx, cfg, file)

	root, err := segment.LoadFile(me.fs, file, segment.WithTabWidth(width))
	if err != nil {
		return FileReport{}, err
	}

	seq, err := reflow.FromRoot(ctx, root, cfg)
	if err != nil {
		return FileReport{}, err
	}

	out, err := seq.Respace(ctx, opts...)
	if err != nil {
		return FileReport{}, errors.Errorf("respacing %s: %w", file, err)
	}

	report := FileReport{File: file, Edits: []EditReport{}, before: seq.Raw(), after: out.Raw()}
	for _, e := range out.Edits() {
		report.Edits = append(report.Edits, NewEditReport(e))
	}

	zerolog.Ctx(ctx).Debug().Str("file", file).Int("tab_width", width).Int("edits", len(report.Edits)).Msg("respaced")

	return report, nil
}

func (me *Handler) write(out io.Writer, reports []FileReport) error {
	if reports == nil {
		reports = []FileReport{}
	}

	switch me.format {
	case "text":
		for _, r := range reports {
			for _, e := range r.Edits {
				fmt.Fprintf(out, "%s:%d:%d: %s %s %q -> %q\n", r.File, e.Line, e.Column, e.Type, e.Segment, e.Raw, e.Payload)
			}
		}
		return nil
	case "diff":
		for _, r := range reports {
			if d := diff.Text(r.before, r.after); d != "" {
				fmt.Fprintf(out, "--- %s\n+++ %s (respaced)\n%s\n", r.File, r.File, d)
			}
		}
		return nil
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(reports); err != nil {
			return errors.Errorf("encoding yaml report: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return errors.Errorf("encoding json report: %w", err)
		}
	}
	return nil
}
