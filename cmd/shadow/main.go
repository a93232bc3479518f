package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/windfall/shadowing/internal/cache"
	"github.com/windfall/shadowing/internal/client"
	"github.com/windfall/shadowing/internal/logger"
	"github.com/windfall/shadowing/internal/model"
	"github.com/windfall/shadowing/internal/player"
	"github.com/windfall/shadowing/internal/recorder"
	"github.com/windfall/shadowing/internal/view"
)

const readyPollInterval = 20 * time.Millisecond

var (
	apiURL   string
	timeout  time.Duration
	logLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "shadow",
		Short:         "Shadowing practice from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultAPI := os.Getenv("API_BASE_URL")
	if defaultAPI == "" {
		defaultAPI = "http://localhost:8000"
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api", defaultAPI, "backend base URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 120*time.Second, "backend request timeout")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(practicesCmd())
	rootCmd.AddCommand(practiceCmd())
	rootCmd.AddCommand(playCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type deps struct {
	api     *client.BackendClient
	queries *cache.QueryCache
	log     zerolog.Logger
}

func newDeps() (*deps, error) {
	log := logger.NewWithOutput(os.Stderr, logLevel, "console")
	queries, err := cache.New(cache.Options{MaxEntries: 100, Retry: 1}, log)
	if err != nil {
		return nil, err
	}
	return &deps{
		api:     client.NewBackendClient(apiURL, timeout),
		queries: queries,
		log:     log,
	}, nil
}

func (d *deps) Close() {
	d.queries.Close()
}

func (d *deps) practiceView(source recorder.Source, opts view.PracticeOptions) *view.PracticeView {
	return view.NewPracticeView(view.PracticeDeps{
		API:     d.api,
		Queries: d.queries,
		Engines: func(duration float64) player.EngineFactory {
			return player.ClockEngineFactory(duration, player.DefaultTick)
		},
		Source: source,
		Log:    d.log,
	}, opts)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List materials in the library",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDeps()
			if err != nil {
				return err
			}
			defer d.Close()

			lib, err := view.NewMaterialList(d.api, d.queries, d.log).Load(cmd.Context())
			if err != nil {
				return err
			}
			return view.RenderLibrary(cmd.OutOrStdout(), lib)
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [material-id]",
		Short: "Delete a material",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			d, err := newDeps()
			if err != nil {
				return err
			}
			defer d.Close()

			if err := view.NewMaterialList(d.api, d.queries, d.log).Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted material %d\n", id)
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a YouTube video or a PDF",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "youtube [url]",
		Short: "Import the transcript and audio of a YouTube video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDeps()
			if err != nil {
				return err
			}
			defer d.Close()

			form := view.NewYouTubeImport(d.api, d.queries, d.log)
			fmt.Fprintln(cmd.OutOrStdout(), "Importing...")
			result, err := form.Submit(cmd.Context(), args[0])
			if err != nil {
				if msg := form.State().Message; msg != "" {
					return fmt.Errorf("%s: %w", msg, err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %q (material %d)\n", form.State().Message, result.Title, result.MaterialID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "pdf [file]",
		Short: "Import a PDF document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			d, err := newDeps()
			if err != nil {
				return err
			}
			defer d.Close()

			form := view.NewPDFImport(d.api, d.queries, d.log)
			name := filepath.Base(args[0])
			fmt.Fprintln(cmd.OutOrStdout(), "Importing...")
			result, err := form.Submit(cmd.Context(), name, mime.TypeByExtension(filepath.Ext(name)), f)
			if err != nil {
				if msg := form.State().Message; msg != "" {
					return fmt.Errorf("%s: %w", msg, err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %q (%d segments)\n", form.State().Message, result.Title, result.SegmentCount)
			return nil
		},
	})

	return cmd
}

func practicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "practices [segment-id]",
		Short: "Show the practice history of a segment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			d, err := newDeps()
			if err != nil {
				return err
			}
			defer d.Close()

			practices, err := view.SegmentPractices(cmd.Context(), d.queries, d.api, id)
			if err != nil {
				return err
			}
			if len(practices) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No practices yet.")
				return nil
			}

			out := cmd.OutOrStdout()
			for _, p := range practices {
				score := "-"
				if p.Evaluated() {
					score = fmt.Sprintf("%.0f (%s)", p.Evaluation.AccuracyScore, view.ScoreBucket(p.Evaluation.AccuracyScore))
				}
				fmt.Fprintf(out, "#%d  %s  score %s\n", p.ID, p.CreatedAt.Format(time.DateTime), score)
			}
			return nil
		},
	}
}

// openSegment opens a practice view on the 1-based segment of a material.
func openSegment(ctx context.Context, v *view.PracticeView, materialID int64, segment int) error {
	if err := v.Open(ctx, materialID); err != nil {
		return err
	}
	return v.Jump(segment - 1)
}

func practiceCmd() *cobra.Command {
	var (
		materialID int64
		segment    int
		recording  string
	)

	cmd := &cobra.Command{
		Use:   "practice",
		Short: "Submit a recording for a segment and show its evaluation",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDeps()
			if err != nil {
				return err
			}
			defer d.Close()

			out := cmd.OutOrStdout()
			v := d.practiceView(recorder.FileSource{Path: recording}, view.PracticeOptions{
				OnRecorder: func(state recorder.State) {
					fmt.Fprintf(out, "recorder: %s\n", state)
				},
			})
			defer v.Close()

			if err := openSegment(cmd.Context(), v, materialID, segment); err != nil {
				return err
			}
			if err := view.RenderPractice(out, v.Snapshot()); err != nil {
				return err
			}

			if err := v.StartRecording(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(out, "Evaluating...")
			result, err := v.StopRecording(cmd.Context())
			if err != nil {
				return err
			}
			return view.RenderEvaluation(out, *result)
		},
	}

	cmd.Flags().Int64Var(&materialID, "material", 0, "material id")
	cmd.Flags().IntVar(&segment, "segment", 1, "segment number, starting at 1")
	cmd.Flags().StringVar(&recording, "recording", "", "audio file to submit")
	cmd.MarkFlagRequired("material")
	cmd.MarkFlagRequired("recording")
	return cmd
}

func playCmd() *cobra.Command {
	var (
		materialID int64
		segment    int
		speed      float64
	)

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a segment through the range-limited player",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDeps()
			if err != nil {
				return err
			}
			defer d.Close()

			out := cmd.OutOrStdout()
			finished := make(chan struct{}, 1)
			var started atomic.Bool
			v := d.practiceView(nil, view.PracticeOptions{
				OnPlayerState: func(state player.State) {
					switch state {
					case player.StatePlaying:
						started.Store(true)
					case player.StateReady, player.StatePaused:
						if started.Load() {
							notify(finished)
						}
					}
				},
				OnPlayerTime: func(current float64) {
					fmt.Fprintf(out, "\r%s", model.FormatClock(current))
				},
			})
			defer v.Close()

			if err := openSegment(cmd.Context(), v, materialID, segment); err != nil {
				return err
			}
			if err := v.SetSpeed(speed); err != nil {
				return err
			}
			if err := view.RenderPractice(out, v.Snapshot()); err != nil {
				return err
			}

			waitCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
			p, err := v.WaitPlayerReady(waitCtx, readyPollInterval)
			cancel()
			if err != nil {
				return fmt.Errorf("segment audio not ready: %w", err)
			}
			if err := p.Play(); err != nil {
				return err
			}

			select {
			case <-finished:
				fmt.Fprintln(out)
				return nil
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}
		},
	}

	cmd.Flags().Int64Var(&materialID, "material", 0, "material id")
	cmd.Flags().IntVar(&segment, "segment", 1, "segment number, starting at 1")
	cmd.Flags().Float64Var(&speed, "speed", 1.0, "playback speed")
	cmd.MarkFlagRequired("material")
	return cmd
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
