// Command chime plays local audio files from the command line through the
// beepline pipeline. It doubles as a smoke test for the whole playback stack:
// queue progression, gapless handoff, MPRIS desktop integration and playback
// history all run exactly as a host application would wire them.
//
// Usage:
//
//	chime [flags] file...
//	chime history [n]
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mdurel/chime"
	"github.com/mdurel/chime/beepline"
	"github.com/mdurel/chime/config"
	"github.com/mdurel/chime/reactor/history"
	"github.com/mdurel/chime/reactor/mprisbridge"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "chime:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "", "config file (default: XDG config dir)")
		volume      = flag.Float64("volume", -1, "initial volume 0.0-2.0 (default: from config)")
		speed       = flag.Float64("speed", 0, "playback speed (default: from config)")
		progression = flag.String("progression", "", "queue progression: none, consecutive, carousel, repeat-item, shuffle")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		return fmt.Errorf("nothing to play")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *progression != "" {
		cfg.Progression = *progression
	}
	if *volume >= 0 {
		cfg.Volume = *volume
	}
	if *speed > 0 {
		cfg.Speed = *speed
	}

	if flag.Arg(0) == "history" {
		return showHistory(cfg, flag.Args()[1:])
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	return play(cfg, logger, flag.Args())
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadPaths(path)
	}
	return config.Load()
}

func play(cfg *config.Config, logger *slog.Logger, args []string) error {
	pipe := beepline.New(beepline.Options{Logger: logger})

	done := make(chan error, 1)
	obs := &consoleObserver{done: done}

	opts := cfg.PlayerOptions()
	opts.Pipeline = pipe
	opts.Observer = obs
	opts.Logger = logger

	player, err := chime.NewPlayer(opts)
	if err != nil {
		return err
	}
	defer player.Close()
	obs.player = player

	mode, err := cfg.ProgressionMode()
	if err != nil {
		return err
	}
	player.Queue().SetProgressionMode(mode)
	player.Queue().SetGapless(cfg.GaplessEnabled())
	player.SetVolume(cfg.Volume)
	if cfg.Speed != 1.0 {
		player.SetSpeed(cfg.Speed)
	}

	if cfg.MprisEnabled() {
		player.AddReactor(mprisbridge.New("chime", cfg.Mpris.Identity))
	}
	if cfg.HistoryEnabled() {
		store, err := openHistory(cfg, logger)
		if err != nil {
			logger.Warn("history disabled", "err", err)
		} else {
			player.AddReactor(store)
		}
	}

	for _, arg := range args {
		item, err := chime.NewMediaItem(toURI(arg))
		if err != nil {
			return fmt.Errorf("%s: %w", arg, err)
		}
		player.Queue().Add(item)
	}

	if !cfg.AutoplayEnabled() {
		player.Play()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-done:
		return err
	case <-sig:
		fmt.Println()
		return nil
	}
}

func openHistory(cfg *config.Config, logger *slog.Logger) (*history.Store, error) {
	if cfg.History.Path != "" {
		return history.OpenPath(cfg.History.Path, logger)
	}
	return history.Open(logger)
}

// toURI turns a local path into a file URI, passing real URIs through.
func toURI(arg string) string {
	if u, err := url.Parse(arg); err == nil && u.Scheme != "" {
		return arg
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		abs = arg
	}
	return "file://" + abs
}

func showHistory(cfg *config.Config, args []string) error {
	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("bad history limit %q", args[0])
		}
		limit = n
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store, err := openHistory(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Unprepare()

	entries, err := store.Recent(limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no playback history yet")
		return nil
	}

	for _, e := range entries {
		fmt.Printf("%-30s %-40s %s\n",
			humanize.Time(e.StartedAt), e.Title, formatDuration(e.PlayedFor))
	}
	return nil
}

// consoleObserver prints playback progress and resolves the done channel
// when the queue plays out or the pipeline fails.
type consoleObserver struct {
	player *chime.Player
	done   chan error
}

func (o *consoleObserver) PropertyChanged(owner any, property string) {
	p := o.player
	if p == nil {
		return
	}

	switch property {
	case chime.PropPosition:
		item := p.PlayedItem()
		if item == nil {
			return
		}
		fmt.Printf("\r%s  %s / %s ", item.Title(),
			formatDuration(p.Position()), formatDuration(item.Duration()))

	case chime.PropState:
		if p.State() == chime.PlayerPaused && p.AfterEOS() {
			// The queue has nothing left to play.
			fmt.Println()
			o.finish(nil)
		}
	}
}

func (o *consoleObserver) StreamsChanged() {}

func (o *consoleObserver) TimelineChanged(item *chime.MediaItem) {}

func (o *consoleObserver) QueueChanged() {}

func (o *consoleObserver) SeekDone() {}

func (o *consoleObserver) DownloadComplete(item *chime.MediaItem, location string) {
	fmt.Printf("\ncached %s to %s\n", item.Title(), location)
}

func (o *consoleObserver) MissingPlugin(description, detail string) {
	fmt.Fprintf(os.Stderr, "\nmissing plugin: %s (%s)\n", description, detail)
}

func (o *consoleObserver) Warning(err error, debug string) {
	fmt.Fprintf(os.Stderr, "\nwarning: %v\n", err)
}

func (o *consoleObserver) Error(err error, debug string) {
	fmt.Println()
	o.finish(err)
}

func (o *consoleObserver) finish(err error) {
	select {
	case o.done <- err:
	default:
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d", m, s)
}
