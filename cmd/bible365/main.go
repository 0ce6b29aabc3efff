// Package main provides the CLI entrypoint for bible365.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ruskoloma/bible365/internal/auth"
	"github.com/ruskoloma/bible365/internal/config"
	"github.com/ruskoloma/bible365/internal/drive"
	"github.com/ruskoloma/bible365/internal/logger"
	"github.com/ruskoloma/bible365/internal/plan"
	"github.com/ruskoloma/bible365/internal/progress"
	"github.com/ruskoloma/bible365/internal/store"
	"github.com/ruskoloma/bible365/internal/sync"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bible365",
	Short: "Track a one-year Bible reading plan",
	Long: `bible365 tracks your progress through a 365-day Bible reading plan
with parallel Old and New Testament tracks. Progress lives in a local
database and can optionally sync through your cloud account so several
devices share one plan.`,
	SilenceUsage: true,
}

var todayCmd = &cobra.Command{
	Use:   "today [day]",
	Short: "Show the readings for today (or a specific plan day)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runToday,
}

var toggleCmd = &cobra.Command{
	Use:   "toggle <day> <reading>",
	Short: "Flip one reading between done and not done",
	Long: `Flip the completion state of a single reading. The reading number is
the position shown by "bible365 today", starting at 1.`,
	Args: cobra.ExactArgs(2),
	RunE: runToggle,
}

var dayCmd = &cobra.Command{
	Use:   "day <day>",
	Short: "Mark every reading of a plan day as done",
	Args:  cobra.ExactArgs(1),
	RunE:  runDay,
}

var dayUndo bool

var startCmd = &cobra.Command{
	Use:   "start [date]",
	Short: "Begin the plan, anchoring day 1 (default: today)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStart,
}

var langCmd = &cobra.Command{
	Use:   "lang <en|ru>",
	Short: "Switch the display language",
	Args:  cobra.ExactArgs(1),
	RunE:  runLang,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show plan progress and sync status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Link a cloud account and reconcile progress",
	Long: `Sign in with your cloud account and merge this device's progress with
the copy stored there. If both sides already have a started plan you
will be asked which one to keep.`,
	Args: cobra.NoArgs,
	RunE: runConnect,
}

var signoutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Disconnect the cloud account, keeping local progress",
	Args:  cobra.NoArgs,
	RunE:  runSignout,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull and push progress once",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run in the foreground, syncing continuously",
	Long: `Keep syncing until interrupted: edits made by other bible365 commands
are pushed after a short quiet period, and remote changes from other
devices are pulled periodically.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear local progress and the start date",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete progress everywhere and sign out",
	Args:  cobra.NoArgs,
	RunE:  runDelete,
}

var skipConfirm bool

func init() {
	dayCmd.Flags().BoolVar(&dayUndo, "undo", false, "mark the day as not done instead")
	resetCmd.Flags().BoolVarP(&skipConfirm, "yes", "y", false, "skip the confirmation prompt")
	deleteCmd.Flags().BoolVarP(&skipConfirm, "yes", "y", false, "skip the confirmation prompt")

	rootCmd.AddCommand(todayCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(dayCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(langCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(signoutCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(deleteCmd)
}

// app holds the wired-up pieces every command needs. The auth provider and
// sync engine are built lazily since most commands work offline.
type app struct {
	cfg     *config.Config
	store   *store.Store
	tracker *progress.Tracker

	provider *auth.Provider
	engine   *sync.Engine
}

func openApp() (*app, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, err
	}

	if level, err := logger.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if cfg.LogFile != "" {
		logger.SetLogFile(cfg.LogFile)
	}

	dataDir, err := config.DataDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s, err := store.Open(filepath.Join(dataDir, "progress.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open progress database: %w", err)
	}

	deviceID, err := ensureDeviceID(s)
	if err != nil {
		s.Close()
		return nil, err
	}
	logger.Debug("device %s", deviceID)

	tracker, err := progress.Load(s)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}

	// First run: adopt the configured language before any output.
	if stored, _ := s.Get(store.KeyLanguage); stored == "" && cfg.Language != "" {
		if lang, err := progress.ParseLanguage(cfg.Language); err == nil {
			if err := tracker.SetLanguage(lang); err != nil {
				s.Close()
				return nil, err
			}
		}
	}

	return &app{cfg: cfg, store: s, tracker: tracker}, nil
}

// online builds the auth provider, remote client, and sync engine. It fails
// with a setup hint when no OAuth client id is configured.
func (a *app) online() error {
	if !a.cfg.CloudEnabled() {
		dir, _ := config.Dir()
		return fmt.Errorf("cloud sync is not configured: set client_id in %s", filepath.Join(dir, config.FileName))
	}

	provider := auth.NewProvider(a.cfg.ClientID, a.store, auth.NewDeviceFlow())
	if err := provider.Initialize(); err != nil {
		return err
	}

	client := drive.New(provider, a.store)
	engine := sync.NewEngine(a.tracker, client, provider, a.cfg.DebounceMs)
	engine.SetPullInterval(time.Duration(a.cfg.PullIntervalSeconds) * time.Second)
	engine.SetPrompter(mergePrompt{})
	engine.SetNotify(func(msg string) {
		fmt.Fprintf(os.Stderr, "sync: %s\n", msg)
	})

	a.provider = provider
	a.engine = engine
	return nil
}

func (a *app) Close() {
	if a.engine != nil {
		a.engine.Stop()
	}
	if err := a.store.Close(); err != nil {
		logger.Warn("failed to close progress database: %v", err)
	}
	logger.Close()
}

// pushNow pushes the current document immediately when a credential is
// available. One-shot commands exit before a debounce timer could fire, so
// they flush explicitly; failures are non-fatal.
func (a *app) pushNow(ctx context.Context) {
	if !a.cfg.CloudEnabled() {
		return
	}
	if a.engine == nil {
		if err := a.online(); err != nil {
			logger.Debug("skipping push: %v", err)
			return
		}
	}

	token, err := a.provider.Token(ctx, false)
	if err != nil || token == "" {
		return
	}
	if err := a.engine.Push(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to sync: %v\n", err)
	}
}

// ensureDeviceID returns the stable per-install identifier, generating one
// on first use.
func ensureDeviceID(s *store.Store) (string, error) {
	id, err := s.Get(store.KeyDeviceID)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err := s.Set(store.KeyDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}

// parseDay validates a plan day argument.
func parseDay(s string) (int, error) {
	day, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid day %q: must be a number", s)
	}
	if day < 1 || day > plan.TotalDays {
		return 0, fmt.Errorf("day %d is out of range: the plan has days 1 to %d", day, plan.TotalDays)
	}
	return day, nil
}

// parseReading validates a 1-based reading number for a day and returns the
// 0-based index.
func parseReading(s string, day int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid reading %q: must be a number", s)
	}
	count := plan.ReadingCount(day)
	if n < 1 || n > count {
		return 0, fmt.Errorf("day %d has readings 1 to %d, got %d", day, count, n)
	}
	return n - 1, nil
}

func checkbox(done bool) string {
	if done {
		return "[x]"
	}
	return "[ ]"
}

// renderDay formats a day's readings with completion marks.
func renderDay(doc *progress.Document, day int) []string {
	readings, ok := plan.Day(day)
	if !ok {
		return nil
	}
	lines := make([]string, 0, len(readings))
	for i, r := range readings {
		_, done := doc.Completed[progress.Key(day, i)]
		lines = append(lines, fmt.Sprintf("%s %d. %s", checkbox(done), i+1, r.Reference(string(doc.Language))))
	}
	return lines
}

// syncedAgo renders a sync timestamp for humans.
func syncedAgo(ts string) string {
	if ts == "" {
		return "never"
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}

// totalReadings is the number of readings across the whole plan.
func totalReadings() int {
	total := 0
	for day := 1; day <= plan.TotalDays; day++ {
		total += plan.ReadingCount(day)
	}
	return total
}

// mergePrompt asks which copy to keep when both the device and the cloud
// have a started plan.
type mergePrompt struct{}

func (mergePrompt) ChooseMerge(local, remote *progress.Document) (sync.MergeChoice, error) {
	choice := sync.MergeAdoptRemote
	err := huh.NewSelect[sync.MergeChoice]().
		Title("Progress exists both on this device and in the cloud").
		Description(fmt.Sprintf(
			"this device: started %s, %d readings done\ncloud:       started %s, %d readings done",
			local.StartDate, len(local.Completed),
			remote.StartDate, len(remote.Completed))).
		Options(
			huh.NewOption("Use the cloud copy (replaces this device's progress)", sync.MergeAdoptRemote),
			huh.NewOption("Keep this device's copy (replaces the cloud progress)", sync.MergePushLocal),
		).
		Value(&choice).
		Run()
	return choice, err
}

func confirm(title string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().Title(title).Value(&ok).Run()
	return ok, err
}

func runToday(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	doc := a.tracker.Snapshot()

	var day int
	if len(args) == 1 {
		day, err = parseDay(args[0])
		if err != nil {
			return err
		}
	} else {
		day = a.tracker.ExpectedDay(time.Now())
		if day == 0 {
			return fmt.Errorf("the plan has not started: run 'bible365 start' first")
		}
	}

	fmt.Printf("day %d of %d\n", day, plan.TotalDays)
	for _, line := range renderDay(doc, day) {
		fmt.Println(line)
	}
	return nil
}

func runToggle(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	day, err := parseDay(args[0])
	if err != nil {
		return err
	}
	index, err := parseReading(args[1], day)
	if err != nil {
		return err
	}

	done, err := a.tracker.Toggle(day, index)
	if err != nil {
		return err
	}

	readings, _ := plan.Day(day)
	doc := a.tracker.Snapshot()
	fmt.Printf("%s %s\n", checkbox(done), readings[index].Reference(string(doc.Language)))

	a.pushNow(cmd.Context())
	return nil
}

func runDay(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	day, err := parseDay(args[0])
	if err != nil {
		return err
	}
	if err := a.tracker.MarkDay(day, !dayUndo); err != nil {
		return err
	}

	if dayUndo {
		fmt.Printf("day %d cleared\n", day)
	} else {
		fmt.Printf("day %d done\n", day)
	}

	a.pushNow(cmd.Context())
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	date := time.Now().Format(progress.DateLayout)
	if len(args) == 1 {
		date = args[0]
	}
	if err := a.tracker.SetStartDate(date); err != nil {
		return err
	}
	fmt.Printf("plan started: day 1 is %s\n", date)

	a.pushNow(cmd.Context())
	return nil
}

func runLang(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	lang, err := progress.ParseLanguage(args[0])
	if err != nil {
		return err
	}
	if err := a.tracker.SetLanguage(lang); err != nil {
		return err
	}
	fmt.Printf("language set to %s\n", lang)

	a.pushNow(cmd.Context())
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	doc := a.tracker.Snapshot()

	if doc.StartDate == "" {
		fmt.Println("the plan has not started: run 'bible365 start' to begin")
	} else {
		day := a.tracker.ExpectedDay(time.Now())
		fmt.Printf("plan started:  %s (day %d of %d)\n", doc.StartDate, day, plan.TotalDays)
	}

	total := totalReadings()
	done := len(doc.Completed)
	fmt.Printf("completed:     %d of %d readings (%d%%)\n", done, total, done*100/total)
	if last := a.tracker.LastCompletedDay(); last > 0 {
		fmt.Printf("fully done:    through day %d\n", last)
	}
	fmt.Printf("language:      %s\n", doc.Language)

	// Read the cached profile directly; status never goes to the network.
	var profile auth.Profile
	found, err := a.store.GetJSON(store.KeyProfile, &profile)
	if err != nil {
		return err
	}
	if found {
		fmt.Printf("account:       %s\n", profile.Email)
		fmt.Printf("last synced:   %s\n", syncedAgo(doc.LastSynced))
	} else {
		fmt.Println("account:       not connected")
	}
	return nil
}

func runConnect(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.online(); err != nil {
		return err
	}

	if err := a.engine.Connect(cmd.Context()); err != nil {
		return err
	}

	if profile, err := a.provider.Profile(cmd.Context()); err == nil {
		fmt.Printf("connected as %s\n", profile.Email)
	} else {
		fmt.Println("connected")
	}
	return nil
}

func runSignout(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.online(); err != nil {
		return err
	}
	if err := a.engine.Disconnect(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("signed out; local progress kept")
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.online(); err != nil {
		return err
	}

	token, err := a.provider.Token(cmd.Context(), false)
	if err != nil {
		return err
	}
	if token == "" {
		return fmt.Errorf("not connected: run 'bible365 connect' first")
	}

	a.engine.Pull(cmd.Context())
	if err := a.engine.Push(cmd.Context()); err != nil {
		return fmt.Errorf("failed to push: %w", err)
	}

	fmt.Printf("synced %s\n", syncedAgo(a.tracker.Snapshot().LastSynced))
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.online(); err != nil {
		return err
	}
	if err := a.engine.Resume(cmd.Context()); err != nil {
		return err
	}

	// Other bible365 processes write the same database; watch it so their
	// edits are pushed too.
	watcher, err := sync.NewWatcher(a.store.Path(), func() {
		if err := a.tracker.Reload(); err != nil {
			logger.Warn("failed to reload progress: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to watch progress database: %w", err)
	}

	fmt.Println("watching for changes; press Ctrl+C to stop")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	fmt.Println("stopping...")
	watcher.Stop()

	// Flush anything still pending before the engine goes down.
	if err := a.engine.Push(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: final push failed: %v\n", err)
	}
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if !skipConfirm {
		ok, err := confirm("Clear all local progress and the start date?")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("cancelled")
			return nil
		}
	}

	if err := a.tracker.Reset(); err != nil {
		return err
	}
	fmt.Println("progress cleared")

	a.pushNow(cmd.Context())
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if !skipConfirm {
		ok, err := confirm("Delete progress on this device and in the cloud, and sign out?")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("cancelled")
			return nil
		}
	}

	if a.cfg.CloudEnabled() {
		if err := a.online(); err != nil {
			return err
		}
		if err := a.engine.DeleteEverything(cmd.Context()); err != nil {
			return err
		}
	} else {
		if err := a.tracker.Reset(); err != nil {
			return err
		}
	}

	fmt.Println("all progress deleted")
	return nil
}
