// Command voxatlas processes a recorded conversation: it produces a
// speaker-labelled transcript and resolves each detected voice against the
// persisted population of speaker profiles.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/tbruckner/voxatlas/internal/config"
	"github.com/tbruckner/voxatlas/internal/feature"
	"github.com/tbruckner/voxatlas/internal/match"
	"github.com/tbruckner/voxatlas/internal/observe"
	"github.com/tbruckner/voxatlas/internal/pipeline"
	"github.com/tbruckner/voxatlas/internal/profile"
	profilemock "github.com/tbruckner/voxatlas/internal/profile/mock"
	profilepg "github.com/tbruckner/voxatlas/internal/profile/postgres"
	"github.com/tbruckner/voxatlas/internal/report"
	"github.com/tbruckner/voxatlas/pkg/audio"
	"github.com/tbruckner/voxatlas/pkg/provider/asr"
	asrwhisper "github.com/tbruckner/voxatlas/pkg/provider/asr/whisper"
	"github.com/tbruckner/voxatlas/pkg/provider/diarize"
	diarizeenergy "github.com/tbruckner/voxatlas/pkg/provider/diarize/energy"
	psycholexicon "github.com/tbruckner/voxatlas/pkg/provider/psycho/lexicon"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	inputPath := flag.String("input", "", "path to the WAV recording to process")
	sessionID := flag.String("session", "", "session identifier (default: random)")
	listProfiles := flag.Bool("list", false, "list persisted speaker profiles and exit")
	autoConfirm := flag.Bool("yes", false, "accept auto-matches and create profiles for no-matches without prompting")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = config.Default()
		} else {
			fmt.Fprintf(os.Stderr, "voxatlas: %v\n", err)
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "voxatlas"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer shutdown(context.Background())

	// ── Profile store ─────────────────────────────────────────────────────────
	var store profile.Store
	if cfg.Store.PostgresDSN != "" {
		pg, err := profilepg.NewStore(ctx, cfg.Store.PostgresDSN, cfg.Store.EmbeddingDimensions)
		if err != nil {
			slog.Error("failed to open profile store", "err", err)
			return 1
		}
		defer pg.Close()
		store = pg
	} else {
		slog.Warn("store.postgres_dsn is empty; profiles will not persist beyond this run")
		store = profilemock.NewStore()
	}

	if *listProfiles {
		return printProfiles(ctx, store)
	}
	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "voxatlas: -input is required (or use -list)")
		return 1
	}

	session := *sessionID
	if session == "" {
		session = uuid.NewString()
	}

	// ── Input ─────────────────────────────────────────────────────────────────
	src, err := audio.LoadWAV(*inputPath)
	if err != nil {
		slog.Error("failed to load recording", "path", *inputPath, "err", err)
		return 1
	}
	if src.SampleRate() != cfg.Audio.SampleRate {
		slog.Error("unexpected sample rate", "got", src.SampleRate(), "want", cfg.Audio.SampleRate)
		return 1
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	asrProvider, closeASR, err := buildASR(cfg)
	if err != nil {
		slog.Error("failed to build ASR provider", "err", err)
		return 1
	}
	defer closeASR()

	p := pipeline.New(
		asrProvider,
		buildDiarizer(cfg),
		feature.New(
			feature.WithEnergyFloor(cfg.Audio.EnergyFloor),
			feature.WithMinVoicedDuration(cfg.Audio.MinVoicedDuration),
		),
		match.New(
			match.WithThresholds(cfg.Match.TAuto, cfg.Match.TAmbiguous),
			match.WithTopK(cfg.Match.TopK),
			match.WithFeaturePenalty(cfg.Match.FeaturePenalty),
		),
		store,
		profile.NewMerger(store,
			profile.WithMaxWeight(cfg.Merge.MaxWeight),
			profile.WithMaxRetries(cfg.Merge.MaxRetries),
		),
		pipeline.WithScorer(psycholexicon.New()),
	)

	slog.Info("processing recording", "path", *inputPath, "session_id", session, "duration", src.Duration())
	runState, err := p.Process(ctx, src, session)
	if err != nil {
		slog.Error("pipeline failed", "err", err)
		return 1
	}

	// ── Confirmation ──────────────────────────────────────────────────────────
	confirmSpeakers(ctx, p, runState, *autoConfirm)

	// ── Outputs ───────────────────────────────────────────────────────────────
	if err := writeOutputs(cfg, *inputPath, runState); err != nil {
		slog.Error("failed to write outputs", "err", err)
		return 1
	}

	for _, label := range sortedStatusLabels(runState) {
		st := runState.Statuses[label]
		line := fmt.Sprintf("%s: %s", label, st.Status)
		if st.Reason != "" {
			line += ": " + st.Reason
		}
		if st.DisplayName != "" {
			line += " (" + st.DisplayName + ")"
		}
		fmt.Println(line)
	}
	return 0
}

// confirmSpeakers walks every pending decision and applies the confirming
// actor's answer: stdin prompts, or policy defaults with -yes.
func confirmSpeakers(ctx context.Context, p *pipeline.Pipeline, run *pipeline.Run, auto bool) {
	scanner := bufio.NewScanner(os.Stdin)
	// Pending shrinks as decisions resolve; iterate over a snapshot.
	pending := append([]pipeline.PendingDecision(nil), run.Pending...)

	for _, pd := range pending {
		var dec pipeline.Decision
		switch {
		case auto && pd.Match.Band == match.BandAutoMatch:
			dec = pipeline.Decision{Action: pipeline.ActionConfirm, ProfileID: pd.Match.Candidates[0].ProfileID}
		case auto && pd.Match.Band == match.BandNoMatch:
			dec = pipeline.Decision{Action: pipeline.ActionCreateNew, DisplayName: firstHint(pd.NameHints)}
		case auto:
			dec = pipeline.Decision{Action: pipeline.ActionDefer}
		default:
			dec = promptDecision(scanner, pd)
		}
		if _, err := p.Resolve(ctx, run, pd.Label, dec); err != nil {
			slog.Error("failed to resolve speaker", "label", pd.Label, "err", err)
		}
	}
}

func promptDecision(scanner *bufio.Scanner, pd pipeline.PendingDecision) pipeline.Decision {
	fmt.Printf("\nSpeaker %s: %s", pd.Label, pd.Match.Band)
	if len(pd.NameHints) > 0 {
		fmt.Printf(" (introduced as: %s)", strings.Join(pd.NameHints, ", "))
	}
	fmt.Println()
	for i, c := range pd.Match.Candidates {
		marker := ""
		if c.NameHintAgrees {
			marker = " *name agrees*"
		}
		fmt.Printf("  [%d] %s (similarity %.3f)%s\n", i+1, c.DisplayName, c.Similarity, marker)
	}
	fmt.Print("Choose candidate number, 'n <name>' for new profile, or 'd' to defer: ")

	if !scanner.Scan() {
		return pipeline.Decision{Action: pipeline.ActionDefer}
	}
	input := strings.TrimSpace(scanner.Text())
	switch {
	case input == "d" || input == "":
		return pipeline.Decision{Action: pipeline.ActionDefer}
	case strings.HasPrefix(input, "n"):
		name := strings.TrimSpace(strings.TrimPrefix(input, "n"))
		if name == "" {
			name = firstHint(pd.NameHints)
		}
		return pipeline.Decision{Action: pipeline.ActionCreateNew, DisplayName: name}
	default:
		idx, err := strconv.Atoi(input)
		if err != nil || idx < 1 || idx > len(pd.Match.Candidates) {
			fmt.Println("unrecognised answer, deferring")
			return pipeline.Decision{Action: pipeline.ActionDefer}
		}
		return pipeline.Decision{Action: pipeline.ActionConfirm, ProfileID: pd.Match.Candidates[idx-1].ProfileID}
	}
}

func buildASR(cfg *config.Config) (asr.Provider, func(), error) {
	switch cfg.ASR.Name {
	case "whisper":
		p, err := asrwhisper.New(cfg.ASR.ModelPath, asrwhisper.WithLanguage(cfg.ASR.Language))
		if err != nil {
			return nil, nil, err
		}
		return p, func() { p.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("asr provider %q is not usable outside tests", cfg.ASR.Name)
	}
}

func buildDiarizer(cfg *config.Config) diarize.Provider {
	return diarizeenergy.New(diarizeenergy.WithSilenceFloor(cfg.Diarize.SilenceFloor))
}

func writeOutputs(cfg *config.Config, inputPath string, run *pipeline.Run) error {
	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))

	if err := os.MkdirAll(cfg.Output.TranscriptDir, 0o755); err != nil {
		return err
	}
	tf, err := os.Create(filepath.Join(cfg.Output.TranscriptDir, stem+"_transcript.csv"))
	if err != nil {
		return err
	}
	defer tf.Close()
	if err := report.WriteTranscriptCSV(tf, run.Turns); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Output.ReportDir, 0o755); err != nil {
		return err
	}
	rf, err := os.Create(filepath.Join(cfg.Output.ReportDir, stem+"_speakers.json"))
	if err != nil {
		return err
	}
	defer rf.Close()
	return report.WriteSpeakerReportJSON(rf, run)
}

func printProfiles(ctx context.Context, store profile.Store) int {
	profiles, err := store.List(ctx)
	if err != nil {
		slog.Error("failed to list profiles", "err", err)
		return 1
	}
	for _, p := range profiles {
		fmt.Printf("%s  %-24s sessions=%d samples=%d last_updated=%s\n",
			p.ID, p.DisplayName, p.SessionStats.Sessions, p.SampleCount,
			p.LastUpdated.Format("2006-01-02 15:04:05"))
	}
	return 0
}

func firstHint(hints []string) string {
	if len(hints) > 0 {
		return hints[0]
	}
	return ""
}

func sortedStatusLabels(run *pipeline.Run) []string {
	labels := make([]string, 0, len(run.Statuses))
	for label := range run.Statuses {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// newLogger builds the process-wide slog logger at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var l slog.Level
	switch level {
	case config.LogDebug:
		l = slog.LevelDebug
	case config.LogWarn:
		l = slog.LevelWarn
	case config.LogError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
