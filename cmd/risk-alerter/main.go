package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"risk-alerter/alerter"
)

type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }
func (m *multiFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	var configPath string
	var train bool
	var strategy string
	var notifyTier string
	var channelsCSV string
	var storePath string
	var artifactDir string
	var errorDir string
	var debug bool
	var dotenvPath string
	var roster, scores, attendance, mentors, parents, fees, alerts multiFlag

	flag.StringVar(&configPath, "config", "", "YAML config file path.")
	flag.BoolVar(&train, "train", false, "Train the classifiers and write artifacts instead of dispatching.")
	flag.StringVar(&strategy, "strategy", "rules", "Risk evaluator: rules, logistic or tree.")
	flag.StringVar(&notifyTier, "notify-tier", "Medium", "Minimum tier notified under classifier strategies.")
	flag.StringVar(&channelsCSV, "channels", "", "Comma-separated channel fallback chain (email,twilio,whatsapp,stub). Overrides config.")
	flag.StringVar(&storePath, "store", "", "SQLite archive for outcomes and snapshot digests.")
	flag.StringVar(&artifactDir, "artifacts", "artifacts", "Directory for scaler/codebook/model artifacts.")
	flag.StringVar(&errorDir, "error-dir", "", "Directory receiving unreadable input tables.")
	flag.BoolVar(&debug, "debug", false, "Enable debug logs.")
	flag.StringVar(&dotenvPath, "dotenv", ".env", "Env file with delivery credentials (ignored when missing).")
	flag.Var(&roster, "roster", "Roster CSV path. Can be repeated (one per institute).")
	flag.Var(&scores, "scores", "Weekly scores CSV path. Can be repeated.")
	flag.Var(&attendance, "attendance", "Attendance wide-format CSV path. Can be repeated.")
	flag.Var(&mentors, "mentors", "Mentor contact CSV path. Can be repeated.")
	flag.Var(&parents, "parents", "Parent contact CSV path. Can be repeated.")
	flag.Var(&fees, "fees", "Fee CSV path. Can be repeated.")
	flag.Var(&alerts, "alerts", "Prepared alerts CSV path. Can be repeated; omit to compose alerts from risk records.")
	flag.Parse()

	visited := map[string]bool{}
	flag.CommandLine.Visit(func(f *flag.Flag) {
		visited[f.Name] = true
	})

	// Credentials may live in a .env next to the binary; absence is fine.
	if err := godotenv.Load(dotenvPath); err != nil && visited["dotenv"] {
		log.Fatalf("load dotenv: %v", err)
	}

	// Base config from file (optional)
	fileCfg := &alerter.FileConfig{}
	if configPath != "" {
		cfg, err := alerter.LoadConfig(configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		fileCfg = cfg
	}

	// Merge config + CLI overrides
	finalStore := fileCfg.Store
	if visited["store"] {
		finalStore = storePath
	}
	finalArtifacts := fileCfg.Artifacts
	if finalArtifacts == "" {
		finalArtifacts = "artifacts"
	}
	if visited["artifacts"] {
		finalArtifacts = artifactDir
	}
	finalErrorDir := fileCfg.ErrorDir
	if visited["error-dir"] {
		finalErrorDir = errorDir
	}
	finalDebug := fileCfg.Debug
	if visited["debug"] {
		finalDebug = debug
	}
	finalStrategy := fileCfg.Strategy
	if finalStrategy == "" {
		finalStrategy = alerter.StrategyRules
	}
	if visited["strategy"] {
		finalStrategy = strategy
	}
	finalNotifyTier := fileCfg.NotifyTier
	if finalNotifyTier == "" {
		finalNotifyTier = "Medium"
	}
	if visited["notify-tier"] {
		finalNotifyTier = notifyTier
	}

	finalChannels := fileCfg.Channels
	if strings.TrimSpace(channelsCSV) != "" {
		parts := strings.Split(channelsCSV, ",")
		finalChannels = finalChannels[:0]
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				finalChannels = append(finalChannels, p)
			}
		}
	}

	inputs := fileCfg.Inputs
	if visited["roster"] {
		inputs.Roster = roster
	}
	if visited["scores"] {
		inputs.Scores = scores
	}
	if visited["attendance"] {
		inputs.Attendance = attendance
	}
	if visited["mentors"] {
		inputs.Mentors = mentors
	}
	if visited["parents"] {
		inputs.Parents = parents
	}
	if visited["fees"] {
		inputs.Fees = fees
	}
	if visited["alerts"] {
		inputs.Alerts = alerts
	}

	if len(inputs.Roster) == 0 {
		fmt.Fprintln(os.Stderr, "missing roster input (use --roster or config inputs.roster)")
		os.Exit(2)
	}

	runner, err := alerter.NewRunner(alerter.RunnerConfig{
		StorePath:   finalStore,
		ArtifactDir: finalArtifacts,
		ErrorDir:    finalErrorDir,
		Debug:       finalDebug,
		Strategy:    finalStrategy,
		NotifyTier:  finalNotifyTier,
		Thresholds:  fileCfg.Thresholds.Resolve(),
		Channels:    finalChannels,
		Creds:       fileCfg.Credentials.Resolve(),
		Inputs:      inputs,
	})
	if err != nil {
		log.Fatalf("init runner: %v", err)
	}
	defer runner.Close()

	if train {
		if _, err := runner.Train(); err != nil {
			log.Fatalf("train: %v", err)
		}
		return
	}

	// Per-recipient delivery failures are reported in the run summary and
	// never reach this error path; a non-zero exit means a structural
	// load/evaluate problem.
	if err := runner.RunOnce(); err != nil {
		log.Fatalf("run: %v", err)
	}
}
