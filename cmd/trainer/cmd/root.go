/*
 *     Copyright 2023 The Dragonfly Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cmd

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"d7y.io/xray/cmd/dependency"
	logger "d7y.io/xray/internal/dflog"
	"d7y.io/xray/pkg/dfpath"
	"d7y.io/xray/pkg/types"
	"d7y.io/xray/trainer"
	"d7y.io/xray/trainer/config"
	"d7y.io/xray/version"
)

// cfg is filled by viper before the command runs.
var cfg = config.New()

var rootCmd = &cobra.Command{
	Use:   "trainer",
	Short: "the chest x-ray classifier trainer",
	Long: `Trainer discovers institution datasets as directories or zip archives, rebuilds a held-out test split
of every institution, fine-tunes the classifier head on class balanced batches and writes the checkpoint.`,
	Args:              cobra.NoArgs,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := setup(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		return runTrainer(ctx, d)
	},
}

// trainerFlags are the shortcuts bound over their config keys.
var trainerFlags = []struct {
	key, name, usage string
}{
	{"dataset.dir", "datasets-dir", "datasets root holding institution directories or zip archives"},
	{"training.checkpointPath", "checkpoint", "path the trained checkpoint is written to"},
	{"training.epochs", "epochs", "number of training epochs"},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func init() {
	dependency.InitCommandAndConfig(rootCmd, true, cfg)

	flags := rootCmd.Flags()
	flags.String(trainerFlags[0].name, cfg.Dataset.Dir, trainerFlags[0].usage)
	flags.String(trainerFlags[1].name, cfg.Training.CheckpointPath, trainerFlags[1].usage)
	flags.Int(trainerFlags[2].name, cfg.Training.Epochs, trainerFlags[2].usage)
	for _, f := range trainerFlags {
		if err := viper.BindPFlag(f.key, flags.Lookup(f.name)); err != nil {
			panic(fmt.Errorf("bind flag %s to viper: %w", f.name, err))
		}
	}
}

// setup checks the config, resolves the working directories and starts logging into them.
func setup(cfg *config.Config) (dfpath.Dfpath, error) {
	if err := cfg.Convert(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d, err := dfpath.New(dfpathOptions(&cfg.Server)...)
	if err != nil {
		return nil, err
	}

	if err := logger.InitTrainer(cfg.Verbose, cfg.Console, d.LogDir(), logger.LogRotateConfig{
		MaxSize:    cfg.Server.LogMaxSize,
		MaxAge:     cfg.Server.LogMaxAge,
		MaxBackups: cfg.Server.LogMaxBackups,
	}); err != nil {
		return nil, fmt.Errorf("init trainer logger: %w", err)
	}

	logger.RedirectStdoutAndStderr(cfg.Console, path.Join(d.LogDir(), types.TrainerName))
	return d, nil
}

// dfpathOptions overrides only the directories set in the config.
func dfpathOptions(cfg *config.ServerConfig) []dfpath.Option {
	var options []dfpath.Option
	for _, o := range []struct {
		dir    string
		option func(string) dfpath.Option
	}{
		{cfg.WorkHome, dfpath.WithWorkHome},
		{cfg.LogDir, dfpath.WithLogDir},
		{cfg.DataDir, dfpath.WithDataDir},
	} {
		if o.dir != "" {
			options = append(options, o.option(o.dir))
		}
	}

	return options
}

func runTrainer(ctx context.Context, d dfpath.Dfpath) error {
	logger.Infof("version:\n%s", version.Version())

	shutdown := dependency.InitMonitor(cfg.PProfPort, cfg.Telemetry)
	defer shutdown()

	svr, err := trainer.New(ctx, cfg, d)
	if err != nil {
		return err
	}
	defer svr.Stop()

	dependency.SetupQuitSignalHandler(svr.Stop)
	return svr.Serve()
}
