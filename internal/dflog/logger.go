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


package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sys/unix"
)

var (
	// CoreLogger logs the lifecycle of the trainer.
	CoreLogger *zap.SugaredLogger

	// TrainLogger logs one structured entry per evaluation.
	TrainLogger *zap.SugaredLogger

	// withLogger is CoreLogger without the wrapper frame, for contextual loggers.
	withLogger *zap.SugaredLogger

	levels []zap.AtomicLevel
)

func init() {
	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	log, err := config.Build(zap.AddCaller(), zap.AddStacktrace(zap.WarnLevel), zap.AddCallerSkip(1))
	if err == nil {
		SetCoreLogger(log.Sugar())
		SetTrainLogger(log.Sugar())
	}
	levels = append(levels, config.Level)
}

// SetLevel changes the level of every logger.
func SetLevel(level zapcore.Level) {
	Infof("change log level to %s", level.String())
	for _, l := range levels {
		l.SetLevel(level)
	}
}

func SetCoreLogger(log *zap.SugaredLogger) {
	CoreLogger = log
	withLogger = log.WithOptions(zap.AddCallerSkip(-1))
}

func SetTrainLogger(log *zap.SugaredLogger) {
	TrainLogger = log.WithOptions(zap.AddCallerSkip(-1))
}

// With returns a core logger carrying the key value pairs.
func With(args ...any) *zap.SugaredLogger {
	return withLogger.With(args...)
}

func WithRun(runID string) *zap.SugaredLogger {
	return With("runID", runID)
}

func WithRunAndEpoch(runID string, epoch int) *zap.SugaredLogger {
	return With("runID", runID, "epoch", epoch)
}

func WithInstitution(name, root string) *zap.SugaredLogger {
	return With("institution", name, "root", root)
}

func IsDebug() bool {
	return CoreLogger.Desugar().Core().Enabled(zap.DebugLevel)
}

func Infof(template string, args ...any) {
	CoreLogger.Infof(template, args...)
}

func Info(args ...any) {
	CoreLogger.Info(args...)
}

func Warnf(template string, args ...any) {
	CoreLogger.Warnf(template, args...)
}

func Errorf(template string, args ...any) {
	CoreLogger.Errorf(template, args...)
}

func Error(args ...any) {
	CoreLogger.Error(args...)
}

func Fatalf(template string, args ...any) {
	CoreLogger.Fatalf(template, args...)
}

// RedirectStdoutAndStderr points the process stdout and stderr at
// stdout.log and stderr.log under logDir. Console mode keeps them.
func RedirectStdoutAndStderr(console bool, logDir string) {
	if console {
		return
	}

	for name, std := range map[string]*os.File{"stdout": os.Stdout, "stderr": os.Stderr} {
		filename := filepath.Join(logDir, name+".log")
		f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_APPEND|os.O_SYNC, 0644)
		if err != nil {
			Warnf("open %s error: %s", filename, err)
			continue
		}

		if err := unix.Dup2(int(f.Fd()), int(std.Fd())); err != nil {
			Warnf("redirect %s error: %s", name, err)
			continue
		}
		fmt.Fprintf(std, "%s redirect at %v\n", name, time.Now())
	}
}
