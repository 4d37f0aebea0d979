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
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"d7y.io/xray/pkg/types"
)

const (
	CoreLogFileName  = "core.log"
	TrainLogFileName = "train.log"
)

// LogRotateConfig holds the lumberjack rotation options.
type LogRotateConfig struct {
	// MaxSize is in megabytes.
	MaxSize int

	// MaxAge is in days.
	MaxAge int

	MaxBackups int
}

// InitTrainer installs the core and train loggers. Console mode shares one
// development logger, otherwise both write json into <dir>/trainer.
func InitTrainer(verbose, console bool, dir string, rotateConfig LogRotateConfig) error {
	levels = nil
	if console {
		config := zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(levelOf(verbose))
		log, err := config.Build(zap.AddCaller(), zap.AddStacktrace(zap.WarnLevel), zap.AddCallerSkip(1))
		if err != nil {
			return err
		}

		SetCoreLogger(log.Sugar())
		SetTrainLogger(log.Sugar())
		levels = append(levels, config.Level)
		return nil
	}

	dir = filepath.Join(dir, types.TrainerName)
	core, coreLevel := newFileLogger(filepath.Join(dir, CoreLogFileName), verbose, rotateConfig,
		zap.AddCaller(), zap.AddStacktrace(zap.WarnLevel), zap.AddCallerSkip(1))
	train, trainLevel := newFileLogger(filepath.Join(dir, TrainLogFileName), verbose, rotateConfig)

	SetCoreLogger(core.Sugar())
	SetTrainLogger(train.Sugar())
	levels = append(levels, coreLevel, trainLevel)
	return nil
}

// newFileLogger writes json lines to a file rotated by lumberjack, which
// creates the directory on first write.
func newFileLogger(filename string, verbose bool, rotateConfig LogRotateConfig, opts ...zap.Option) (*zap.Logger, zap.AtomicLevel) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")

	level := zap.NewAtomicLevelAt(levelOf(verbose))
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(&lumberjack.Logger{
		Filename:   filename,
		MaxSize:    rotateConfig.MaxSize,
		MaxAge:     rotateConfig.MaxAge,
		MaxBackups: rotateConfig.MaxBackups,
		LocalTime:  true,
	}), level)

	return zap.New(core, opts...), level
}

func levelOf(verbose bool) zapcore.Level {
	if verbose {
		return zapcore.DebugLevel
	}

	return zapcore.InfoLevel
}
