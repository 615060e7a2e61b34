// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"net/url"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger *zap.Logger

func init() {
	// setup default logger
	var err error
	logger, err = zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	// Windows file sink support: https://github.com/uber-go/zap/issues/621
	if runtime.GOOS == "windows" {
		if err := zap.RegisterSink("windows", func(u *url.URL) (zap.Sink, error) {
			// Remove leading slash left by url.Parse()
			return os.OpenFile(u.Path[1:], os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
		}); err != nil {
			logger.Fatal("failed to register Windows file sink", zap.Error(err))
		}
	}
}

// Logger get current logger
func Logger() *zap.Logger {
	return logger
}

// SetDevelopmentLogger sets the logger in development mode. Log files are
// created if they don't exist, missing directories included.
func SetDevelopmentLogger(outputPaths ...string) {
	setLogger(zap.NewDevelopmentConfig(), outputPaths)
}

// SetProductionLogger sets the logger in production mode. Log files are
// created if they don't exist, missing directories included.
func SetProductionLogger(outputPaths ...string) {
	setLogger(zap.NewProductionConfig(), outputPaths)
}

func setLogger(cfg zap.Config, outputPaths []string) {
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.999999")
	for _, outputPath := range outputPaths {
		if outputPath != "stdout" && outputPath != "stderr" {
			if err := os.MkdirAll(filepath.Dir(outputPath), os.ModePerm); err != nil {
				panic(err)
			}
			if runtime.GOOS == "windows" {
				outputPath = "windows:///" + outputPath
			}
		}
		cfg.OutputPaths = append(cfg.OutputPaths, outputPath)
	}
	var err error
	logger, err = cfg.Build()
	if err != nil {
		panic(err)
	}
}

// RotateConfig describes a size-rotated log file.
type RotateConfig struct {
	Path       string
	MaxSize    int // megabytes
	MaxAge     int // days
	MaxBackups int
}

// SetRotatingLogger routes logs to stdout and a size-rotated file. Long
// running fits produce a lot of epoch telemetry, rotation keeps it bounded.
func SetRotatingLogger(debug bool, rotate RotateConfig) {
	var (
		encoder zapcore.Encoder
		level   zapcore.LevelEnabler
	)
	timeEncoder := zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.999999")
	if debug {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = timeEncoder
		encoder = zapcore.NewConsoleEncoder(cfg)
		level = zap.DebugLevel
	} else {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = timeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
		level = zap.InfoLevel
	}
	writers := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if rotate.Path != "" {
		writers = append(writers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   rotate.Path,
			MaxSize:    rotate.MaxSize,
			MaxBackups: rotate.MaxBackups,
			MaxAge:     rotate.MaxAge,
			Compress:   false,
		}))
	}
	core := zapcore.NewCore(encoder, zap.CombineWriteSyncers(writers...), level)
	logger = zap.New(core)
}

// CloseLogger silences the logger except fatal failures.
func CloseLogger() {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.FatalLevel)
	var err error
	logger, err = cfg.Build()
	if err != nil {
		panic(err)
	}
}
