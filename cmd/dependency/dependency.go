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

package dependency

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
	"github.com/mitchellh/mapstructure"
	"github.com/phayes/freeport"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.7.0"
	"gopkg.in/yaml.v3"

	"d7y.io/xray/cmd/dependency/base"
	logger "d7y.io/xray/internal/dflog"
	"d7y.io/xray/pkg/dfpath"
	"d7y.io/xray/pkg/types"
)

// InitCommandAndConfig initializes flags binding and common sub cmds.
// config is a pointer to configuration struct.
func InitCommandAndConfig(cmd *cobra.Command, useConfigFile bool, config any) {
	rootName := cmd.Root().Name()
	cobra.OnInitialize(func() { initConfig(useConfigFile, rootName, config) })

	if !cmd.HasParent() {
		// Add common flags
		flags := cmd.PersistentFlags()
		flags.Bool("console", false, "whether logger output records to the stdout")
		flags.Bool("verbose", false, "whether logger use debug level")
		flags.Int("pprof-port", -1, "listen port for pprof and statsview, 0 represents random port")
		flags.String("jaeger", "", "jaeger endpoint url, like: http://localhost:14268/api/traces")
		flags.String("service-name", fmt.Sprintf("xray-%s", rootName), "name of the service for tracer")

		// Bind common flags
		if err := viper.BindPFlags(flags); err != nil {
			panic(fmt.Errorf("bind flags to viper: %w", err))
		}

		if err := viper.BindPFlag("telemetry.jaeger", flags.Lookup("jaeger")); err != nil {
			panic(fmt.Errorf("bind flag jaeger to viper: %w", err))
		}

		if err := viper.BindPFlag("telemetry.service-name", flags.Lookup("service-name")); err != nil {
			panic(fmt.Errorf("bind flag service-name to viper: %w", err))
		}

		// Config for binding env
		viper.SetEnvPrefix(rootName)
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		viper.AutomaticEnv()

		// Add config flag
		if useConfigFile {
			flags.String("config", "", fmt.Sprintf("the path of configuration file with yaml extension name, default is %s, it can also be set by env var: %s", filepath.Join(dfpath.DefaultConfigDir, rootName+".yaml"), strings.ToUpper(rootName+"_config")))
			if err := viper.BindPFlag("config", flags.Lookup("config")); err != nil {
				panic(fmt.Errorf("bind flag config to viper: %w", err))
			}
		}

		// Add common cmds only on root cmd
		cmd.AddCommand(VersionCmd)
	}
}

// InitMonitor initializes the pprof, statsview and jaeger tracer.
// The returned function stops them.
func InitMonitor(pprofPort int, otelOption base.TelemetryOption) func() {
	var fc = make(chan func(), 5)

	if pprofPort >= 0 {
		// Enable go pprof and statsview
		go func() {
			if pprofPort == 0 {
				pprofPort, _ = freeport.GetFreePort()
			}

			debugAddr := fmt.Sprintf("%s:%d", "localhost", pprofPort)
			viewer.SetConfiguration(viewer.WithAddr(debugAddr))

			logger.With("pprof", fmt.Sprintf("http://%s/debug/pprof", debugAddr),
				"statsview", fmt.Sprintf("http://%s/debug/statsview", debugAddr)).
				Infof("enable pprof at %s", debugAddr)

			vm := statsview.New()
			fc <- func() { vm.Stop() }
			if err := vm.Start(); err != nil && err != http.ErrServerClosed {
				logger.Warnf("serve pprof error: %v", err)
			}
		}()
	}

	if otelOption.Jaeger != "" {
		ff, err := initJaegerTracer(otelOption)
		if err != nil {
			logger.Warnf("init jaeger tracer error: %v", err)
		} else {
			fc <- ff
		}
	}

	return func() {
		logger.Infof("do %d monitor finalizer", len(fc))
		for {
			select {
			case f := <-fc:
				f()
			default:
				return
			}
		}
	}
}

// SetupQuitSignalHandler calls handler once on SIGINT, SIGTERM or SIGQUIT.
func SetupQuitSignalHandler(handler func()) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		var done bool
		for {
			sig := <-signals
			logger.Warnf("receive %s signal", sig)
			if !done {
				done = true
				handler()
				logger.Infof("handle %s signal done", sig)
			}
		}
	}()
}

func initConfig(useConfigFile bool, name string, config any) {
	// Use config file and read once.
	if useConfigFile {
		cfgFile := viper.GetString("config")
		if cfgFile != "" {
			// Use config file from the flag.
			viper.SetConfigFile(cfgFile)
		} else {
			viper.AddConfigPath(dfpath.DefaultConfigDir)
			viper.SetConfigName(name)
			viper.SetConfigType("yaml")
		}

		// If a config file is found, read it in.
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
				panic(fmt.Errorf("read config file %s: %w", viper.ConfigFileUsed(), err))
			}
			logger.Warnf("configuration file %s.yaml is not found in %s", name, dfpath.DefaultConfigDir)
		}
	}

	if err := viper.Unmarshal(config, initDecoderConfig); err != nil {
		panic(fmt.Errorf("unmarshal config to struct: %w", err))
	}
}

func initDecoderConfig(dc *mapstructure.DecoderConfig) {
	dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		decodeWithYAML(
			reflect.TypeOf(types.ValidationLossModeRenormalized),
		),
	)
}

// decodeWithYAML returns a mapstructure.DecodeHookFunc to decode the given
// types by unmarshalling from yaml text.
func decodeWithYAML(types ...reflect.Type) mapstructure.DecodeHookFunc {
	return func(f, t reflect.Type, data any) (any, error) {
		for _, typ := range types {
			if t == typ {
				b, _ := yaml.Marshal(data)
				v := reflect.New(t)
				if err := yaml.Unmarshal(b, v.Interface()); err != nil {
					return nil, err
				}
				return v.Elem().Interface(), nil
			}
		}
		return data, nil
	}
}

// initJaegerTracer creates a new trace provider instance and registers it as global trace provider.
func initJaegerTracer(otelOption base.TelemetryOption) (func(), error) {
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(otelOption.Jaeger)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		// Always be sure to batch in production.
		sdktrace.WithBatcher(exp),
		// Record information about this application in an Resource.
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(otelOption.ServiceName),
		)),
	)

	// Register our TracerProvider as the global so any imported
	// instrumentation in the future will default to using it.
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := tp.Shutdown(ctx); err != nil {
			logger.Errorf("shutdown jaeger tracer error: %v", err)
		}
	}, nil
}
