package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wayneeseguin/fanlog/pkg/config"
	"github.com/wayneeseguin/fanlog/pkg/fanlog"
)

var emitCmd = &cobra.Command{
	Use:   "emit [message...]",
	Short: "Log the arguments, or each line of stdin, through the configured sinks",
	Example: `  fanlog emit -c /etc/fanlog.yaml -l WARNING "disk usage above 90%"
  tail -F /var/log/app.out | fanlog emit -c fanlog.toml -n app -f host=$(hostname)`,
	RunE: runEmit,
}

func init() {
	emitCmd.Flags().StringP("level", "l", fanlog.LevelInfo.Name, "Level of the emitted records")
	emitCmd.Flags().StringP("name", "n", "", "Logger name of the emitted records")
	emitCmd.Flags().StringArrayP("field", "f", nil, "Extra field (key=value, can be repeated)")
	emitCmd.Flags().StringArrayP("target", "t", nil, "Additional target (path or URI, can be repeated)")
	emitCmd.Flags().Bool("redact", false, "Scrub secrets from messages and fields")
	emitCmd.Flags().Duration("grace", 5*time.Second, "How long queued sinks may drain on exit or interrupt")

	viper.BindPFlag("emit.level", emitCmd.Flags().Lookup("level"))
	viper.BindPFlag("emit.name", emitCmd.Flags().Lookup("name"))
	viper.BindPFlag("emit.redact", emitCmd.Flags().Lookup("redact"))
	viper.BindPFlag("emit.grace", emitCmd.Flags().Lookup("grace"))

	rootCmd.AddCommand(emitCmd)
}

func runEmit(cmd *cobra.Command, args []string) error {
	f, err := loadConfig()
	if err != nil {
		return err
	}
	targets, _ := cmd.Flags().GetStringArray("target")
	for _, t := range targets {
		f.Sinks = append(f.Sinks, config.SinkConfig{Target: t})
	}
	if viper.GetBool("emit.redact") && f.Redaction == nil {
		f.Redaction = &config.RedactionConfig{}
	}
	fields, err := parseFields(cmd)
	if err != nil {
		return err
	}

	d, err := f.Build()
	if err != nil {
		return err
	}
	stderr := cmd.ErrOrStderr()
	d.SetErrorHandler(func(e fanlog.LogError) {
		fmt.Fprintf(stderr, "fanlog: %v\n", &e)
	})

	grace := viper.GetDuration("emit.grace")
	prev := fanlog.SetDefault(d)
	stop := fanlog.ShutdownOnSignal(grace)
	defer func() {
		stop()
		fanlog.SetDefault(prev)
	}()

	levelName := viper.GetString("emit.level")
	level, ok := d.Level(levelName)
	if !ok {
		_ = d.Shutdown(context.Background())
		return errors.Wrapf(fanlog.ErrConfig, "unknown level %q", levelName)
	}

	log, err := f.Logger(d)
	if err != nil {
		_ = d.Shutdown(context.Background())
		return err
	}
	log = log.Bind(fields)
	if name := viper.GetString("emit.name"); name != "" {
		log = log.Named(name)
	}

	if len(args) > 0 {
		log.Log(level.Name, "%s", strings.Join(args, " "))
	} else {
		scanner := bufio.NewScanner(cmd.InOrStdin())
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				log.Log(level.Name, "%s", line)
			}
		}
		if err := scanner.Err(); err != nil {
			_ = d.Shutdown(context.Background())
			return errors.Wrap(err, "reading stdin")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return d.Shutdown(ctx)
}

func parseFields(cmd *cobra.Command) (fanlog.Fields, error) {
	raw, _ := cmd.Flags().GetStringArray("field")
	fields := make(fanlog.Fields, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, errors.Errorf("invalid field %q, expected key=value", kv)
		}
		fields[k] = v
	}
	return fields, nil
}
