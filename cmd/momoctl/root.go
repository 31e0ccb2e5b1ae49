package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/thesyncim/momo-e2e/pkg/momo"
)

type globalFlags struct {
	profile    string
	executable string
	logLevel   string
	portBase   int
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "momoctl",
		Short:         "Drive the Momo media client from a YAML profile",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.profile, "profile", "p", "", "YAML profile (mode plus options)")
	root.PersistentFlags().StringVar(&g.executable, "executable", "", "client executable (default: $"+momo.ExecutableEnv+" or _build discovery)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "debug, info, warn or error")
	root.PersistentFlags().IntVar(&g.portBase, "port-base", 0, "allocate unset ports from this base")

	root.AddCommand(
		newArgsCmd(g),
		newValidateCmd(g),
		newRunCmd(g),
		newSoakCmd(g),
	)
	return root
}

// config loads and validates the profile.
func (g *globalFlags) config() (momo.Config, error) {
	if g.profile == "" {
		return nil, fmt.Errorf("--profile is required")
	}
	p, err := momo.LoadProfile(g.profile)
	if err != nil {
		return nil, err
	}
	return p.Config()
}

func (g *globalFlags) logger() (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(g.logLevel)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func (g *globalFlags) options(log *zap.Logger) []momo.Option {
	opts := []momo.Option{momo.WithLogger(log)}
	if g.executable != "" {
		opts = append(opts, momo.WithExecutable(g.executable))
	}
	if g.portBase > 0 {
		opts = append(opts, momo.WithPortAllocator(momo.NewPortAllocator(g.portBase)))
	}
	return opts
}

func newArgsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "args",
		Short: "Print the client command line for a profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.config()
			if err != nil {
				return err
			}
			exe := g.executable
			if exe == "" {
				exe = "momo"
			}
			fmt.Fprintln(cmd.OutOrStdout(), momo.QuoteArgs(append([]string{exe}, momo.BuildArgs(cfg)...)))
			return nil
		},
	}
}

func newValidateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that every option in a profile belongs to its mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.config()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%s mode)\n", g.profile, cfg.Mode().DisplayName())
			return nil
		},
	}
}

// parseConditions turns "type=codec,mimeType=video/H264" into a wait
// condition. Values that parse as numbers or booleans are typed.
func parseConditions(exprs []string) ([]momo.WaitCondition, error) {
	conds := make([]momo.WaitCondition, 0, len(exprs))
	for _, expr := range exprs {
		cond := momo.WaitCondition{}
		for _, pair := range strings.Split(expr, ",") {
			k, v, ok := strings.Cut(pair, "=")
			if !ok || k == "" {
				return nil, fmt.Errorf("stats condition %q: want key=value pairs", expr)
			}
			cond[k] = typedValue(v)
		}
		if _, ok := cond["type"]; !ok {
			return nil, fmt.Errorf("stats condition %q has no type", expr)
		}
		conds = append(conds, cond)
	}
	return conds, nil
}

func typedValue(s string) any {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
