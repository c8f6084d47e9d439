/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.tunwire.dev/bridge/pkg/agent"
	"go.tunwire.dev/bridge/pkg/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Tunnel agent exposing a local service behind a Bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfgFile)
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "path to an agent config file (yaml/json/toml)")
	return cmd
}

func run(cfgFile string) error {
	var cfg config.AgentConfig

	v := viper.New()
	v.SetEnvPrefix("AGENT")
	v.AutomaticEnv()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	log, err := initLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("error initializing logger: %w", err)
	}

	if err := config.ValidateAgent(&cfg); err != nil {
		return fmt.Errorf("error validating config: %w", err)
	}

	printBanner(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer func() { signal.Stop(sig); close(sig) }()
	go func() {
		s, ok := <-sig
		if !ok {
			return
		}
		log.Infow("received signal, shutting down", "signal", s.String())
		cancel()
	}()

	a := agent.New(cfg, log, nil)
	return a.Run(ctx)
}

func printBanner(cfg config.AgentConfig) {
	color.Info.Println("=== tunwire agent ===")
	color.Comment.Printf("bridge: %s:%d\n", cfg.BridgeHost, cfg.BridgeControlPort)
	color.Comment.Printf("local service: %s:%d\n", cfg.LocalHost, cfg.LocalPort)
	if cfg.Subdomain != "" {
		color.Comment.Printf("subdomain: %s\n", cfg.Subdomain)
	}
}
