package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/contiv/fabnet/pkg/fabnet"
	"github.com/contiv/fabnet/pkg/fabsim"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Command line flags
var (
	cfgFile  string
	kFlag    int
	strategy string
	apiAddr  string
	simMode  bool
	debug    bool
)

var rootCmd = &cobra.Command{
	Use:   "fabnetd",
	Short: "Fat-tree fabric controller daemon",
	Long: `fabnetd runs the control plane for a k-ary fat-tree data center fabric.
It computes routes for every switch in the fabric and installs them via
the OpenFlow-style controller, serving topology and flow state over REST.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "config file (yaml)")
	rootCmd.Flags().IntVarP(&kFlag, "k", "k", 4, "fat-tree arity (even, >= 2)")
	rootCmd.Flags().StringVarP(&strategy, "strategy", "s", fabnet.StrategyFatTree,
		"routing strategy: ft (two-level static) or sp (shortest path)")
	rootCmd.Flags().StringVar(&apiAddr, "api-addr", "", "REST api listen address")
	rootCmd.Flags().BoolVar(&simMode, "sim", false, "run against an emulated fabric")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// Build the agent config from flags and optional config file. Flags that
// were set explicitly win over file values.
func buildConfig(cmd *cobra.Command) (fabnet.Config, error) {
	cfg := fabnet.DefaultConfig(kFlag)

	if cfgFile != "" {
		data, err := os.ReadFile(cfgFile)
		if err != nil {
			return cfg, fmt.Errorf("reading config %s: %v", cfgFile, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %v", cfgFile, err)
		}
	}

	if cmd.Flags().Changed("k") {
		cfg.K = kFlag
	}
	if cmd.Flags().Changed("strategy") {
		cfg.Strategy = strategy
	}
	if apiAddr != "" {
		cfg.ApiAddr = apiAddr
	}

	return cfg, nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if debug {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	// Create the fabric agent
	agent, err := fabnet.NewFabnetAgent(cfg)
	if err != nil {
		return fmt.Errorf("creating agent: %v", err)
	}

	log.Infof("fabnetd starting: k=%d, strategy=%s, api=%s",
		cfg.K, cfg.Strategy, cfg.ApiAddr)

	// Start the REST api server
	apiServer := fabnet.NewApiServer(agent, cfg.ApiAddr)
	go func() {
		if err := apiServer.Serve(); err != nil {
			log.Fatalf("api server: %v", err)
		}
	}()

	// In sim mode, bring up an emulated fabric and attach every switch
	// to the controller
	if simMode {
		fabric := fabsim.NewSimFabric(agent.Topology())
		fabric.Start(agent.Controller())
		log.Infof("emulated fabric up: %d switches, %d hosts",
			len(agent.Topology().Switches), fabric.NumHosts())
	}

	// Wait for a termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	log.Infof("received %v, shutting down", sig)
	agent.Stop()

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}
