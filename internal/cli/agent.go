package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/slideremote/relay/pkg/agentclient"
)

var (
	agentURL    string
	agentID     string
	agentSecret string
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the desktop agent client",
	Long: `Connect to the relay hub as a desktop agent. The hub assigns a session
code which is printed to the console; enter it on the controller to pair.
Forwarded commands are logged; hook up key injection where this binary runs.`,
	RunE: runAgent,
}

func init() {
	agentCmd.Flags().StringVar(&agentURL, "url", "", "hub agent endpoint (overrides config)")
	agentCmd.Flags().StringVar(&agentID, "agent-id", "", "agent identity (default pc-<random>)")
	agentCmd.Flags().StringVar(&agentSecret, "secret", "", "shared secret (overrides config)")
	rootCmd.AddCommand(agentCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer log.Close()

	url := cfg.Agent.URL
	if agentURL != "" {
		url = agentURL
	}
	id := cfg.Agent.AgentID
	if agentID != "" {
		id = agentID
	}
	secret := cfg.Agent.Secret
	if agentSecret != "" {
		secret = agentSecret
	}

	zl := log.GetZerolog()
	client, err := agentclient.New(agentclient.Config{
		URL:               url,
		AgentID:           id,
		Secret:            secret,
		HeartbeatInterval: cfg.Agent.HeartbeatInterval(),
		Logger:            zl,
		Handler: func(command string) {
			zl.Info().Str("command", command).Msg("Slide command")
		},
		OnAssigned: func(sessionID string) {
			fmt.Println("========================================")
			fmt.Println("Agent registered.")
			fmt.Printf("Your code: %s\n", sessionID)
			fmt.Println("Enter this code on the controller.")
			fmt.Println("========================================")
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create agent client: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := client.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("agent stopped: %w", err)
	}
	return nil
}
