package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pitline/pitline/internal/envfile"
	"github.com/pitline/pitline/internal/llm"
	"pkt.systems/pslog"
)

func newDoctorCmd() *cobra.Command {
	var cfgPath string
	var skipModel bool
	var modelPrompt string
	var venueTimeout time.Duration
	var modelTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run pitline diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())

			rt, err := buildRuntime(cmd.Context(), cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			logger.Info("doctor config ok", "state_dir", rt.cfg.StateDir, "venue", rt.cfg.Venue.Kind, "model", rt.cfg.Model.Name)

			if err := checkStateDir(rt.cfg.StateDir); err != nil {
				return err
			}
			logger.Info("doctor state dir ok", "path", rt.cfg.StateDir)

			checkEnvFile(logger, rt.cfg.EnvFile, rt.env, rt.cfg.Model.APIKeyEnv)

			if err := checkVenue(cmd.Context(), rt, venueTimeout); err != nil {
				return err
			}
			logger.Info("doctor venue ok", "venue", rt.venue.Name(), "label", rt.cfg.Venue.Label)

			if skipModel {
				logger.Info("doctor model check skipped")
			} else {
				if err := checkModel(cmd.Context(), rt.model, modelPrompt, modelTimeout); err != nil {
					return err
				}
				logger.Info("doctor model ok", "model", rt.cfg.Model.Name)
			}

			logger.Info("doctor complete")
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&skipModel, "skip-model", false, "skip the model round trip check")
	cmd.Flags().StringVar(&modelPrompt, "model-prompt", "Say 'ok' and nothing else.", "prompt used for the model check")
	cmd.Flags().DurationVar(&venueTimeout, "venue-timeout", 15*time.Second, "timeout for venue checks")
	cmd.Flags().DurationVar(&modelTimeout, "model-timeout", 60*time.Second, "timeout for the model check")
	return cmd
}

func checkStateDir(dir string) error {
	probe := filepath.Join(dir, fmt.Sprintf(".doctor-%d", time.Now().UnixNano()))
	if err := os.WriteFile(probe, []byte("ok\n"), 0o600); err != nil {
		return fmt.Errorf("state dir not writable: %w", err)
	}
	return os.Remove(probe)
}

func checkEnvFile(logger pslog.Logger, path string, env *envfile.File, modelKeyEnv string) {
	if _, err := os.Stat(path); err != nil {
		logger.Warn("doctor env file missing", "path", path)
		return
	}
	if value, ok := env.Get(modelKeyEnv); !ok || strings.TrimSpace(value) == "" {
		logger.Warn("doctor model api key unset", "key", modelKeyEnv, "path", path)
		return
	}
	logger.Info("doctor env file ok", "path", path)
}

func checkVenue(ctx context.Context, rt *appRuntime, timeout time.Duration) error {
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := rt.venue.Balances(checkCtx); err != nil {
		return fmt.Errorf("venue check failed (%s): %w", rt.venue.Name(), err)
	}
	return nil
}

// checkModel streams one short completion to verify the endpoint,
// credentials and model name all line up.
func checkModel(ctx context.Context, model *llm.Client, prompt string, timeout time.Duration) error {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	updates, err := model.Stream(runCtx, []llm.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return fmt.Errorf("model check failed (start): %w", err)
	}
	var got bool
	for chunk := range updates {
		if chunk.Err != nil {
			return fmt.Errorf("model check failed: %w", chunk.Err)
		}
		if chunk.Delta != "" {
			got = true
		}
	}
	if !got {
		return fmt.Errorf("model check failed: empty reply")
	}
	return nil
}
