package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/martinemde/devassist/tasks"
)

var (
	runData  string
	runModel string
)

var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Run one task and print its result as JSON",
	Long: `Runs a task with a JSON payload and prints {task, result, model_used}.

Examples:
  devassist run optimizer --data '{"raw_prompt": "write a poem"}'
  devassist run analysis --data '{"file_path": "main.go"}' --model OPENAI:gpt-4o
  echo '{"instruction": "add a README"}' | devassist run editing --data -`,
	Args: cobra.ExactArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().StringVarP(&runData, "data", "d", "{}", `task payload as JSON, or "-" to read stdin`)
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "model override as PROVIDER:MODEL")
}

func runTask(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	payload, err := readPayload(cmd.InOrStdin(), runData)
	if err != nil {
		return err
	}

	svc := tasks.New(cfg, tasks.WithLogger(logger))
	resp, err := svc.Invoke(ctx, args[0], payload, runModel)
	if err != nil {
		if errors.Is(err, tasks.ErrTaskNotFound) {
			return fmt.Errorf("%w (available: %s)", err, strings.Join(svc.Names(), ", "))
		}
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}

func readPayload(stdin io.Reader, data string) (json.RawMessage, error) {
	if data != "-" {
		return json.RawMessage(data), nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return json.RawMessage(b), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
