package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/martinemde/devassist/config"
	"github.com/martinemde/devassist/unifiedllm"
)

var resolveModel string

var resolveCmd = &cobra.Command{
	Use:   "resolve [task]",
	Short: "Show the model and settings a task would use",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task := args[0]
		id, err := cfg.Resolve(task, resolveModel)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resolution{
			Task:          task,
			Model:         id.String(),
			Source:        resolutionSource(cfg, task, resolveModel),
			Settings:      cfg.SettingsFor(task),
			ContextWindow: unifiedllm.ContextWindow(id.Model, 0),
		})
	},
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the supported providers and their cataloged models",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeProviders(cmd.OutOrStdout())
	},
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveModel, "model", "m", "", "model override as PROVIDER:MODEL")
}

type resolution struct {
	Task          string              `json:"task"`
	Model         string              `json:"model"`
	Source        string              `json:"source"`
	Settings      unifiedllm.Settings `json:"settings"`
	ContextWindow int                 `json:"context_window,omitempty"`
}

// resolutionSource names the first non-empty source in resolution order.
func resolutionSource(c *config.Config, task, override string) string {
	switch {
	case strings.TrimSpace(override) != "":
		return "override"
	case strings.TrimSpace(c.Getenv(config.TaskEnvVar(task))) != "":
		return config.TaskEnvVar(task)
	case strings.TrimSpace(c.Tasks[task].Model) != "":
		return "settings file"
	}
	return "default"
}

func writeProviders(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tMODEL\tCONTEXT")
	for _, kind := range unifiedllm.SupportedProviders() {
		models := unifiedllm.ListModels(strings.ToLower(string(kind)))
		if len(models) == 0 {
			fmt.Fprintf(tw, "%s\t-\t-\n", kind)
			continue
		}
		for _, m := range models {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", kind, m.ID, m.ContextWindow)
		}
	}
	return tw.Flush()
}
