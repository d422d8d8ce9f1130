package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"starweave/internal/config"
	"starweave/internal/system"
)

// runInit writes the default configuration into the workspace.
func runInit(cmd *cobra.Command, args []string) error {
	ws := workspace
	if ws == "" {
		var err error
		if ws, err = os.Getwd(); err != nil {
			return err
		}
	}
	out := cmd.OutOrStdout()
	path := config.DefaultPath(ws)

	if _, err := os.Stat(path); err == nil && !initForce {
		fmt.Fprintf(out, "Config already exists at %s (use --force to overwrite)\n", path)
		return nil
	}

	cfg := config.DefaultConfig()
	cfg.Store.Enabled = initPersist
	if err := cfg.Save(path); err != nil {
		return err
	}

	logger.Info("Workspace initialized", zap.String("config", path), zap.Bool("persist", initPersist))
	fmt.Fprintf(out, "Initialized starweave in %s\n", ws)
	fmt.Fprintf(out, "  config:      %s\n", path)
	fmt.Fprintf(out, "  concepts:    %d\n", len(cfg.Concepts))
	fmt.Fprintf(out, "  modules:     %d\n", len(cfg.Modules))
	fmt.Fprintf(out, "  persistence: %v\n", cfg.Store.Enabled)
	return nil
}

// runProcess sends one input through the full pipeline.
func runProcess(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	core, err := bootCore(ctx)
	if err != nil {
		return err
	}
	defer closeCore(core)

	input := joinArgs(args)
	logger.Info("Processing input", zap.String("input", input))

	outcome, err := core.Process(ctx, input)
	if err != nil {
		return fmt.Errorf("process: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), formatOutcome(outcome))
	return nil
}

func runRoute(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	core, err := bootCore(ctx)
	if err != nil {
		return err
	}
	defer closeCore(core)

	name, ok, err := core.Route(ctx, joinArgs(args))
	if err != nil {
		return fmt.Errorf("route: %w", err)
	}
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "No module matched")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Routed to module '%s'\n", name)
	return nil
}

func runRank(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	core, err := bootCore(ctx)
	if err != nil {
		return err
	}
	defer closeCore(core)

	out := cmd.OutOrStdout()
	for i, r := range core.Rank(ctx, joinArgs(args), rankTop) {
		mark := " "
		if r.Clears {
			mark = "*"
		}
		fmt.Fprintf(out, "%2d. %s %-16s %+.4f\n", i+1, mark, r.Name, r.Similarity)
	}
	return nil
}

func runCoCreate(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	core, err := bootCore(ctx)
	if err != nil {
		return err
	}
	defer closeCore(core)

	result, err := core.CoCreate(args[0], joinArgs(args[1:]))
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), result.String())
	return nil
}

// runStatus prints the agent's state followed by its metrics.
func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	core, err := bootCore(ctx)
	if err != nil {
		return err
	}
	defer closeCore(core)

	out := cmd.OutOrStdout()
	writeStatus(out, core.Status())

	samples, err := core.Metrics().Gather()
	if err != nil {
		return err
	}
	if len(samples) > 0 {
		fmt.Fprintln(out, "\nMetrics:")
		for _, s := range samples {
			fmt.Fprintf(out, "  %s\n", s)
		}
	}
	return nil
}

// formatOutcome renders a processed input for the terminal.
func formatOutcome(o system.Outcome) string {
	var sb strings.Builder
	if o.Matched {
		fmt.Fprintf(&sb, "Matched %s (similarity %.3f)\n", o.Concept, o.Similarity)
		fmt.Fprintf(&sb, "  state: [%.3f, %.3f] -> [%.3f, %.3f]\n",
			o.StateBefore[0], o.StateBefore[1], o.StateAfter[0], o.StateAfter[1])
	} else {
		sb.WriteString("No concept matched\n")
	}
	if o.EmbeddingFallback {
		sb.WriteString("  (embedding unavailable, used fallback vector)\n")
	}
	sb.WriteString(o.Response)
	sb.WriteString("\n")
	if o.Reflection != "" {
		fmt.Fprintf(&sb, "\nReflection: %s\n", o.Reflection)
	}
	return sb.String()
}

func writeStatus(w io.Writer, st system.Status) {
	fmt.Fprintf(w, "Session:     %s\n", st.SessionID)
	fmt.Fprintf(w, "Engine:      %s\n", st.Engine)
	fmt.Fprintf(w, "Propensity:  %.2f\n", st.Propensity)
	fmt.Fprintf(w, "Co-creation: %s\n", onOff(st.CoCreationMode))
	fmt.Fprintf(w, "Persistence: %s\n", onOff(st.Persistence))
	fmt.Fprintf(w, "Memory:      %d entries, %d log records\n", st.MemorySize, st.LogSize)
	fmt.Fprintf(w, "Reflection:  in %d inputs\n", st.UntilReflect)

	fmt.Fprintln(w, "\nConcepts:")
	for _, c := range st.Concepts {
		fmt.Fprintf(w, "  %-16s state=[%.3f, %.3f] curiosity=%.3f threshold=%.2f last=%s\n",
			c.Name, c.State[0], c.State[1], c.CuriosityScore, c.Threshold,
			time.Unix(c.LastInteraction, 0).Format(time.RFC3339))
	}

	fmt.Fprintln(w, "\nModules:")
	for _, m := range st.Modules {
		fmt.Fprintf(w, "  %-16s co-creations=%d\n", m.Name, m.CoCreationCount)
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
