package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/megaguards/mg-setup/internal/provision"
	"github.com/megaguards/mg-setup/internal/registry"
	"github.com/spf13/cobra"
)

// createStatusCommand creates the status subcommand
func createStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report which registry artifacts are installed",
		Long: `Check every registry artifact available for this platform without
changing anything, and report the recorded environment variables.`,
		Args: cobra.NoArgs,
		RunE: executeStatus,
	}
}

func executeStatus(cmd *cobra.Command, args []string) error {
	s, err := newSession(false)
	if err != nil {
		return err
	}

	names := s.engine.Registry.Supported(s.engine.Platform)
	results := s.engine.EnsureAll(cmd.Context(), names, provision.Request{CheckOnly: true})

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ARTIFACT\tKIND\tSTATE\tDETAIL")
	for _, r := range results {
		spec, _ := s.engine.Registry.Lookup(r.Name)
		state, detail := "installed", ""
		switch {
		case r.Err != nil:
			state, detail = "error", r.Err.Error()
		case !r.Installed:
			state = "missing"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, spec.Kind, state, detail)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	vars, err := s.engine.Store.Vars()
	if err != nil {
		return err
	}
	if len(vars) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "\nRecorded in %s:\n", s.cfg.EnvFile)
		for _, name := range sortedKeys(vars) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s=%s\n", name, vars[name])
		}
	}

	missing := len(provision.FailedResults(results))
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d artifact(s) installed\n", len(results)-missing, len(results))
	return nil
}

// createListCommand creates the list subcommand
func createListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the artifacts of the registry",
		Args:  cobra.NoArgs,
		RunE:  executeList,
	}
}

func executeList(cmd *cobra.Command, args []string) error {
	s, err := newSession(false)
	if err != nil {
		return err
	}
	reg := s.engine.Registry

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tPLATFORMS\tREQUIRES\tDESCRIPTION")
	for _, name := range reg.Names() {
		spec, err := reg.Lookup(name)
		if err != nil {
			return err
		}
		var platforms []string
		for _, p := range registry.Platforms() {
			if _, ok := registry.VariantFor(spec, p); ok {
				platforms = append(platforms, string(p))
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", spec.Name, spec.Kind,
			orDash(strings.Join(platforms, ",")), orDash(strings.Join(spec.Requires, ",")), spec.Description)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d artifact(s), %d usable on %s\n",
		len(reg.Names()), len(reg.Supported(s.engine.Platform)), s.engine.Platform)
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
