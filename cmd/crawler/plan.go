package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/autocrawl/engine/equipment"
)

func planCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the searches a run would crawl",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SOURCE\tSEARCH\tURL")
			for _, sc := range cfg.Enabled() {
				s, err := lookupSite(sc.Name)
				if err != nil {
					return err
				}
				searches, err := plan(s, sc)
				if err != nil {
					return err
				}
				scfg := s.config()
				for _, q := range searches {
					fmt.Fprintf(w, "%s\t%s\t%s\n", sc.Name, q.ID(), scfg.SearchURL(q, 0))
				}
			}
			return w.Flush()
		},
	}
}

func equipmentCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "equipment <source> [mask]",
		Short: "Decode an equipment mask, or list a source's catalog",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := lookupSite(args[0])
			if err != nil {
				return err
			}
			cat := s.catalog()
			if file != "" {
				if cat, err = equipment.Load(file); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				for _, l := range cat.Labels() {
					fmt.Fprintln(out, l)
				}
				return nil
			}
			mask, err := strconv.ParseUint(args[1], 0, 64)
			if err != nil {
				return fmt.Errorf("mask %q: %w", args[1], err)
			}
			for _, l := range cat.Decode(mask) {
				fmt.Fprintln(out, l)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "catalog file instead of the built-in one")
	return cmd
}
