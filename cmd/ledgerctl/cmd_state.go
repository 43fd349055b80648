package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/divvy/ledger/worldstate"
)

func newDumpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print every key of the world state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.open()
			if err != nil {
				return err
			}
			defer st.Close()
			return st.Dump(cmd.OutOrStdout())
		},
	}
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the commit height and digest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.open()
			if err != nil {
				return err
			}
			defer st.Close()
			fmt.Fprintln(cmd.OutOrStdout(), st.Info())
			return nil
		},
	}
}

func newLogCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "log",
		Short: "Print the commits recorded in the commit log",
		Long: `Prints one line per commit: height, time, transaction ID, digest and the
number of keys written. With --verbose, the written keys follow each line.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.CommitLog == "" {
				return fmt.Errorf("no commit log configured")
			}
			commits, err := worldstate.ReadCommitLog(a.cfg.CommitLog)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, c := range commits {
				fmt.Fprintf(w, "%d\t%s\t%s\t%016x\t%d\n", c.Height, c.Time.Format(time.RFC3339), c.TxID, c.Digest, len(c.Writes))
				if !a.cfg.Verbose {
					continue
				}
				for _, wr := range c.Writes {
					if wr.Deleted {
						fmt.Fprintf(w, "\t-%q\n", wr.Key)
					} else {
						fmt.Fprintf(w, "\t+%q (%d bytes)\n", wr.Key, len(wr.Data))
					}
				}
			}
			return nil
		},
	}
}
