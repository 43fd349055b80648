package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/divvy/ledger"
	"github.com/divvy/ledger/share"
	"github.com/divvy/ledger/worldstate"
)

func newShareCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Read and write shares",
	}

	var class string
	put := &cobra.Command{
		Use:   "put ORG HOLDER QUANTITY",
		Short: "Set the number of shares of ORG held by HOLDER",
		Args:  cobra.MatchAll(cobra.ExactArgs(3), keyArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid quantity %q: %w", args[2], err)
			}
			st, err := a.open()
			if err != nil {
				return err
			}
			defer st.Close()

			return st.Submit(func(tx *worldstate.Tx) error {
				l := share.NewList(tx, a.listOpts()...)
				s, err := l.GetShareOf(args[0], args[1])
				if err != nil {
					return err
				}
				if s == nil {
					s = share.New(args[0], args[1], qty)
					s.Class = class
					return l.AddShare(s)
				}
				s.Quantity = qty
				if cmd.Flags().Changed("class") {
					s.Class = class
				}
				return l.UpdateShare(s)
			})
		},
	}
	put.Flags().StringVar(&class, "class", "", "share class")

	get := &cobra.Command{
		Use:   "get ORG HOLDER",
		Short: "Show the shares of ORG held by HOLDER",
		Args:  cobra.MatchAll(cobra.ExactArgs(2), keyArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.open()
			if err != nil {
				return err
			}
			defer st.Close()

			return st.Evaluate(func(tx *worldstate.Tx) error {
				s, err := share.NewList(tx, a.listOpts()...).GetShareOf(args[0], args[1])
				if err != nil {
					return err
				}
				if s == nil {
					return fmt.Errorf("%s holds no shares of %s", args[1], args[0])
				}
				printShare(cmd, s)
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list [ORG]",
		Short: "List the shares of ORG, or all shares",
		Args:  cobra.MatchAll(cobra.MaximumNArgs(1), keyArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.open()
			if err != nil {
				return err
			}
			defer st.Close()

			return st.Evaluate(func(tx *worldstate.Tx) error {
				l := share.NewList(tx, a.listOpts()...)
				var shares []*share.Share
				if len(args) == 1 {
					shares, err = l.SharesOf(args[0])
				} else {
					shares, err = l.All()
				}
				if err != nil {
					return err
				}
				for _, s := range shares {
					printShare(cmd, s)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(put, get, list)
	return cmd
}

func printShare(cmd *cobra.Command, s *share.Share) {
	if s.Class != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d\t%s\n", s.Org, s.Holder, s.Quantity, s.Class)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d\n", s.Org, s.Holder, s.Quantity)
	}
}

// keyArgs checks that the first n args can be used as key parts.
func keyArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return ledger.ValidKeyParts(args[:min(n, len(args))]...)
	}
}
