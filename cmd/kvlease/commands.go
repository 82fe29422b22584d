/*
 * Copyright (c) 2018 VMware, Inc.
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of this software and
 * associated documentation files (the "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is furnished to do
 * so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all copies or substantial
 * portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING BUT
 * NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
 * WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 */
package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	par "github.com/vmware/vmware-go-kvlease/clientlibrary/partition"
)

const flagPartitions = "partitions"

func newBootstrapCmd(a *app) *cobra.Command {
	var partitions []string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the missing leases and checkpoints for the given partitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := splitPartitions(partitions)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			if err := a.mgr.CreateAllLeasesIfNotExists(ctx, ids); err != nil {
				return fmt.Errorf("failed to create leases: %w", err)
			}
			if err := a.mgr.CreateAllCheckpointsIfNotExists(ctx, ids); err != nil {
				return fmt.Errorf("failed to create checkpoints: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "bootstrapped %d partitions\n", len(ids))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&partitions, flagPartitions, nil, "partition IDs, comma separated")
	return cmd
}

func newLeasesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "leases",
		Short: "List the stored leases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			leases, err := a.mgr.GetAllLeases(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PARTITION\tOWNER\tEPOCH\tEXPIRES\tOWNED")
			for _, base := range leases {
				lease, ok := base.(*par.Lease)
				if !ok {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%t\n", lease.PartitionID, lease.Owner, lease.Epoch,
					formatExpiry(lease.ExpireAtMillis), lease.Owned)
			}
			return w.Flush()
		},
	}
}

func newCheckpointsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoints",
		Short: "List the stored checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			checkpoints, err := a.mgr.GetAllCheckpoints(ctx)
			if err != nil {
				return err
			}

			ids := make([]string, 0, len(checkpoints))
			for id := range checkpoints {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PARTITION\tOFFSET\tSEQUENCE")
			for _, id := range ids {
				c := checkpoints[id]
				fmt.Fprintf(w, "%s\t%s\t%d\n", id, c.Offset, c.SequenceNumber)
			}
			return w.Flush()
		},
	}
}

func newAcquireCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "acquire <partition>",
		Short: "Claim the lease of a partition for this host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			lease, err := a.mgr.GetLease(ctx, args[0])
			if err != nil {
				return err
			}
			if lease == nil {
				lease = par.NewLease(args[0], 0, 0)
			}

			acquired, err := a.mgr.AcquireLease(ctx, lease)
			if err != nil {
				return err
			}
			return printLeaseResult(cmd.OutOrStdout(), "acquire", acquired, lease)
		},
	}
}

func newRenewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "renew <partition>",
		Short: "Extend the lease this host holds on a partition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			lease, err := a.mgr.GetLease(ctx, args[0])
			if err != nil {
				return err
			}
			if lease == nil {
				return fmt.Errorf("no lease stored for partition %s", args[0])
			}

			renewed, err := a.mgr.RenewLease(ctx, lease)
			if err != nil {
				return err
			}
			return printLeaseResult(cmd.OutOrStdout(), "renew", renewed, lease)
		},
	}
}

func newCheckpointCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoint <partition> <offset> <sequence>",
		Short: "Write the checkpoint of a partition",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid sequence number %q: %w", args[2], err)
			}
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}

			if err := a.mgr.UpdateCheckpoint(ctx, nil, par.NewCheckpoint(args[0], args[1], seq)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checkpoint %s set to %s,%d\n", args[0], args[1], seq)
			return nil
		},
	}
}

func newTeardownCmd(a *app) *cobra.Command {
	var partitions []string
	cmd := &cobra.Command{
		Use:   "teardown",
		Short: "Delete leases and checkpoints of partitions not held by another host",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}

			ids := partitions
			if len(ids) > 0 {
				var err error
				if ids, err = splitPartitions(partitions); err != nil {
					return err
				}
			} else {
				all, err := a.knownPartitions(cmd)
				if err != nil {
					return err
				}
				ids = all
			}

			var kept []string
			removed := 0
			for _, id := range ids {
				held, err := a.heldByOther(cmd, id)
				if err != nil {
					return err
				}
				if held {
					kept = append(kept, id)
					continue
				}

				if err := a.mgr.DeleteLease(ctx, par.NewLease(id, 0, 0)); err != nil {
					return fmt.Errorf("failed to delete lease %s: %w", id, err)
				}
				if err := a.mgr.DeleteCheckpoint(ctx, id); err != nil {
					return fmt.Errorf("failed to delete checkpoint %s: %w", id, err)
				}
				removed++
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tore down %d partitions\n", removed)
			if len(kept) > 0 {
				fmt.Fprintf(out, "kept %d partitions held by other hosts: %s\n", len(kept), strings.Join(kept, ","))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&partitions, flagPartitions, nil, "partition IDs, comma separated; all when empty")
	return cmd
}

// heldByOther reports whether another host holds an unexpired lease on the partition.
func (a *app) heldByOther(cmd *cobra.Command, id string) (bool, error) {
	lease, err := a.mgr.GetLease(cmd.Context(), id)
	if err != nil {
		return false, err
	}
	return lease != nil && lease.IsOwned() && !lease.IsOwnedBy(a.kvConfig.ProcessorHostname), nil
}

// knownPartitions returns every partition that has a lease or a checkpoint.
func (a *app) knownPartitions(cmd *cobra.Command) ([]string, error) {
	ctx := cmd.Context()
	seen := map[string]struct{}{}

	leases, err := a.mgr.GetAllLeases(ctx)
	if err != nil {
		return nil, err
	}
	for _, lease := range leases {
		seen[lease.GetPartitionID()] = struct{}{}
	}

	checkpoints, err := a.mgr.GetAllCheckpoints(ctx)
	if err != nil {
		return nil, err
	}
	for id := range checkpoints {
		seen[id] = struct{}{}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func printLeaseResult(out io.Writer, op string, ok bool, lease *par.Lease) error {
	if !ok {
		_, err := fmt.Fprintf(out, "%s %s: refused (owner %q, expires %s)\n", op, lease.PartitionID,
			lease.Owner, formatExpiry(lease.ExpireAtMillis))
		return err
	}
	_, err := fmt.Fprintf(out, "%s %s: ok (epoch %d, expires %s)\n", op, lease.PartitionID,
		lease.Epoch, formatExpiry(lease.ExpireAtMillis))
	return err
}

func formatExpiry(millis int64) string {
	if millis <= 0 {
		return "-"
	}
	return time.UnixMilli(millis).UTC().Format(time.RFC3339)
}
