package cmd

import (
	"github.com/spf13/cobra"
)

func newWaitCommand(opts *rootOptions) *cobra.Command {
	var f followOptions
	cmd := &cobra.Command{
		Use:   "wait [job_id]",
		Short: "Follow a job until it completes",
		Long:  `Print events as they are recorded and exit once the job is COMPLETE (status 0) or ERROR (status 1).`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return follow(cmd, opts, &f, args[0])
		},
	}
	f.register(cmd)
	return cmd
}
