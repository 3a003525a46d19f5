package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/target/crew-api/internal/domain/model"
)

func newSubmitCommand(opts *rootOptions) *cobra.Command {
	var (
		req            model.CrewRequest
		idempotencyKey string
		wait           bool
		f              followOptions
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a crew job",
		Long: `Submit a research job for one or more companies and positions.

Example:
  crewctl submit --company Acme --position Engineer --position Designer
  crewctl submit -c Acme,Globex -p Engineer --wait --stream`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Normalize()
			if err := req.Validate(); err != nil {
				return err
			}

			jobID, err := opts.client().Submit(cmd.Context(), req, idempotencyKey)
			if err != nil {
				return err
			}

			if wait {
				if opts.output == "text" {
					fmt.Fprintf(cmd.OutOrStdout(), "Submitted job %s\n", jobID)
				}
				return follow(cmd, opts, &f, jobID)
			}

			if opts.output == "json" {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(model.SubmitResponse{JobID: jobID})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), jobID)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVarP(&req.Companies, "company", "c", nil, "company to research (repeatable, required)")
	flags.StringSliceVarP(&req.Positions, "position", "p", nil, "position to research (repeatable, required)")
	flags.StringVar(&idempotencyKey, "idempotency-key", "", "reuse the job of an earlier submission with the same key")
	flags.BoolVarP(&wait, "wait", "w", false, "wait for the job to finish")
	f.register(cmd)
	return cmd
}
