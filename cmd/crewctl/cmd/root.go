package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/target/crew-api/internal/domain/model"
	"github.com/target/crew-api/internal/util"
)

// URLEnv overrides the default server URL.
const URLEnv = "CREW_API_URL"

const defaultURL = "http://localhost:3001"

type rootOptions struct {
	url     string
	timeout time.Duration
	output  string
}

func (o *rootOptions) client() *CrewClient {
	return NewCrewClient(o.url, o.timeout)
}

func (o *rootOptions) validate() error {
	switch o.output {
	case "text", "json":
	default:
		return fmt.Errorf("invalid --output %q (valid options: text, json)", o.output)
	}
	if strings.TrimSpace(o.url) == "" {
		return errors.New("--url is required")
	}
	return nil
}

// NewRootCommand builds the crewctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "crewctl",
		Short: "crewctl submits crew research jobs and follows their progress",
		Long: `crewctl is the command-line client for crew-api.

Common workflows:

  Submit a job and wait for the report:
    crewctl submit --company Acme --company Globex --position Engineer --wait

  Check a job once:
    crewctl status <job-id>

  Follow a job until it finishes:
    crewctl wait <job-id> --stream

The server URL defaults to $` + URLEnv + ` or ` + defaultURL + `.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return opts.validate()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.url, "url", envOr(URLEnv, defaultURL), "crew-api base URL")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-request timeout")
	flags.StringVarP(&opts.output, "output", "o", "text", "output format: text or json")

	root.AddCommand(newSubmitCommand(opts), newStatusCommand(opts), newWaitCommand(opts))
	return root
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// followOptions are shared by submit --wait and wait.
type followOptions struct {
	interval time.Duration
	stream   bool
}

func (f *followOptions) register(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&f.interval, "interval", time.Second, "poll interval")
	cmd.Flags().BoolVar(&f.stream, "stream", false, "follow over WebSocket instead of polling")
}

func follow(cmd *cobra.Command, opts *rootOptions, f *followOptions, jobID string) error {
	client := opts.client()
	printed := 0
	onUpdate := func(job *model.Job) {
		if opts.output == "text" {
			for _, ev := range job.Events[min(printed, len(job.Events)):] {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", ev.Timestamp.Format(time.RFC3339), ev.Data)
			}
			printed = len(job.Events)
		}
	}

	var (
		job *model.Job
		err error
	)
	if f.stream {
		job, err = client.Stream(cmd.Context(), jobID, onUpdate)
	} else {
		job, err = client.Wait(cmd.Context(), jobID, max(f.interval, 10*time.Millisecond), onUpdate)
	}
	if err != nil {
		return err
	}

	if err := printJob(cmd.OutOrStdout(), opts.output, job, opts.output == "text"); err != nil {
		return err
	}
	if job.Status == model.JobStatusError {
		return fmt.Errorf("job %s failed: %s", job.ID, job.Result.Text())
	}
	return nil
}

// printJob renders a job. Text output omits the event log when it was already streamed.
func printJob(w io.Writer, format string, job *model.Job, eventsShown bool) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Job:     %s\n", job.ID)
	fmt.Fprintf(&b, "Status:  %s\n", job.Status)
	if elapsed := util.JobElapsed(job, time.Now()); elapsed > 0 {
		fmt.Fprintf(&b, "Elapsed: %s\n", util.FormatDuration(elapsed))
	}
	if !eventsShown {
		for _, ev := range job.Events {
			fmt.Fprintf(&b, "  %s  %s\n", ev.Timestamp.Format(time.RFC3339), ev.Data)
		}
	}
	switch job.Result.Kind() {
	case model.ResultStructured:
		raw, err := json.MarshalIndent(json.RawMessage(job.Result.Structured()), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "Result:\n%s\n", raw)
	case model.ResultText:
		fmt.Fprintf(&b, "Result:  %s\n", job.Result.Text())
	}
	_, err := io.WriteString(w, b.String())
	return err
}
