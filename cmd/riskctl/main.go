package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"credit-risk/internal/client"
	"credit-risk/internal/common"
	"credit-risk/internal/ml"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const usage = `usage: riskctl [flags] <command> [args]

commands:
  score <profile.yaml|profile.json>   score one applicant
  batch <applicants.csv>              score every CSV row, write CSV to stdout
  health                              show model status
  schema                              list the expected columns and enumerations
  recent [n]                          show the latest journaled predictions

flags:
`

func main() {
	_ = godotenv.Load() // optional .env with RISK_API_URL
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("riskctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		baseURL  = fs.String("url", envOr(common.EnvAPIURL, common.DefaultAPIURL), "Server base URL")
		timeout  = fs.Duration("timeout", 10*time.Second, "Request timeout")
		asJSON   = fs.Bool("json", false, "Print raw JSON instead of a summary")
		logLevel = fs.String("log-level", "warn", "Log level: debug, info, warn, error")
	)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	c := client.New(*baseURL, *timeout)
	log.Debug().Str("url", *baseURL).Str("command", fs.Arg(0)).Msg("running command")

	switch cmd, rest := fs.Arg(0), fs.Args()[1:]; cmd {
	case "score":
		if len(rest) != 1 {
			fmt.Fprintln(stderr, "score needs exactly one profile file")
			return 2
		}
		err = score(c, rest[0], *asJSON, stdout)
	case "batch":
		if len(rest) != 1 {
			fmt.Fprintln(stderr, "batch needs exactly one csv file")
			return 2
		}
		err = batch(c, rest[0], stdout)
	case "health":
		err = health(c, *asJSON, stdout)
	case "schema":
		err = schema(c, *asJSON, stdout)
	case "recent":
		n := 0
		if len(rest) > 0 {
			if n, err = strconv.Atoi(rest[0]); err != nil || n <= 0 {
				fmt.Fprintf(stderr, "invalid count %q\n", rest[0])
				return 2
			}
		}
		err = recent(c, n, *asJSON, stdout)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}

	if err != nil {
		fmt.Fprintf(stderr, "riskctl: %v\n", err)
		return 1
	}
	return 0
}

func score(c *client.Client, path string, asJSON bool, out io.Writer) error {
	p, err := client.LoadProfile(path)
	if err != nil {
		return err
	}
	pred, err := c.Predict(p)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Rejected() {
			return fmt.Errorf("profile rejected (%s): %s", apiErr.Code, apiErr.Message)
		}
		return err
	}
	if asJSON {
		return printJSON(out, pred)
	}

	verdict := "Good payer"
	if pred.Label == ml.LabelBad {
		verdict = "Bad payer"
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Prediction:\t%s\n", verdict)
	fmt.Fprintf(tw, "Probability of bad credit:\t%s\n", client.Percent(pred.Probabilities.Bad))
	fmt.Fprintf(tw, "Probability of good credit:\t%s\n", client.Percent(pred.Probabilities.Good))
	fmt.Fprintf(tw, "Model version:\t%s\n", pred.ModelVersion)
	if pred.ID != "" {
		fmt.Fprintf(tw, "Submission:\t%s\n", pred.ID)
	}
	return tw.Flush()
}

func batch(c *client.Client, path string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open batch: %w", err)
	}
	defer f.Close()

	profiles, err := client.LoadBatch(f)
	if err != nil {
		return err
	}
	rows, err := c.PredictBatch(profiles)
	if err != nil {
		return err
	}

	rejected := 0
	for _, r := range rows {
		if r.ErrorCode != "" {
			rejected++
		}
	}
	log.Info().Int("rows", len(rows)).Int("rejected", rejected).Msg("batch scored")
	return client.WriteBatch(out, rows)
}

func health(c *client.Client, asJSON bool, out io.Writer) error {
	h, err := c.Health()
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(out, h)
	}
	if h.Model == nil {
		fmt.Fprintf(out, "status: %s (%s)\n", h.Status, h.Error)
		return fmt.Errorf("model unavailable")
	}
	fmt.Fprintf(out, "status: %s, model %s (%s, %d features), journal %v, rejected %s\n",
		h.Status, h.Model.ModelVersion, h.Model.Backend, h.Model.Features, h.Journal, client.Percent(h.RejectionRate))
	return nil
}

func schema(c *client.Client, asJSON bool, out io.Writer) error {
	info, err := c.Schema()
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(out, info)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, n := range info.Numerics {
		fmt.Fprintf(tw, "%s\tnumeric\t%g..%g\t%s\n", n.Name, n.Min, n.Max, n.Label)
	}
	for _, a := range info.Attributes {
		for i, v := range a.Values {
			name := ""
			if i == 0 {
				name = a.Name
			}
			fmt.Fprintf(tw, "%s\t%s\t\t%s\n", name, v, a.Labels[i])
		}
	}
	fmt.Fprintf(tw, "\t%d columns\t\t\n", len(info.Columns))
	return tw.Flush()
}

func recent(c *client.Client, n int, asJSON bool, out io.Writer) error {
	records, err := c.Recent(n)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(out, records)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCHANNEL\tLABEL\tP(BAD)\tID")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.Timestamp.Format(time.RFC3339), r.Channel, r.Result.Label, client.Percent(r.Result.Probabilities.Bad), r.ID)
	}
	return tw.Flush()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
