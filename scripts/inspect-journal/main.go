package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"credit-risk/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		dataPath = flag.String("data", "./data", "Data directory path")
		limit    = flag.Int("n", 20, "Number of recent records to print")
		export   = flag.String("export", "", "Write the whole journal as CSV to this file")
	)
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	fmt.Printf("Inspecting journal in: %s\n", *dataPath)

	// The server holds an exclusive lock; stop it first.
	store, err := storage.New(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer store.Close()

	count, err := store.Count()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to count records")
	}
	fmt.Printf("Journaled predictions: %d\n", count)

	records, err := store.Recent(*limit)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to fetch recent records")
	}

	bad := 0
	byChannel := map[string]int{}
	fmt.Printf("\nMost recent %d:\n", len(records))
	for _, r := range records {
		if r.Result.Label == "bad" {
			bad++
		}
		byChannel[r.Channel]++
		fmt.Printf("%s  %-4s  %-4s  p_bad %.3f  %s  age %.0f, amount %.0f, %d months\n",
			r.Timestamp.Format(time.RFC3339), r.Channel, r.Result.Label, r.Result.Probabilities.Bad,
			r.Result.ModelVersion, r.Profile.Age, r.Profile.Amount, int(r.Profile.Duration))
	}
	if len(records) > 0 {
		fmt.Printf("\nBad-payer share in sample: %.1f%%, by channel: %v\n", float64(bad)/float64(len(records))*100, byChannel)
	}

	if *export != "" {
		f, err := os.Create(*export)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create export file")
		}
		defer f.Close()

		n, err := store.ExportFeaturesToCSV(f, time.Unix(0, 0), time.Now())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to export journal")
		}
		fmt.Printf("\nExported %d rows to %s\n", n, *export)
	}
}
