package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"credit-risk/internal/common"
	"credit-risk/internal/features"
	"credit-risk/internal/ml"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	fmt.Println("🧪 Testing credit model artifact")
	fmt.Println("================================")

	modelPath := common.DefaultModelPath
	if len(os.Args) > 1 {
		modelPath = os.Args[1]
	}

	absPath, err := filepath.Abs(modelPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get absolute path")
	}
	fmt.Printf("📁 Model path: %s\n", absPath)

	fmt.Println("\n🔧 Test 1: Loading evaluator...")
	evaluator, err := ml.Load(absPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load model")
	}
	meta := evaluator.Metadata()
	fmt.Printf("✅ Loaded %s (backend %s, %d features, classes %v)\n",
		meta.Version, meta.Backend, len(meta.Features), meta.Classes)

	fmt.Println("\n🔧 Test 2: Checking column layout...")
	schema := features.DefaultSchema()
	if err := evaluator.CheckSchema(mustEncode(schema, features.DefaultProfile())); err != nil {
		log.Fatal().Err(err).Msg("model does not match the form's column layout")
	}
	fmt.Printf("✅ %d columns match by name and position\n", schema.Len())

	fmt.Println("\n🔧 Test 3: Scoring sample applicants...")
	testCases := []struct {
		name   string
		mutate func(*features.ApplicantProfile)
	}{
		{"Default form values", func(*features.ApplicantProfile) {}},
		{"Long, large business loan", func(p *features.ApplicantProfile) {
			p.Duration = 60
			p.Amount = 15000
			p.Purpose = "business"
			p.Savings = "below_100"
		}},
		{"Established homeowner", func(p *features.ApplicantProfile) {
			p.AccountStatus = "no_account"
			p.CreditHistory = "critical_account"
			p.Housing = "own"
			p.Age = 50
			p.Duration = 12
		}},
		{"Young renter, new car", func(p *features.ApplicantProfile) {
			p.Age = 22
			p.Housing = "rent"
			p.Purpose = "car_new"
			p.Employment = "below_1_year"
			p.InstallmentRate = 4
		}},
	}

	failed := 0
	for i, tc := range testCases {
		p := features.DefaultProfile()
		tc.mutate(&p)

		res, err := evaluator.Evaluate(mustEncode(schema, p))
		if err != nil {
			fmt.Printf("  ❌ 3.%d %s: %v\n", i+1, tc.name, err)
			failed++
			continue
		}
		sum := res.Probabilities.Good + res.Probabilities.Bad
		status := "✅"
		if math.Abs(sum-1) > common.ProbabilityTolerance {
			status = "❌"
			failed++
		}
		fmt.Printf("  %s 3.%d %-28s %-4s  bad %6.2f%%  good %6.2f%%\n",
			status, i+1, tc.name, res.Label, res.Probabilities.Bad*100, res.Probabilities.Good*100)
	}

	if failed > 0 {
		fmt.Printf("\n❌ %d check(s) failed\n", failed)
		os.Exit(1)
	}
	fmt.Println("\n🎉 Model is ready to serve")
}

func mustEncode(s *features.Schema, p features.ApplicantProfile) features.Vector {
	v, err := s.Encode(p)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to encode profile")
	}
	return v
}
