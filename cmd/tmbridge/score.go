package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/namaste/tmbridge/internal/domain/scoring"
)

// chain is one NAMASTE -> TM2 -> ICD-11 record triple read from a score file.
type chain struct {
	ID      string                `json:"id" yaml:"id"`
	Namaste scoring.NamasteRecord `json:"namaste" yaml:"namaste"`
	TM2     scoring.TM2Record     `json:"tm2" yaml:"tm2"`
	ICD     scoring.ICDRecord     `json:"icd" yaml:"icd"`
}

type scoredChain struct {
	ID string `json:"id"`
	scoring.Breakdown
}

type scoreReport struct {
	Results []scoredChain `json:"results"`
	Summary scoring.Stats `json:"summary"`
}

func scoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score record chains from a YAML or JSON file without a database",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			asJSON, _ := cmd.Flags().GetBool("json")
			if path == "" {
				return fmt.Errorf("--file is required")
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			chains, err := parseChains(data, filepath.Ext(path))
			if err != nil {
				return fmt.Errorf("parsing %s: %w", path, err)
			}

			report := scoreChains(chains)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			writeScoreTable(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "", "YAML (.yaml, .yml) or JSON file holding a list of chains")
	cmd.Flags().Bool("json", false, "Print results as JSON")
	return cmd
}

// parseChains decodes a list of chains. Anything that is not .json is read
// as YAML.
func parseChains(data []byte, ext string) ([]chain, error) {
	var chains []chain
	var err error
	if strings.EqualFold(ext, ".json") {
		err = json.Unmarshal(data, &chains)
	} else {
		err = yaml.Unmarshal(data, &chains)
	}
	if err != nil {
		return nil, err
	}
	if len(chains) == 0 {
		return nil, fmt.Errorf("no chains found")
	}
	for i := range chains {
		if chains[i].ID == "" {
			chains[i].ID = fmt.Sprintf("#%d", i+1)
		}
	}
	return chains, nil
}

func scoreChains(chains []chain) scoreReport {
	report := scoreReport{Results: make([]scoredChain, 0, len(chains))}
	overall := make([]float64, 0, len(chains))
	for _, c := range chains {
		b := scoring.ScoreChain(c.Namaste, c.TM2, c.ICD)
		report.Results = append(report.Results, scoredChain{ID: c.ID, Breakdown: b})
		overall = append(overall, b.OverallConfidence)
	}
	report.Summary = scoring.Summarize(overall)
	return report
}

func writeScoreTable(w io.Writer, r scoreReport) {
	fmt.Fprintf(w, "%-16s %-8s %-8s %-8s %-11s %-7s %s\n", "ID", "TM2", "ICD", "OVERALL", "EQUIVALENCE", "LEVEL", "TYPE")
	fmt.Fprintln(w, "---------------- -------- -------- -------- ----------- ------- -----------")
	for _, res := range r.Results {
		fmt.Fprintf(w, "%-16s %-8.3f %-8.3f %-8.3f %-11s %-7s %s\n", res.ID,
			res.TM2Confidence, res.ICDConfidence, res.OverallConfidence,
			res.Equivalence, res.ConfidenceLevel, res.MappingType)
	}
	s := r.Summary
	fmt.Fprintf(w, "\n%d chain(s): high %d (%d%%), moderate %d (%d%%), low %d (%d%%), average %.3f\n",
		s.Total, s.ByBand["high"], s.Percentages["high"],
		s.ByBand["moderate"], s.Percentages["moderate"],
		s.ByBand["low"], s.Percentages["low"], s.Average)
}
