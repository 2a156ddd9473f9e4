package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

func newMatchCommand(a *app) *cobra.Command {
	var threshold float64

	cmd := &cobra.Command{
		Use:   "match <enrolled.json> <candidate.json>",
		Short: "Compare two fingerprint files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			enrolled, err := readFingerprint(args[0])
			if err != nil {
				return err
			}
			candidate, err := readFingerprint(args[1])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("threshold") {
				if !(threshold > 0) {
					return domain.ErrInvalidThreshold.WithError(fmt.Errorf("--threshold %g: must be positive", threshold))
				}
			}
			res, err := a.matcher().Compare(enrolled, candidate, threshold)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "distance threshold (default: the configured one for the strategy)")
	return cmd
}

func readFingerprint(path string) (*domain.Fingerprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fp domain.Fingerprint
	if err := json.Unmarshal(data, &fp); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &fp, nil
}
