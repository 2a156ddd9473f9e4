package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/facegate/internal/capture"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/frame"
	"github.com/saturnino-fabrica-de-software/facegate/internal/quality"
)

// InspectReport is what inspect prints for one image.
type InspectReport struct {
	File       string          `json:"file"`
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	Strategy   domain.Strategy `json:"strategy"`
	Plausible  bool            `json:"plausible"`
	FaceCount  int             `json:"face_count"`
	Region     [4]int          `json:"region"`
	Quality    int             `json:"quality"`
	Status     capture.Status  `json:"status"`
	Brightness int             `json:"brightness"`
	Lighting   quality.Level   `json:"lighting"`
	Contrast   float64         `json:"contrast"`
}

func newInspectCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect <image>",
		Short: "Show detection, quality and lighting of a still image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.inspect(cmd, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			printInspect(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func (a *app) inspect(cmd *cobra.Command, path string) (*InspectReport, error) {
	f, err := readFrame(path)
	if err != nil {
		return nil, err
	}
	set, err := a.pipelines()
	if err != nil {
		return nil, err
	}
	p, err := set.Get(a.strategy)
	if err != nil {
		return nil, err
	}

	d, err := p.Detector.Detect(cmd.Context(), f)
	if err != nil {
		return nil, err
	}
	region := d.Region
	if region.Empty() {
		region = f.Full()
	}
	r := p.Analyzer.Analyze(region)

	score := r.Score
	if !d.Plausible {
		score = 0
	}
	return &InspectReport{
		File:       path,
		Width:      f.Width(),
		Height:     f.Height(),
		Strategy:   p.Strategy(),
		Plausible:  d.Plausible,
		FaceCount:  d.FaceCount,
		Region:     [4]int{region.Rect.Min.X, region.Rect.Min.Y, region.Rect.Dx(), region.Rect.Dy()},
		Quality:    score,
		Status:     capture.StatusFor(score),
		Brightness: r.Brightness,
		Lighting:   r.Level,
		Contrast:   r.Contrast,
	}, nil
}

func printInspect(out io.Writer, r *InspectReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "file\t%s\n", r.File)
	fmt.Fprintf(w, "size\t%dx%d\n", r.Width, r.Height)
	fmt.Fprintf(w, "strategy\t%s\n", r.Strategy)
	fmt.Fprintf(w, "face\t%t (%d found)\n", r.Plausible, r.FaceCount)
	fmt.Fprintf(w, "region\tx=%d y=%d w=%d h=%d\n", r.Region[0], r.Region[1], r.Region[2], r.Region[3])
	fmt.Fprintf(w, "quality\t%d (%s)\n", r.Quality, r.Status)
	fmt.Fprintf(w, "brightness\t%d (%s)\n", r.Brightness, r.Lighting)
	fmt.Fprintf(w, "contrast\t%.2f\n", r.Contrast)
	w.Flush()
}

func readFrame(path string) (*frame.Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := frame.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
