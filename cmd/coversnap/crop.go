package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dixieflatline76/CoverSnap/pkg/capture"
	"github.com/dixieflatline76/CoverSnap/pkg/panel"
	"github.com/dixieflatline76/CoverSnap/util/log"
	"github.com/spf13/cobra"
)

// cropJob is one panel cut from one still frame.
type cropJob struct {
	panel panel.Name
	path  string
}

// parseJobs accepts "panel=image" pairs, or plain image paths that take the
// --panel flag.
func parseJobs(args []string, fallback string) ([]cropJob, error) {
	jobs := make([]cropJob, 0, len(args))
	for _, arg := range args {
		name, path := fallback, arg
		if before, after, ok := strings.Cut(arg, "="); ok {
			name, path = before, after
		}
		p, err := panel.ParseName(name)
		if err != nil {
			return nil, err
		}
		if path == "" {
			return nil, fmt.Errorf("missing image for %s", p)
		}
		jobs = append(jobs, cropJob{panel: p, path: path})
	}
	return jobs, nil
}

func newCropCmd(configPath *string) *cobra.Command {
	var (
		panelName string
		guide     string
		outDir    string
		combined  bool
		layout    layoutFlags
	)

	cmd := &cobra.Command{
		Use:   "crop [panel=]IMAGE...",
		Short: "Capture panels from still images",
		Long: `Crops each panel out of a still frame exactly as the capture page would,
resamples it to the panel's printed size and writes {panel}_cover.<ext>.

Frames are assumed to be shown at native size unless --displayed is given.`,
		Example: `  # Front cover from one photo
  coversnap crop --panel front shot.jpg

  # All three panels plus the combined strip
  coversnap crop front=f.jpg spine=s.jpg back=b.jpg --combined -o covers`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(*configPath)
			if err != nil {
				return err
			}
			jobs, err := parseJobs(args, panelName)
			if err != nil {
				return err
			}
			g, err := parseGuide(guide)
			if err != nil {
				return err
			}

			feed := capture.NewStillFeed()
			session := capture.NewSession(capture.NewEngine(s.filter), feed, feed, s.capture, s.policy)

			for _, job := range jobs {
				frame, err := readImage(job.path)
				if err != nil {
					return err
				}
				feed.SetFrame(frame)

				vp := session.Viewport()
				if err := layout.apply(&vp); err != nil {
					return err
				}
				feed.SetLayout(vp.DisplayedWidth, vp.DisplayedHeight, vp.OriginLeft, vp.OriginTop)

				if err := session.Start(); err != nil {
					return err
				}
				if _, err := session.SelectPanel(job.panel); err != nil {
					return err
				}
				img, err := session.CaptureWithGuide(g)
				if err != nil {
					return fmt.Errorf("%s: %w", job.path, err)
				}
				log.Debugf("%s from %s: source %v", img.Panel, job.path, img.Source)
				session.Resume()
			}

			exports, err := session.ExportAll(cmd.Context(), s.format)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range exports {
				path, err := writeFile(outDir, e.FileName, e.Data)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, path)
			}

			if !combined {
				return nil
			}
			strip, err := session.Combined()
			if err != nil {
				var mismatch *capture.PanelHeightMismatchError
				if errors.As(err, &mismatch) {
					return fmt.Errorf("cannot combine: %w", err)
				}
				return err
			}
			data, err := capture.Encode(strip, s.format)
			if err != nil {
				return err
			}
			path, err := writeFile(outDir, capture.FileName(combinedName, s.format), data)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&panelName, "panel", "p", string(panel.Front), "Panel for images given without a panel= prefix")
	cmd.Flags().StringVarP(&guide, "guide", "g", "", "Guide as laid out on screen, LEFT,TOP,WIDTH,HEIGHT (default: computed)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (default: current directory)")
	cmd.Flags().BoolVar(&combined, "combined", false, "Also write the panels joined left to right")
	cmd.Flags().StringVar(&layout.displayed, "displayed", "", "Displayed video size, WIDTHxHEIGHT (default: native size)")
	cmd.Flags().StringVar(&layout.origin, "origin", "", "Layout position of the video, LEFT,TOP")

	return cmd
}
