package main

import (
	"errors"
	"fmt"
	"image"

	"github.com/dixieflatline76/CoverSnap/pkg/capture"
	"github.com/dixieflatline76/CoverSnap/pkg/geometry"
	"github.com/dixieflatline76/CoverSnap/pkg/overlay"
	"github.com/dixieflatline76/CoverSnap/pkg/panel"
	"github.com/spf13/cobra"
)

func newGuideCmd(configPath *string) *cobra.Command {
	var (
		panelName string
		native    string
		frame     string
		preview   string
		layout    layoutFlags
	)

	cmd := &cobra.Command{
		Use:   "guide",
		Short: "Print the on-screen guide for a panel",
		Long: `Prints where the alignment guide for a panel sits over the displayed video,
the native camera region it maps to and the output size.

With --frame and --preview the guide is drawn over the frame and written as
a PNG.`,
		Example: `  # 1920x1080 camera shown at 960x540
  coversnap guide --panel spine --native 1920x1080 --displayed 960x540

  # Draw the guide over a still frame
  coversnap guide --panel front --frame shot.jpg --displayed 960x540 --preview preview.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(*configPath)
			if err != nil {
				return err
			}
			name, err := panel.ParseName(panelName)
			if err != nil {
				return err
			}
			spec, _ := panel.SizeOf(name)

			var vp geometry.Viewport
			var img image.Image
			switch {
			case frame != "":
				f, err := readImage(frame)
				if err != nil {
					return err
				}
				img = f
				vp.NativeWidth, vp.NativeHeight = f.Bounds().Dx(), f.Bounds().Dy()
			case native != "":
				w, h, err := parseSize(native)
				if err != nil {
					return err
				}
				vp.NativeWidth, vp.NativeHeight = int(w), int(h)
			default:
				return errors.New("either --native or --frame is required")
			}
			if err := layout.apply(&vp); err != nil {
				return err
			}

			g, err := geometry.GuideRectFor(spec, s.capture, vp)
			if err != nil {
				return err
			}
			src, err := geometry.SourceRectFor(g, vp)
			if err != nil {
				return err
			}
			pw, ph := geometry.PixelSize(spec, s.capture.Resolution)
			d := s.capture.ToDevice(g)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "panel:   %s (%.1f x %.1f cm)\n", spec.Name, spec.WidthCm, spec.HeightCm)
			fmt.Fprintf(out, "output:  %d x %d px at %v dpi\n", pw, ph, s.capture.Resolution)
			fmt.Fprintf(out, "guide:   left=%.2f top=%.2f width=%.2f height=%.2f\n", g.Left, g.Top, g.Width, g.Height)
			fmt.Fprintf(out, "device:  left=%.2f top=%.2f width=%.2f height=%.2f\n", d.Left, d.Top, d.Width, d.Height)
			fmt.Fprintf(out, "source:  %v\n", src)
			if !src.Within(vp.NativeWidth, vp.NativeHeight) {
				fmt.Fprintln(out, "warning: the guide exceeds the camera frame, capture will fail")
			}

			if preview == "" {
				return nil
			}
			if img == nil {
				return errors.New("--preview needs --frame")
			}
			rendered, err := overlay.Render(img, vp, g, s.capture, spec.Name.String())
			if err != nil {
				return err
			}
			data, err := capture.Encode(rendered, capture.FormatPNG)
			if err != nil {
				return err
			}
			path, err := writeFile("", preview, data)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "preview: %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&panelName, "panel", "p", string(panel.Front), "Panel: front, spine or back")
	cmd.Flags().StringVar(&native, "native", "", "Camera resolution, WIDTHxHEIGHT")
	cmd.Flags().StringVarP(&frame, "frame", "f", "", "Still frame; its size is the camera resolution")
	cmd.Flags().StringVar(&layout.displayed, "displayed", "", "Displayed video size, WIDTHxHEIGHT (default: native size)")
	cmd.Flags().StringVar(&layout.origin, "origin", "", "Layout position of the video, LEFT,TOP")
	cmd.Flags().StringVar(&preview, "preview", "", "Write the frame with the guide drawn over it to this PNG")

	return cmd
}
