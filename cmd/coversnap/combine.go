package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/dixieflatline76/CoverSnap/pkg/capture"
	"github.com/dixieflatline76/CoverSnap/pkg/panel"
	"github.com/spf13/cobra"
)

// combinedName is the panel slot of the joined file.
const combinedName = "combined"

// panelFromFile guesses the panel from a "{panel}_cover.<ext>" name. Other
// names are kept as they are so mismatch errors stay readable.
func panelFromFile(path string) panel.Name {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = strings.TrimSuffix(base, "_cover")
	if name, err := panel.ParseName(base); err == nil {
		return name
	}
	return panel.Name(base)
}

func newCombineCmd(configPath *string) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "combine IMAGE...",
		Short: "Join captured panels left to right",
		Long: `Joins already captured panels into one strip in the order given. All
panels must have the same pixel height.`,
		Example: `  coversnap combine front_cover.png spine_cover.png back_cover.png`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(*configPath)
			if err != nil {
				return err
			}

			images := make([]*capture.CapturedImage, 0, len(args))
			for _, path := range args {
				img, err := readImage(path)
				if err != nil {
					return err
				}
				b := img.Bounds()
				images = append(images, &capture.CapturedImage{
					Panel:       panelFromFile(path),
					PixelWidth:  b.Dx(),
					PixelHeight: b.Dy(),
					Image:       imaging.Clone(img),
				})
			}

			strip, err := capture.Combine(images...)
			if err != nil {
				return err
			}

			format := s.format
			if output == "" {
				output = capture.FileName(combinedName, format)
			} else if ext := filepath.Ext(output); ext != "" {
				f, err := capture.ParseFormat(ext)
				if err != nil {
					return err
				}
				format = f
			}
			data, err := capture.Encode(strip, format)
			if err != nil {
				return err
			}
			path, err := writeFile("", output, data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default combined_cover.<ext>)")

	return cmd
}
