package main

import (
	"github.com/spf13/cobra"

	"github.com/ivlev/dicom2video/internal/apperr"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dicom2video <dicom-dir>",
		Short: "Convert every DICOM study in a folder into annotated frames and an MP4",
		Long: "dicom2video reads each study file in <dicom-dir>, writes X_frames/frame_N.jpg " +
			"with a metadata band under every frame and assembles them into X.mp4. " +
			"Settings are read from dicom2video.yaml inside the folder when present.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.SetOut(cmd.ErrOrStderr())
				_ = cmd.Usage()
				return apperr.Errorf(apperr.Usage, "missing DICOM folder path")
			}
			return run(cmd.Context(), args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	return cmd
}
