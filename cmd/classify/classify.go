// Package classify runs the classifier over local image files.
package classify

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/skinscan/skinscan/internal/conf"
	"github.com/skinscan/skinscan/internal/errors"
	"github.com/skinscan/skinscan/internal/inference"
	"github.com/skinscan/skinscan/internal/logger"
)

// FileResult is one line of output.
type FileResult struct {
	File               string  `json:"file"`
	PredictedCondition string  `json:"predicted_condition,omitempty"`
	Recommendation     string  `json:"recommendation,omitempty"`
	Confidence         float32 `json:"confidence,omitempty"`
	Error              string  `json:"error,omitempty"`
}

// Command creates the classify command.
func Command(settings *conf.Settings) *cobra.Command {
	var withConfidence bool

	cmd := &cobra.Command{
		Use:   "classify [image...]",
		Short: "Classify local image files",
		Long:  "Classify one or more image files and print one JSON result per file.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := inference.LoadModel(&settings.Model)
			if err != nil {
				return err
			}
			defer func() {
				if err := model.Close(); err != nil {
					GetLogger().Warn("Failed to release model", logger.Error(err))
				}
			}()

			service, err := inference.NewService(model, inference.OptionsFromSettings(settings))
			if err != nil {
				return err
			}
			return Run(cmd.OutOrStdout(), service, args, withConfidence)
		},
	}

	cmd.Flags().BoolVar(&withConfidence, "confidence", false, "Include the probability of the predicted class")
	return cmd
}

// Run classifies each path in order. A failing file is reported in its own
// result line and does not stop the rest; the returned error counts them.
func Run(out io.Writer, service *inference.Service, paths []string, withConfidence bool) error {
	enc := json.NewEncoder(out)
	failed := 0

	for _, path := range paths {
		result := classifyFile(service, path, withConfidence)
		if result.Error != "" {
			failed++
		}
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be classified", failed, len(paths))
	}
	return nil
}

func classifyFile(service *inference.Service, path string, withConfidence bool) FileResult {
	result := FileResult{File: path}

	data, err := readImage(path, service.MaxUploadBytes())
	if err != nil {
		result.Error = err.Error()
		return result
	}

	outcome, err := service.Classify(data)
	if err != nil {
		var inputErr *inference.InputError
		if errors.As(err, &inputErr) {
			result.Error = inputErr.Message
		} else {
			GetLogger().Error("Classification failed", logger.String("file", path), logger.Error(err))
			result.Error = inference.MsgInternalFailure
		}
		return result
	}

	result.PredictedCondition = string(outcome.PredictedCondition)
	result.Recommendation = outcome.Recommendation
	if withConfidence {
		result.Confidence = outcome.Confidence
	}
	return result
}

// readImage reads at most limit+1 bytes so the service can reject the
// oversize file without loading all of it.
func readImage(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("cannot read image: %w", err)
	}
	return data, nil
}
