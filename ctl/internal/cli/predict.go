package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/rulstack/rulstack/ctl/internal/remote"
	"github.com/rulstack/rulstack/pkg/types"
)

func newPredictCmd(o *options) *cobra.Command {
	var (
		file   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict the remaining useful life of one cycle reading",
		Long: `Send one reading to rulstack-server and print the predicted RUL.

The reading comes from --file (a JSON object, "-" for stdin) or from the eight
feature flags, all of which are then required.`,
		Example: `  rulctl predict -f reading.json
  rulctl predict --transport grpc --cycle-index 12 --discharge-time 2595.3 ...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}

			var reading json.RawMessage
			var err error
			if file != "" {
				reading, err = readReadingFile(cmd.InOrStdin(), file)
			} else {
				reading, err = readingFromFlags(cmd.Flags())
			}
			if err != nil {
				return err
			}

			p, err := o.predictor()
			if err != nil {
				return err
			}
			defer p.Close()

			rul, err := p.Predict(cmd.Context(), reading)
			if err != nil {
				return err
			}

			if output == "json" {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(types.Prediction{PredictedRUL: rul})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "predicted_rul: %.2f\n", rul)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&file, "file", "f", "", `JSON file holding the reading ("-" for stdin)`)
	f.StringVarP(&output, "output", "o", "text", "output format: text | json")
	f.String("transport", "http", "transport: http | grpc")
	o.v.BindPFlag("transport", f.Lookup("transport")) //nolint:errcheck
	for _, name := range types.FeatureNames {
		f.Float64(flagName(name), 0, "reading field "+name)
	}
	return cmd
}

// predictor opens the client for the configured transport.
func (o *options) predictor() (remote.Predictor, error) {
	timeout := o.v.GetDuration("timeout")
	switch t := o.v.GetString("transport"); t {
	case "", "http":
		return remote.NewHTTPClient(o.v.GetString("server"), timeout), nil
	case "grpc":
		c, err := remote.DialGRPC(o.v.GetString("grpc-addr"), timeout)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown transport %q (want http or grpc)", t)
	}
}

// flagName maps a reading key to its flag: time_at_4_15 -> time-at-4-15.
func flagName(field string) string {
	return strings.ReplaceAll(field, "_", "-")
}

// readingFromFlags builds the reading from the feature flags. Every flag must
// be set explicitly so a forgotten field is not silently sent as zero.
func readingFromFlags(fs *pflag.FlagSet) (json.RawMessage, error) {
	vec := make([]float64, types.NumFeatures)
	var missing []string
	for i, name := range types.FeatureNames {
		fl := flagName(name)
		if !fs.Changed(fl) {
			missing = append(missing, "--"+fl)
			continue
		}
		v, err := fs.GetFloat64(fl)
		if err != nil {
			return nil, err
		}
		vec[i] = v
	}
	if len(missing) == types.NumFeatures {
		return nil, errors.New("no reading given: use --file or the feature flags")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing feature flags: %s", strings.Join(missing, ", "))
	}

	r, err := types.ReadingFromVector(vec)
	if err != nil {
		return nil, err
	}
	return json.Marshal(r)
}

// readReadingFile reads a reading JSON document from path, or from stdin when
// path is "-". The content is sent as-is so the server reports any problem.
func readReadingFile(stdin io.Reader, path string) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read reading: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("read reading: %s is not valid JSON", path)
	}
	return data, nil
}
