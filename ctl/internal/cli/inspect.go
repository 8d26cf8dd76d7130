package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rulstack/rulstack/pkg/model"
	"github.com/rulstack/rulstack/pkg/types"
)

// inspectResult is the JSON form of rulctl inspect.
type inspectResult struct {
	model.Info
	PredictedRUL *float64 `json:"predicted_rul,omitempty"`
}

func newInspectCmd(o *options) *cobra.Command {
	var (
		modelPath  string
		scalerPath string
		readPath   string
		output     string
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Load model artifacts locally and describe them",
		Long: `Load the model and scaler artifacts the same way rulstack-server does,
print their summary and, with --reading, run one prediction locally.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			eng, err := model.Load(modelPath, scalerPath)
			if err != nil {
				return err
			}
			res := inspectResult{Info: eng.Info()}

			if readPath != "" {
				raw, err := readReadingFile(cmd.InOrStdin(), readPath)
				if err != nil {
					return err
				}
				r, err := types.ParseReading(raw)
				if err != nil {
					return err
				}
				rul, err := eng.PredictReading(r)
				if err != nil {
					return err
				}
				res.PredictedRUL = &rul
			}

			if output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			return printInspect(cmd, modelPath, scalerPath, res)
		},
	}

	f := cmd.Flags()
	f.StringVar(&modelPath, "model", "model/rul-model.json", "network artifact")
	f.StringVar(&scalerPath, "scaler", "model/scaler.json", "scaler artifact")
	f.StringVarP(&readPath, "reading", "r", "", `JSON reading to predict locally ("-" for stdin)`)
	f.StringVarP(&output, "output", "o", "text", "output format: text | json")
	return cmd
}

func printInspect(cmd *cobra.Command, modelPath, scalerPath string, res inspectResult) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Model:\t%s (%s)\n", res.Model, modelPath)
	fmt.Fprintf(w, "Scaler:\t%s (%s)\n", res.Scaler, scalerPath)
	fmt.Fprintf(w, "Inputs:\t%s\n", strings.Join(res.Features, ", "))
	fmt.Fprintf(w, "Parameters:\t%d\n", res.Params)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "#\tLAYER\tUNITS\tACTIVATION\tPARAMS")
	for i, l := range res.Layers {
		act := l.Activation
		if act == "" {
			act = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%d\n", i, l.Kind, l.Units, act, l.Params)
	}
	if res.PredictedRUL != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "predicted_rul:\t%.2f\n", *res.PredictedRUL)
	}
	return w.Flush()
}
