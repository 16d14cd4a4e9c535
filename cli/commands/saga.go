package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/AshkanYarmoradi/go-tram"
	"github.com/AshkanYarmoradi/go-tram/adapters"
	"github.com/AshkanYarmoradi/go-tram/cli/config"
	"github.com/AshkanYarmoradi/go-tram/cli/styles"
	"github.com/AshkanYarmoradi/go-tram/cli/ui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Output formats of the saga commands.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

// NewSagaCommand creates the saga command
func NewSagaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "saga",
		Short: "Inspect saga instances",
		Long: `Inspect saga instances stored in the configured repository.

Examples:
  tram saga list CreateOrderSaga --active
  tram saga show CreateOrderSaga 5f0c...`,
	}

	cmd.AddCommand(newSagaListCommand())
	cmd.AddCommand(newSagaShowCommand())

	return cmd
}

func newSagaListCommand() *cobra.Command {
	var (
		activeOnly bool
		limit      int
		output     string
	)

	cmd := &cobra.Command{
		Use:   "list <saga-type>",
		Short: "List instances of a saga type, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(_ *config.Config, store SagaStore) error {
				instances, err := store.List(cmd.Context(), args[0], activeOnly, limit)
				if err != nil {
					return err
				}
				return printInstances(cmd.OutOrStdout(), instances, output)
			})
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only show sagas that have not ended")
	cmd.Flags().IntVarP(&limit, "limit", "l", 50, "Maximum number of instances")
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format (table, json, yaml)")

	return cmd
}

func newSagaShowCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show <saga-type> <saga-id>",
		Short: "Show one saga instance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(_ *config.Config, store SagaStore) error {
				instance, err := store.Find(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printInstance(cmd.OutOrStdout(), instance, output)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format (table, json, yaml)")
	return cmd
}

// SagaState returns the display state of an instance.
func SagaState(instance *adapters.SagaInstance) string {
	switch {
	case instance.Failed:
		return "FAILED"
	case instance.EndState && instance.Compensating:
		return "ROLLED BACK"
	case instance.EndState:
		return "COMPLETED"
	case instance.Compensating:
		return "COMPENSATING"
	default:
		return "RUNNING"
	}
}

// currentStep decodes the step index from the instance's state name.
func currentStep(instance *adapters.SagaInstance) string {
	state, err := tram.DecodeExecutionState(instance.StateName)
	if err != nil {
		return "?"
	}
	if state.CurrentlyExecuting < 0 {
		return "-"
	}
	return strconv.Itoa(state.CurrentlyExecuting)
}

// instanceView is the json/yaml rendering of an instance.
type instanceView struct {
	ID            string          `json:"id" yaml:"id"`
	SagaType      string          `json:"sagaType" yaml:"saga_type"`
	State         string          `json:"state" yaml:"state"`
	Step          string          `json:"step" yaml:"step"`
	LastRequestID string          `json:"lastRequestId,omitempty" yaml:"last_request_id,omitempty"`
	DataType      string          `json:"dataType" yaml:"data_type"`
	Data          json.RawMessage `json:"data,omitempty" yaml:"-"`
	DataText      string          `json:"-" yaml:"data,omitempty"`
	Version       int64           `json:"version" yaml:"version"`
	CreatedAt     time.Time       `json:"createdAt" yaml:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" yaml:"updated_at"`
}

func newInstanceView(instance *adapters.SagaInstance) instanceView {
	v := instanceView{
		ID:            instance.ID,
		SagaType:      instance.SagaType,
		State:         SagaState(instance),
		Step:          currentStep(instance),
		LastRequestID: instance.LastRequestID,
		DataType:      instance.SerializedData.Type,
		Version:       instance.Version,
		CreatedAt:     instance.CreatedAt,
		UpdatedAt:     instance.UpdatedAt,
	}
	if json.Valid(instance.SerializedData.Data) {
		v.Data = instance.SerializedData.Data
		v.DataText = string(instance.SerializedData.Data)
	} else if len(instance.SerializedData.Data) > 0 {
		v.DataText = fmt.Sprintf("<%d bytes>", len(instance.SerializedData.Data))
	}
	return v
}

func encode(out io.Writer, v interface{}, format string) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func printInstances(out io.Writer, instances []*adapters.SagaInstance, format string) error {
	if format != outputTable {
		views := make([]instanceView, 0, len(instances))
		for _, instance := range instances {
			views = append(views, newInstanceView(instance))
		}
		return encode(out, views, format)
	}

	if len(instances) == 0 {
		fmt.Fprintln(out, styles.FormatInfo("No saga instances found"))
		return nil
	}

	table := ui.NewTable("ID", "State", "Step", "Version", "Updated")
	for _, instance := range instances {
		table.AddRow(
			instance.ID,
			ui.StatusBadge(SagaState(instance)),
			currentStep(instance),
			strconv.FormatInt(instance.Version, 10),
			instance.UpdatedAt.Format(time.RFC3339),
		)
	}
	fmt.Fprintln(out, table.Render())
	fmt.Fprintln(out, styles.Muted.Render(fmt.Sprintf("%d instance(s)", table.Len())))
	return nil
}

func printInstance(out io.Writer, instance *adapters.SagaInstance, format string) error {
	v := newInstanceView(instance)
	if format != outputTable {
		return encode(out, v, format)
	}

	fmt.Fprintln(out, styles.Title.Render(styles.IconTram+" "+v.SagaType))
	fmt.Fprintln(out, styles.FormatKeyValue("ID", v.ID))
	fmt.Fprintln(out, styles.FormatKeyValue("State", "")+ui.StatusBadge(v.State))
	fmt.Fprintln(out, styles.FormatKeyValue("Step", v.Step))
	if v.LastRequestID != "" {
		fmt.Fprintln(out, styles.FormatKeyValue("Last request", v.LastRequestID))
	}
	fmt.Fprintln(out, styles.FormatKeyValue("Version", strconv.FormatInt(v.Version, 10)))
	fmt.Fprintln(out, styles.FormatKeyValue("Created", v.CreatedAt.Format(time.RFC3339)))
	fmt.Fprintln(out, styles.FormatKeyValue("Updated", v.UpdatedAt.Format(time.RFC3339)))
	fmt.Fprintln(out, styles.FormatKeyValue("Data type", v.DataType))
	if v.DataText != "" {
		fmt.Fprintln(out, styles.Box.Render(v.DataText))
	}
	return nil
}
