package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/isometry/accountctl/internal/pwpstate"
)

// newOperationCommands generates one subcommand per account operation,
// plus get-all.
func newOperationCommands(v *viper.Viper) []*cobra.Command {
	cmds := []*cobra.Command{newGetAllCommand(v)}
	for _, def := range pwpstate.Definitions() {
		cmds = append(cmds, newOperationCommand(v, def))
	}
	return cmds
}

func newGetAllCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   pwpstate.GetAll.Name,
		Short: pwpstate.GetAll.Summary,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := resolveOptions(v)
			if err != nil {
				return err
			}
			// An empty operation list requests every state property.
			return execute(cmd.Context(), opts, nil)
		},
	}
}

func newOperationCommand(v *viper.Viper, def pwpstate.Definition) *cobra.Command {
	cmd := &cobra.Command{
		Use:   def.Name,
		Short: def.Summary,
		Args:  cobra.NoArgs,
	}

	registerOperandFlags(cmd, def)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		opts, err := resolveOptions(v)
		if err != nil {
			return err
		}
		op, err := buildOperation(cmd, def)
		if err != nil {
			return err
		}
		return execute(cmd.Context(), opts, []pwpstate.Operation{op})
	}

	return cmd
}

// registerOperandFlags adds the operand flags matching the
// operation's value shape.
func registerOperandFlags(cmd *cobra.Command, def pwpstate.Definition) {
	switch def.Operand {
	case pwpstate.OperandBoolean:
		cmd.Flags().String("operand", "true", "boolean operand value")
	case pwpstate.OperandTimestamp:
		cmd.Flags().String("operand", "now", `timestamp operand: "now", RFC 3339, or generalized time`)
	case pwpstate.OperandTimestampList:
		cmd.Flags().StringArray("operand", nil, `timestamp operand: "now", RFC 3339, or generalized time (repeatable)`)
	case pwpstate.OperandString:
		cmd.Flags().String("operand", "", "string operand value")
	case pwpstate.OperandStringList:
		cmd.Flags().StringArray("operand", nil, "string operand value (repeatable)")
	}
}

// buildOperation parses the operand flags into the wire operation.
func buildOperation(cmd *cobra.Command, def pwpstate.Definition) (pwpstate.Operation, error) {
	switch def.Operand {
	case pwpstate.OperandNone:
		return pwpstate.NewOperation(def.Type), nil

	case pwpstate.OperandBoolean:
		raw, _ := cmd.Flags().GetString("operand")
		value, err := pwpstate.ParseBooleanOperand(raw)
		if err != nil {
			return pwpstate.Operation{}, fmt.Errorf("--operand: %w", err)
		}
		return pwpstate.NewOperationWithValues(def.Type, value), nil

	case pwpstate.OperandTimestamp:
		raw, _ := cmd.Flags().GetString("operand")
		value, err := pwpstate.ParseTimestampOperand(raw, nil)
		if err != nil {
			return pwpstate.Operation{}, fmt.Errorf("--operand: %w", err)
		}
		return pwpstate.NewOperationWithValues(def.Type, value), nil

	case pwpstate.OperandTimestampList:
		raws, _ := cmd.Flags().GetStringArray("operand")
		values := make([]string, 0, len(raws))
		for _, raw := range raws {
			value, err := pwpstate.ParseTimestampOperand(raw, nil)
			if err != nil {
				return pwpstate.Operation{}, fmt.Errorf("--operand: %w", err)
			}
			values = append(values, value)
		}
		return pwpstate.NewOperationWithValues(def.Type, values...), nil

	case pwpstate.OperandString:
		raw, _ := cmd.Flags().GetString("operand")
		if raw == "" {
			return pwpstate.Operation{}, fmt.Errorf("--operand: %s requires a value", def.Name)
		}
		return pwpstate.NewOperationWithValues(def.Type, raw), nil

	case pwpstate.OperandStringList:
		values, _ := cmd.Flags().GetStringArray("operand")
		return pwpstate.NewOperationWithValues(def.Type, values...), nil

	default:
		return pwpstate.Operation{}, fmt.Errorf("unsupported operand kind for %s", def.Name)
	}
}
