package cli

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewContentsCmd создаёт группу команд для просмотра contents.
func NewContentsCmd(storesFn StoresFn, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contents",
		Short: "Inspect registered contents",
	}

	cmd.AddCommand(newContentsListCmd(storesFn, outputFn))

	return cmd
}

func newContentsListCmd(storesFn StoresFn, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list REQUEST_ID",
		Short: "List contents registered for a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid request ID %q: %w", args[0], err)
			}

			stores, err := storesFn(cmd.Context())
			if err != nil {
				return err
			}

			contents, err := stores.Contents.ListByRequest(cmd.Context(), id)
			if err != nil {
				return err
			}

			headers := []string{"ID", "SCOPE", "NAME", "TYPE", "BYTES", "STATUS"}
			rows := make([][]string, len(contents))
			for i, c := range contents {
				rows[i] = []string{
					c.ID.String(), c.Scope, c.Name, c.ContentType,
					strconv.FormatInt(c.Bytes, 10), string(c.Status),
				}
			}

			out.Print(headers, rows, contents)
			return nil
		},
	}
}
