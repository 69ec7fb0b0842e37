package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
)

// Stores — репозитории, с которыми работают команды.
// CLI говорит с Postgres напрямую, REST-прослойки нет.
type Stores struct {
	Requests *repo.RequestRepo
	Contents *repo.ContentRepo
}

// StoresFn лениво открывает подключение к БД после парсинга
// PersistentFlags.
type StoresFn func(ctx context.Context) (*Stores, error)

// NewRequestCmd создаёт группу команд для управления requests.
func NewRequestCmd(storesFn StoresFn, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Manage requests",
	}

	cmd.AddCommand(
		newRequestListCmd(storesFn, outputFn),
		newRequestShowCmd(storesFn, outputFn),
		newRequestCreateCmd(storesFn, outputFn),
		newRequestResetCmd(storesFn, outputFn),
	)

	return cmd
}

func newRequestListCmd(storesFn StoresFn, outputFn func() *Output) *cobra.Command {
	var stage string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			filter := repo.RequestFilter{Limit: limit}
			if stage != "" {
				s, ok := domain.ParseStage(stage)
				if !ok {
					return fmt.Errorf("unknown stage %q", stage)
				}
				filter.Stage = s
			}

			stores, err := storesFn(cmd.Context())
			if err != nil {
				return err
			}

			requests, err := stores.Requests.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			headers := []string{"ID", "SCOPE", "NAME", "STAGE", "RETRIES", "LOCKED_BY", "UPDATED"}
			rows := make([][]string, len(requests))
			for i, r := range requests {
				rows[i] = []string{
					r.ID.String(), r.Scope, r.Name, string(r.Stage),
					strconv.Itoa(r.Retries), formatOptional(r.LockedBy),
					r.UpdatedAt.Format(time.RFC3339),
				}
			}

			out.Print(headers, rows, requests)
			return nil
		},
	}

	cmd.Flags().StringVar(&stage, "stage", "", "Filter by stage (Created, CollectionListed, Transformed, ContentRegistered, Submitted, Polling, Completed, Notified, Failed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results (default 50)")

	return cmd
}

func newRequestShowCmd(storesFn StoresFn, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show request details",
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

			req, err := stores.Requests.GetByID(cmd.Context(), id)
			if err != nil {
				return err
			}

			payload := ""
			if len(req.Payload) > 0 {
				data, _ := json.Marshal(req.Payload)
				payload = string(data)
			}

			rows := [][]string{
				{"ID", req.ID.String()},
				{"Scope", req.Scope},
				{"Name", req.Name},
				{"Requester", req.Requester},
				{"Priority", strconv.Itoa(req.Priority)},
				{"Stage", string(req.Stage)},
				{"Retries", strconv.Itoa(req.Retries)},
				{"Reason", req.Reason},
				{"Locked by", formatOptional(req.LockedBy)},
				{"Lock expires", formatTimePtr(req.LockExpiresAt)},
				{"Expires", formatTimePtr(req.ExpiresAt)},
				{"Created", req.CreatedAt.Format(time.RFC3339)},
				{"Updated", req.UpdatedAt.Format(time.RFC3339)},
				{"Payload", payload},
			}

			out.Print([]string{"FIELD", "VALUE"}, rows, req)
			return nil
		},
	}
}

func newRequestCreateCmd(storesFn StoresFn, outputFn func() *Output) *cobra.Command {
	var scope string
	var name string
	var requester string
	var priority int
	var lifetime time.Duration
	var payloadJSON string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new request",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			now := time.Now()
			req := &domain.Request{
				ID:        uuid.New(),
				Scope:     scope,
				Name:      name,
				Requester: requester,
				Priority:  priority,
				Stage:     domain.StageCreated,
				CreatedAt: now,
				UpdatedAt: now,
			}

			if lifetime > 0 {
				expires := now.Add(lifetime)
				req.ExpiresAt = &expires
			}

			if payloadJSON != "" {
				if err := json.Unmarshal([]byte(payloadJSON), &req.Payload); err != nil {
					return fmt.Errorf("invalid payload JSON: %w", err)
				}
			}

			stores, err := storesFn(cmd.Context())
			if err != nil {
				return err
			}

			if err := stores.Requests.Create(cmd.Context(), req); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Request created: %s", req.ID))
			out.Print(
				[]string{"ID", "SCOPE", "NAME", "STAGE", "EXPIRES"},
				[][]string{{
					req.ID.String(), req.Scope, req.Name, string(req.Stage),
					formatTimePtr(req.ExpiresAt),
				}},
				req,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "Collection scope (required)")
	cmd.Flags().StringVar(&name, "name", "", "Collection name (required)")
	cmd.Flags().StringVar(&requester, "requester", "", "Requester identity")
	cmd.Flags().IntVar(&priority, "priority", 0, "Request priority")
	cmd.Flags().DurationVar(&lifetime, "lifetime", 0, "Request lifetime (e.g. 720h); zero means no expiry")
	cmd.Flags().StringVar(&payloadJSON, "payload", "", "Initial payload as a JSON object")
	cmd.MarkFlagRequired("scope")
	cmd.MarkFlagRequired("name")

	return cmd
}

func newRequestResetCmd(storesFn StoresFn, outputFn func() *Output) *cobra.Command {
	var stage string

	cmd := &cobra.Command{
		Use:   "reset ID",
		Short: "Return a failed request to work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid request ID %q: %w", args[0], err)
			}

			target, ok := domain.ParseStage(stage)
			if !ok {
				return fmt.Errorf("unknown stage %q", stage)
			}
			if target.IsTerminal() {
				return fmt.Errorf("cannot reset to terminal stage %s", target)
			}

			stores, err := storesFn(cmd.Context())
			if err != nil {
				return err
			}

			if err := stores.Requests.ResetFailed(cmd.Context(), id, target); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Request %s reset to %s", id, target))
			return nil
		},
	}

	cmd.Flags().StringVar(&stage, "stage", string(domain.StageCreated), "Stage to resume from")

	return cmd
}
