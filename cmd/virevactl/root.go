package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfman30/virevamind/internal/catalog"
	"github.com/wolfman30/virevamind/internal/http/handlers"
	"github.com/wolfman30/virevamind/internal/ledger"
	"github.com/wolfman30/virevamind/internal/search"
)

const defaultAPI = "http://localhost:8080"

type rootOptions struct {
	api     string
	output  string
	timeout time.Duration
	client  *http.Client
}

func (o *rootOptions) apiClient() (*apiClient, error) {
	return newAPIClient(o.api, o.client)
}

func (o *rootOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

// newRootCmd builds the CLI. getenv supplies VIREVA_API_URL.
func newRootCmd(out io.Writer, getenv func(string) string) *cobra.Command {
	opts := &rootOptions{}
	api := getenv("VIREVA_API_URL")
	if api == "" {
		api = defaultAPI
	}

	root := &cobra.Command{
		Use:           "virevactl",
		Short:         "Search therapists and manage bookings on VirevaMind",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.output {
			case "text", "json":
				return nil
			default:
				return fmt.Errorf("--output must be text or json, got %q", opts.output)
			}
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.api, "api", api, "API base URL (env VIREVA_API_URL)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format: text or json")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "request timeout")

	root.AddCommand(
		newSearchCmd(opts),
		newSlotsCmd(opts),
		newHoldCmd(opts),
		newConfirmCmd(opts),
		newCancelCmd(opts),
		newReleaseCmd(opts),
	)
	return root
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		criteria search.Criteria
		insured  string
		sort     string
	)
	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Search the therapist directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				criteria.Text = args[0]
			}
			var err error
			if criteria.Insured, err = search.ParseInsured(insured); err != nil {
				return err
			}
			if criteria.Sort, err = catalog.ParseSortKey(sort); err != nil {
				return err
			}

			client, err := opts.apiClient()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			var resp handlers.SearchResponse
			if err := client.do(ctx, http.MethodGet, "/therapists", criteria.Values(), nil, &resp); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, resp, func(w io.Writer) {
				printTherapists(w, resp.Therapists)
			})
		},
	}
	cmd.Flags().StringVar(&criteria.Certification, "certification", "", "CBT, NLP or Both")
	cmd.Flags().StringVar(&criteria.FocusArea, "focus", "", "focus area")
	cmd.Flags().StringVar(&criteria.Language, "language", "", "session language")
	cmd.Flags().StringVar(&insured, "insured", "any", "require, exclude or any")
	cmd.Flags().BoolVar(&criteria.VerifiedOnly, "verified", false, "only verified therapists")
	cmd.Flags().StringVar(&sort, "sort", "", "rating, sessions or name")
	return cmd
}

func newSlotsCmd(opts *rootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "slots <therapist-id>",
		Short: "List a therapist's availability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.apiClient()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			query := url.Values{}
			if date = strings.TrimSpace(date); date != "" {
				query.Set("date", date)
			}
			var resp handlers.SlotsResponse
			if err := client.do(ctx, http.MethodGet, "/therapists/"+url.PathEscape(args[0])+"/slots", query, nil, &resp); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, resp, func(w io.Writer) {
				printSlots(w, resp.Slots)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "YYYY-MM-DD (default: every day)")
	return cmd
}

func newHoldCmd(opts *rootOptions) *cobra.Command {
	var seeker string
	cmd := &cobra.Command{
		Use:   "hold <slot-id>",
		Short: "Hold a slot while you confirm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(seeker) == "" {
				return fmt.Errorf("--seeker is required")
			}
			client, err := opts.apiClient()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			var hold handlers.HoldResponse
			req := handlers.ReserveRequest{SlotID: args[0], SeekerID: seeker}
			if err := client.do(ctx, http.MethodPost, "/holds", nil, req, &hold); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, hold, func(w io.Writer) {
				fmt.Fprintf(w, "held %s until %s\n", hold.SlotID, hold.ExpiresAt.Local().Format(time.Kitchen))
				fmt.Fprintf(w, "hold token: %s\n", hold.Token)
			})
		},
	}
	cmd.Flags().StringVar(&seeker, "seeker", "", "seeker id or email")
	return cmd
}

func newConfirmCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <hold-token>",
		Short: "Confirm a held slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return bookingCall(cmd, opts, http.MethodPost, "/holds/"+url.PathEscape(args[0])+"/confirm")
		},
	}
}

func newCancelCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <confirmation-token>",
		Short: "Cancel a booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return bookingCall(cmd, opts, http.MethodDelete, "/bookings/"+url.PathEscape(args[0]))
		},
	}
}

func newReleaseCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "release <hold-token>",
		Short: "Give a held slot back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.apiClient()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			if err := client.do(ctx, http.MethodDelete, "/holds/"+url.PathEscape(args[0]), nil, nil, nil); err != nil {
				return err
			}
			result := map[string]string{"released": args[0]}
			return render(cmd.OutOrStdout(), opts.output, result, func(w io.Writer) {
				fmt.Fprintf(w, "released %s\n", args[0])
			})
		},
	}
}

func bookingCall(cmd *cobra.Command, opts *rootOptions, method, path string) error {
	client, err := opts.apiClient()
	if err != nil {
		return err
	}
	ctx, cancel := opts.context(cmd)
	defer cancel()

	var booking ledger.Booking
	if err := client.do(ctx, method, path, nil, nil, &booking); err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), opts.output, booking, func(w io.Writer) {
		printBooking(w, booking)
	})
}
