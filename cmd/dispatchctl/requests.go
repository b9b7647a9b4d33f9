package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"service-dispatch/internal/models"
)

func newStatusCmd(opts *rootOptions, with sessionRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "status <request-id>",
		Short: "Show the current state of a service request",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(cmd *cobra.Command, s *session, args []string) error {
			req, err := s.requests.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.jsonOutput() {
				return printJSON(cmd.OutOrStdout(), req)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "request\t%s\n", req.ID)
			fmt.Fprintf(w, "status\t%s\n", req.Status)
			fmt.Fprintf(w, "service\t%s\n", req.ServiceType)
			fmt.Fprintf(w, "location\t%s\n", req.Location)
			fmt.Fprintf(w, "urgency\t%s\n", req.Urgency)
			if req.AssignedProviderID != nil {
				fmt.Fprintf(w, "provider\t%s\n", *req.AssignedProviderID)
			}
			if req.CancelReason != "" {
				fmt.Fprintf(w, "cancel reason\t%s\n", req.CancelReason)
			}
			fmt.Fprintf(w, "created\t%s\n", req.CreatedAt.Format(time.RFC3339))
			return w.Flush()
		}),
	}
}

type historyView struct {
	*models.RequestHistory
	Events []models.DispatchEvent `json:"events,omitempty"`
}

func newHistoryCmd(opts *rootOptions, with sessionRunner) *cobra.Command {
	var withEvents bool
	cmd := &cobra.Command{
		Use:   "history <request-id>",
		Short: "Show dispatch attempts and provider notifications for a request",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(cmd *cobra.Command, s *session, args []string) error {
			h, err := s.requests.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			view := historyView{RequestHistory: h}
			if withEvents {
				if s.events == nil {
					return fmt.Errorf("--events needs elasticsearch to be configured")
				}
				if view.Events, err = s.events.Events(cmd.Context(), args[0]); err != nil {
					return err
				}
			}
			if opts.jsonOutput() {
				return printJSON(cmd.OutOrStdout(), view)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %s\n\n", h.Request.ID, h.Request.Status)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ATTEMPT\tDEADLINE\tOUTCOME\tPROVIDERS")
			for _, a := range h.Attempts {
				outcome := "open"
				if a.Outcome != nil {
					outcome = string(*a.Outcome)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.Deadline.Format(time.RFC3339), outcome, strings.Join(a.NotifiedProviderIDs, ","))
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "PROVIDER\tCHANNEL\tSENT\tDELIVERED\tRESPONSE")
			for _, n := range h.Notifications {
				resp := "-"
				if n.Response != nil {
					resp = string(*n.Response)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", n.ProviderID, n.ChannelID, n.SentAt.Format(time.RFC3339), n.Delivered, resp)
			}
			if len(view.Events) > 0 {
				fmt.Fprintln(w)
				fmt.Fprintln(w, "AT\tEVENT\tSTATUS\tDETAIL")
				for _, ev := range view.Events {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ev.At.Format(time.RFC3339), ev.Type, ev.Status, ev.Detail)
				}
			}
			return w.Flush()
		}),
	}
	cmd.Flags().BoolVar(&withEvents, "events", false, "include lifecycle events from the history index")
	return cmd
}

func newCandidatesCmd(opts *rootOptions, with sessionRunner) *cobra.Command {
	var (
		service  string
		location string
		urgency  string
	)
	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "Rank the providers a request would reach, without notifying anyone",
		Args:  cobra.NoArgs,
		RunE: with(func(cmd *cobra.Command, s *session, _ []string) error {
			req := models.ServiceRequest{
				ServiceType: models.ServiceType(service),
				Location:    location,
				Urgency:     models.Urgency(urgency),
			}
			ranked, err := s.requests.Candidates(cmd.Context(), req)
			if err != nil {
				return err
			}
			if opts.jsonOutput() {
				if ranked == nil {
					ranked = []models.MatchCandidate{}
				}
				return printJSON(cmd.OutOrStdout(), ranked)
			}
			if len(ranked) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no eligible provider")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RANK\tPROVIDER\tTOTAL\tPROXIMITY\tRATING\tRESPONSE\tSPECIALIZATION\tAVAILABILITY")
			for i, c := range ranked {
				fmt.Fprintf(w, "%d\t%s\t%.3f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\n",
					i+1, c.Provider.ID, c.Total, c.Proximity, c.Rating, c.ResponseTime, c.Specialization, c.Availability)
			}
			return w.Flush()
		}),
	}
	cmd.Flags().StringVar(&service, "service", "", "service type (plumbing, electrical, appliance_repair)")
	cmd.Flags().StringVar(&location, "location", "", "request location, e.g. \"Bonamoussadi, Douala\"")
	cmd.Flags().StringVar(&urgency, "urgency", string(models.UrgencyNormal), "urgent, normal or flexible")
	_ = cmd.MarkFlagRequired("service")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}
