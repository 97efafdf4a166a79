package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pawnval/internal/valuation/handler"
	"pawnval/internal/valuation/models"
	"pawnval/internal/valuation/orchestrator"
	"pawnval/internal/valuation/setup"
	"pawnval/pkg/platform/httputil"
)

type estimateOptions struct {
	pawnPercentage float64
	tenant         string
	blend          bool
	timeout        time.Duration
}

func newEstimateCmd(g *globals) *cobra.Command {
	opts := &estimateOptions{}
	cmd := &cobra.Command{
		Use:   "estimate <item description...>",
		Short: "Value one item with the configured sources",
		Example: `  pawnctl estimate iphone 14 pro 128gb
  pawnctl estimate --blend --pawn-percentage 0.35 1 oz gold eagle`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEstimate(cmd, g, opts, strings.Join(args, " "))
		},
	}
	cmd.Flags().Float64Var(&opts.pawnPercentage, "pawn-percentage", 0, "pawn ratio in (0,1]; defaults to the configured ratio")
	cmd.Flags().StringVar(&opts.tenant, "tenant", "", "resolve the pawn ratio for this tenant")
	cmd.Flags().BoolVar(&opts.blend, "blend", false, "consult every source and merge their observations")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall time limit")
	return cmd
}

func runEstimate(cmd *cobra.Command, g *globals, opts *estimateOptions, raw string) error {
	cfg, log, err := g.load(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("blend") {
		cfg.Valuation.Blend = opts.blend
	}

	q, err := models.NormalizeQuery(raw)
	if err != nil {
		return err
	}
	rates, err := setup.PawnRates(cfg)
	if err != nil {
		return err
	}
	pct := rates.For(opts.tenant)
	if cmd.Flags().Changed("pawn-percentage") {
		if opts.pawnPercentage <= 0 || opts.pawnPercentage > 1 {
			return errors.New("--pawn-percentage must be in (0,1]")
		}
		pct = opts.pawnPercentage
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	pipeline, err := setup.NewPipeline(ctx, cfg, setup.Infra{}, log, nil)
	if err != nil {
		return err
	}
	est, err := pipeline.Orchestrator.Estimate(ctx, q, pct)
	if errors.Is(err, orchestrator.ErrNoData) {
		return printJSON(cmd.OutOrStdout(), httputil.ErrorBody{
			Error:   handler.CodeNoData,
			Message: "Unable to find pricing data for this item",
		})
	}
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), handler.FromEstimate(est))
}
