package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/eshaffer321/ledger-balancer/internal/api/dto"
	"github.com/eshaffer321/ledger-balancer/internal/domain/allocator"
)

// RunDivide reads a divide request as JSON, shares its total over its
// values and writes the result as JSON. Flags override the request's total
// and precision.
func RunDivide(flags *DivideFlags, stdin io.Reader, stdout io.Writer) error {
	in := stdin
	if flags.Input != "" && flags.Input != "-" {
		f, err := os.Open(flags.Input)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	var req dto.DivideRequest
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}
	if flags.Total != nil {
		req.Total = *flags.Total
	}
	precision := dto.PrecisionOr(req.Precision, dto.DefaultPrecision)
	if flags.Precision >= 0 {
		precision = flags.Precision
	}

	divided, err := allocator.DivideRounded(req.Values.ToAllocator(), req.Total, precision)
	if err != nil {
		return err
	}

	factor := math.Pow10(precision)
	return PrintJSON(stdout, dto.DivideResponse{
		Values:    dto.SharesFrom(divided),
		Total:     math.Round(req.Total*factor) / factor,
		Precision: precision,
	}, flags.Pretty)
}
