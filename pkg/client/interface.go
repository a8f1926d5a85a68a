package client

import (
	"context"

	"github.com/menta2k/spywhere/pkg/types"
)

// VisionClient asks a vision model about an image sent as base64
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	LocateTarget(ctx context.Context, model, prompt, imgB64 string) (*types.AnalysisResult, error)
}
