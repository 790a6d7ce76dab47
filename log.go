package hwenc

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
)

// withStage tags log entries of ctx with the stage role.
func withStage(ctx context.Context, role StageRole) context.Context {
	return belt.WithField(ctx, "stage", role.String())
}

func formatKbps(kbps uint16) string {
	return humanize.SI(float64(kbps)*1000, "bps")
}

func logParams(ctx context.Context, p *PipelineParams) {
	logger.Infof(ctx, "vpp: %s -> %s", p.VPP.In, p.VPP.Out)
	rc := p.Encode.RateControl
	if rc == nil {
		logger.Infof(ctx, "encode: %s %s, rate control unset", p.Encode.Codec, p.Encode.Frame)
		return
	}
	_, target, _ := rc.rcFields()
	switch rc.Mode() {
	case RateControlCBR, RateControlVBR, RateControlAVBR:
		logger.Infof(ctx, "encode: %s %s %s %s, target usage %s, async depth %d",
			p.Encode.Codec, p.Encode.Frame, rc.Mode(), formatKbps(target), p.Encode.TargetUsage, p.Encode.AsyncDepth)
	default:
		logger.Infof(ctx, "encode: %s %s %s %+v, target usage %s, async depth %d",
			p.Encode.Codec, p.Encode.Frame, rc.Mode(), rc, p.Encode.TargetUsage, p.Encode.AsyncDepth)
	}
}

func logPool(ctx context.Context, name string, p *SurfacePool) {
	logger.Debugf(ctx, "%s pool: %d x %s (%s)", name, p.Len(), p.Geometry(), humanize.IBytes(uint64(p.Size())))
}
