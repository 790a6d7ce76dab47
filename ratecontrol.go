package hwenc

import (
	"fmt"
	"strings"
)

// RateControlMode identifies the bitrate management algorithm.
type RateControlMode uint16

const (
	RateControlCBR  RateControlMode = 1
	RateControlVBR  RateControlMode = 2
	RateControlCQP  RateControlMode = 3
	RateControlAVBR RateControlMode = 4
	RateControlICQ  RateControlMode = 9
)

func (m RateControlMode) String() string {
	switch m {
	case RateControlCBR:
		return "cbr"
	case RateControlVBR:
		return "vbr"
	case RateControlCQP:
		return "cqp"
	case RateControlAVBR:
		return "avbr"
	case RateControlICQ:
		return "icq"
	default:
		return "unknown"
	}
}

func (m RateControlMode) bitrateDriven() bool {
	return m == RateControlCBR || m == RateControlVBR || m == RateControlAVBR
}

// ParseRateControlMode parses a mode name as printed by String.
func ParseRateControlMode(s string) (RateControlMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cbr":
		return RateControlCBR, nil
	case "vbr":
		return RateControlVBR, nil
	case "cqp":
		return RateControlCQP, nil
	case "avbr":
		return RateControlAVBR, nil
	case "icq":
		return RateControlICQ, nil
	default:
		return 0, fmt.Errorf("unknown rate control mode %q", s)
	}
}

// RateControl is one of CBR, VBR, AVBR, ICQ or CQP.
// The variant selected decides which vendor fields are meaningful.
type RateControl interface {
	Mode() RateControlMode
	// rcFields returns the three overlapping vendor fields in order:
	// InitialDelayInKB/QPI/Accuracy, TargetKbps/QPP/ICQQuality, MaxKbps/QPB/Convergence.
	rcFields() (first, second, third uint16)
	// bufferSizeKB is the HRD buffer size hint, 0 if unspecified.
	bufferSizeKB() uint16
}

// CBR is constant bitrate control following the HRD model.
type CBR struct {
	TargetKbps     uint16
	InitialDelayKB uint16 // 0 = derived by the encoder
	BufferSizeKB   uint16 // 0 = derived by the encoder
}

func (CBR) Mode() RateControlMode                { return RateControlCBR }
func (c CBR) rcFields() (uint16, uint16, uint16) { return c.InitialDelayKB, c.TargetKbps, 0 }
func (c CBR) bufferSizeKB() uint16               { return c.BufferSizeKB }

// VBR is variable bitrate control following the HRD model.
type VBR struct {
	TargetKbps     uint16
	MaxKbps        uint16 // 0 = unlimited
	InitialDelayKB uint16
	BufferSizeKB   uint16
}

func (VBR) Mode() RateControlMode                { return RateControlVBR }
func (v VBR) rcFields() (uint16, uint16, uint16) { return v.InitialDelayKB, v.TargetKbps, v.MaxKbps }
func (v VBR) bufferSizeKB() uint16               { return v.BufferSizeKB }

// AVBR is average variable bitrate: TargetKbps within Accuracy (tenths of a
// percent) after Convergence (units of 100 frames).
type AVBR struct {
	TargetKbps  uint16
	Accuracy    uint16
	Convergence uint16
}

func (AVBR) Mode() RateControlMode                { return RateControlAVBR }
func (a AVBR) rcFields() (uint16, uint16, uint16) { return a.Accuracy, a.TargetKbps, a.Convergence }
func (AVBR) bufferSizeKB() uint16                 { return 0 }

// ICQ is intelligent constant quality, Quality in 1..51 (1 is best).
type ICQ struct {
	Quality uint16
}

func (ICQ) Mode() RateControlMode                { return RateControlICQ }
func (i ICQ) rcFields() (uint16, uint16, uint16) { return 0, i.Quality, 0 }
func (ICQ) bufferSizeKB() uint16                 { return 0 }

// CQP is constant QP per frame type. Zero means the encoder default.
type CQP struct {
	QPI, QPP, QPB uint16
}

func (CQP) Mode() RateControlMode                { return RateControlCQP }
func (c CQP) rcFields() (uint16, uint16, uint16) { return c.QPI, c.QPP, c.QPB }
func (CQP) bufferSizeKB() uint16                 { return 0 }

// NewRateControl builds the variant for mode from a target bitrate.
// Quality-driven modes derive a mid-range quality and ignore the bitrate.
func NewRateControl(mode RateControlMode, targetKbps uint16) (RateControl, error) {
	switch mode {
	case RateControlCBR:
		return CBR{TargetKbps: targetKbps}, nil
	case RateControlVBR:
		return VBR{TargetKbps: targetKbps}, nil
	case RateControlAVBR:
		return AVBR{TargetKbps: targetKbps, Accuracy: 100, Convergence: 1}, nil
	case RateControlICQ:
		return ICQ{Quality: 23}, nil
	case RateControlCQP:
		return CQP{QPI: 26, QPP: 28, QPB: 30}, nil
	default:
		return nil, fmt.Errorf("rate control %d: %w", mode, StatusUnsupported)
	}
}

// rateControlFromFields rebuilds a variant from vendor fields returned by Query.
func rateControlFromFields(mode RateControlMode, first, second, third, bufferKB uint16) RateControl {
	switch mode {
	case RateControlCBR:
		return CBR{InitialDelayKB: first, TargetKbps: second, BufferSizeKB: bufferKB}
	case RateControlVBR:
		return VBR{InitialDelayKB: first, TargetKbps: second, MaxKbps: third, BufferSizeKB: bufferKB}
	case RateControlAVBR:
		return AVBR{Accuracy: first, TargetKbps: second, Convergence: third}
	case RateControlICQ:
		return ICQ{Quality: second}
	case RateControlCQP:
		return CQP{QPI: first, QPP: second, QPB: third}
	default:
		return nil
	}
}
