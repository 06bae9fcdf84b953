package control

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-wayfinder/pkg/events"
)

var (
	// ErrInvalidValue is returned when a control event carries a missing or out-of-range value.
	ErrInvalidValue = errors.New("control: invalid value")

	// ErrUnknownThreshold is returned for set_threshold with an unrecognized name.
	ErrUnknownThreshold = errors.New("control: unknown threshold")
)

// Threshold names accepted by set_threshold.
const (
	ThresholdDetectionConf  = "detection_conf"
	ThresholdTrackerIoU     = "tracker_iou"
	ThresholdFusionCooldown = "fusion_cooldown"
)

// Apply maps a control event onto the state. It reports false for kinds that
// are one-shot triggers handled elsewhere (describe_scene, shutdown).
func Apply(st *State, ev events.ControlEvent) (bool, error) {
	switch ev.Kind {
	case events.ControlPlay:
		st.SetPaused(false)
	case events.ControlPause:
		st.SetPaused(true)
	case events.ControlSpeed:
		v, ok := ev.Float()
		if !ok || v <= 0 {
			return false, fmt.Errorf("%w: speed %v", ErrInvalidValue, ev.Value)
		}
		st.SetSpeed(v)
	case events.ControlSeek:
		v, ok := ev.Int()
		if !ok || v < 0 {
			return false, fmt.Errorf("%w: seek %v", ErrInvalidValue, ev.Value)
		}
		st.RequestSeek(v)
	case events.ControlSetThreshold:
		return true, applyThreshold(st, ev)
	default:
		return false, nil
	}
	return true, nil
}

func applyThreshold(st *State, ev events.ControlEvent) error {
	name, v, ok := ev.Threshold()
	if !ok {
		return fmt.Errorf("%w: threshold payload %v", ErrInvalidValue, ev.Value)
	}

	switch name {
	case ThresholdDetectionConf, ThresholdTrackerIoU:
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s=%v outside [0,1]", ErrInvalidValue, name, v)
		}
	case ThresholdFusionCooldown:
		if v < 0 {
			return fmt.Errorf("%w: %s=%v is negative", ErrInvalidValue, name, v)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownThreshold, name)
	}

	st.Update(func(s *Settings) {
		switch name {
		case ThresholdDetectionConf:
			s.DetectionConfThreshold = v
		case ThresholdTrackerIoU:
			s.TrackerIoUThreshold = v
		case ThresholdFusionCooldown:
			s.FusionCooldownSeconds = v
		}
	})
	return nil
}
