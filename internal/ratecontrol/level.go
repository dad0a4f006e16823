package ratecontrol

import "fmt"

// FrameType is a picture coding type. B1 and B2 are the deeper levels of a
// hierarchical B pyramid.
type FrameType int

const (
	FrameI FrameType = iota
	FrameP
	FrameB
	FrameB1
	FrameB2
)

// String returns the coding type name.
func (t FrameType) String() string {
	switch t {
	case FrameI:
		return "I"
	case FrameP:
		return "P"
	case FrameB:
		return "B"
	case FrameB1:
		return "B1"
	case FrameB2:
		return "B2"
	default:
		return fmt.Sprintf("FrameType(%d)", int(t))
	}
}

// Level is the BRC frame class. Its values follow the update kernel's
// frame type numbering.
type Level int

const (
	LevelPOrLB Level = iota
	LevelB
	LevelI
	LevelB1
	LevelB2
	NumLevels
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelPOrLB:
		return "P"
	case LevelB:
		return "B"
	case LevelI:
		return "I"
	case LevelB1:
		return "B1"
	case LevelB2:
		return "B2"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// FrameLevel classifies a frame into its BRC level. Under low delay the
// hierarchy comes from hierLevelPlus1 (0, 1 or 2) on P and B frames; deeper
// levels and explicit B1/B2 coding types are rejected. Under random access
// the coding type maps directly.
func FrameLevel(lowDelay bool, t FrameType, hierLevelPlus1 int) (Level, error) {
	if lowDelay {
		switch t {
		case FrameI:
			if hierLevelPlus1 != 0 {
				return 0, fmt.Errorf("%w: I frame at level %d under low delay", ErrFrameLevel, hierLevelPlus1)
			}
			return LevelI, nil
		case FrameP, FrameB:
			switch hierLevelPlus1 {
			case 0:
				return LevelPOrLB, nil
			case 1:
				return LevelB, nil
			case 2:
				return LevelB1, nil
			default:
				return 0, fmt.Errorf("%w: level %d under low delay", ErrFrameLevel, hierLevelPlus1)
			}
		case FrameB1, FrameB2:
			return 0, fmt.Errorf("%w: %v under low delay", ErrFrameLevel, t)
		}
		return 0, fmt.Errorf("%w: %v", ErrFrameLevel, t)
	}

	switch t {
	case FrameI:
		return LevelI, nil
	case FrameP:
		return LevelPOrLB, nil
	case FrameB:
		return LevelB, nil
	case FrameB1:
		return LevelB1, nil
	case FrameB2:
		return LevelB2, nil
	}
	return 0, fmt.Errorf("%w: %v", ErrFrameLevel, t)
}
