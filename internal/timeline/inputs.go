package timeline

import "fmt"

// Controller button bits.
const (
	CRight uint16 = 1 << 0
	CLeft  uint16 = 1 << 1
	CDown  uint16 = 1 << 2
	CUp    uint16 = 1 << 3
	R      uint16 = 1 << 4
	L      uint16 = 1 << 5
	DRight uint16 = 1 << 8
	DLeft  uint16 = 1 << 9
	DDown  uint16 = 1 << 10
	DUp    uint16 = 1 << 11
	Start  uint16 = 1 << 12
	Z      uint16 = 1 << 13
	B      uint16 = 1 << 14
	A      uint16 = 1 << 15
)

// Inputs is the controller state applied for a single frame.
type Inputs struct {
	Buttons uint16 `json:"buttons"`
	StickX  int8   `json:"stick_x"`
	StickY  int8   `json:"stick_y"`
}

func (in Inputs) Has(mask uint16) bool { return in.Buttons&mask == mask }

func (in Inputs) String() string {
	return fmt.Sprintf("%04x(%d,%d)", in.Buttons, in.StickX, in.StickY)
}
