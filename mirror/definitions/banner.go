package definitions

// BannerSize is the number of header bytes the helper writes before the first frame.
const BannerSize = 24

// Quirk flags reported in the banner.
const (
	QuirkDumb          uint8 = 1
	QuirkAlwaysUpright uint8 = 2
	QuirkTear          uint8 = 4
)

// Banner is the fixed header the helper sends once per connection.
type Banner struct {
	Version       uint8    `json:"version"`
	Length        uint8    `json:"length"`
	PID           uint32   `json:"pid"`
	RealWidth     uint32   `json:"real_width"`
	RealHeight    uint32   `json:"real_height"`
	VirtualWidth  uint32   `json:"virtual_width"`
	VirtualHeight uint32   `json:"virtual_height"`
	Orientation   Rotation `json:"orientation"`
	Quirks        uint8    `json:"quirks"`
}

func (b *Banner) HasQuirk(q uint8) bool {
	return b.Quirks&q != 0
}
