package systems

import (
	"github.com/pthm-cable/swarm/config"
	"github.com/pthm-cable/swarm/store"
	"github.com/pthm-cable/swarm/workers"
)

// NumChannels is the number of signal channels.
const NumChannels = config.NumChannels

// Channel identifies one layer of the signal field.
type Channel int

const (
	ChannelResource Channel = iota
	ChannelDanger
	ChannelTrail
	ChannelHoarding
	ChannelNovelty
	ChannelAlliance
)

// String returns the channel name.
func (c Channel) String() string {
	names := [NumChannels]string{"resource", "danger", "trail", "hoarding", "novelty", "alliance"}
	if c.Valid() {
		return names[c]
	}
	return "invalid"
}

// Valid reports whether c names a real channel.
func (c Channel) Valid() bool {
	return c >= 0 && c < NumChannels
}

// SignalField is a multi-channel 2D grid of non-negative intensities that
// agents deposit into and read gradients from. Each Tick diffuses and
// decays every channel.
type SignalField struct {
	w, h     int
	cellSize float32
	inv      float32

	decay     [NumChannels]float32
	diffusion [NumChannels]float32

	// Channel c occupies data[c*w*h : (c+1)*w*h], row-major.
	data *store.Column[float32]
	// Double buffer for Tick
	next *store.Column[float32]
}

// NewSignalField creates a w x h field whose nodes are cellSize world units
// apart. Diffusion coefficients above 0.25 make the update unstable.
func NewSignalField(w, h int, cellSize float32, decay, diffusion [NumChannels]float32) *SignalField {
	return &SignalField{
		w:         w,
		h:         h,
		cellSize:  cellSize,
		inv:       1 / cellSize,
		decay:     decay,
		diffusion: diffusion,
		data:      store.Allocate[float32](NumChannels * w * h),
		next:      store.Allocate[float32](NumChannels * w * h),
	}
}

// GridSize returns the field dimensions in nodes.
func (f *SignalField) GridSize() (int, int) { return f.w, f.h }

// CellSize returns the world distance between adjacent nodes.
func (f *SignalField) CellSize() float32 { return f.cellSize }

// Data returns the raw grid of channel ch, or nil for an invalid channel.
func (f *SignalField) Data(ch Channel) []float32 {
	if !ch.Valid() {
		return nil
	}
	n := f.w * f.h
	return f.data.Slice()[int(ch)*n : int(ch+1)*n]
}

// gridCoord maps a world coordinate to a fractional grid coordinate in
// [0, limit].
func (f *SignalField) gridCoord(v float32, limit int) float32 {
	return clampFloat(v*f.inv, 0, float32(limit))
}

// Deposit adds amount at (x, y), split bilinearly over the four enclosing
// nodes. Positions outside the grid are clamped to its edge. Invalid
// channels are ignored. Not safe for concurrent use.
func (f *SignalField) Deposit(x, y float32, ch Channel, amount float32) {
	grid := f.Data(ch)
	if grid == nil {
		return
	}
	gx := f.gridCoord(x, f.w-2)
	gy := f.gridCoord(y, f.h-2)
	x0, y0 := int(gx), int(gy)
	if x0 > f.w-2 {
		x0 = f.w - 2
	}
	if y0 > f.h-2 {
		y0 = f.h - 2
	}
	fx, fy := gx-float32(x0), gy-float32(y0)

	i := y0*f.w + x0
	grid[i] += amount * (1 - fx) * (1 - fy)
	grid[i+1] += amount * fx * (1 - fy)
	grid[i+f.w] += amount * (1 - fx) * fy
	grid[i+f.w+1] += amount * fx * fy
}

// Sample returns the value of the node nearest to (x, y). Invalid channels
// read as zero.
func (f *SignalField) Sample(x, y float32, ch Channel) float32 {
	grid := f.Data(ch)
	if grid == nil {
		return 0
	}
	gx := int(f.gridCoord(x, f.w-2) + 0.5)
	gy := int(f.gridCoord(y, f.h-2) + 0.5)
	return grid[gy*f.w+gx]
}

// Gradient returns the central-difference gradient of channel ch at (x, y)
// with a step of one cell.
func (f *SignalField) Gradient(x, y float32, ch Channel) (float32, float32) {
	if !ch.Valid() {
		return 0, 0
	}
	d := f.cellSize
	gx := (f.Sample(x+d, y, ch) - f.Sample(x-d, y, ch)) / (2 * d)
	gy := (f.Sample(x, y+d, ch) - f.Sample(x, y-d, ch)) / (2 * d)
	return gx, gy
}

// Tick applies one diffusion and decay step to every channel:
// interior nodes take new = (old + D*laplacian(old)) * (1 - decay), where
// the laplacian uses the 4-neighbourhood. Border nodes only decay.
func (f *SignalField) Tick(r workers.Runner) {
	w, h := f.w, f.h
	src := f.data.Slice()
	dst := f.next.Slice()

	r.Run(NumChannels*h, func(lo, hi, _ int) {
		for row := lo; row < hi; row++ {
			ch, y := row/h, row%h
			keep := 1 - f.decay[ch]
			d := f.diffusion[ch]
			base := ch*w*h + y*w

			// Borders skip diffusion (no flux) but still decay, so decay 1
			// empties the whole channel.
			if y == 0 || y == h-1 || d == 0 {
				for x := 0; x < w; x++ {
					dst[base+x] = src[base+x] * keep
				}
				continue
			}

			dst[base] = src[base] * keep
			for x := 1; x < w-1; x++ {
				i := base + x
				c := src[i]
				lap := src[i-w] + src[i+w] + src[i-1] + src[i+1] - 4*c
				dst[i] = (c + d*lap) * keep
			}
			dst[base+w-1] = src[base+w-1] * keep
		}
	})

	f.data, f.next = f.next, f.data
}

// Total returns the sum of channel ch.
func (f *SignalField) Total(ch Channel) float64 {
	var sum float64
	for _, v := range f.Data(ch) {
		sum += float64(v)
	}
	return sum
}

// Max returns the largest value in channel ch.
func (f *SignalField) Max(ch Channel) float32 {
	var m float32
	for _, v := range f.Data(ch) {
		if v > m {
			m = v
		}
	}
	return m
}

// Bytes returns the mapped size of the field and its buffer.
func (f *SignalField) Bytes() int64 {
	return f.data.Bytes() + f.next.Bytes()
}

// Close releases the field memory.
func (f *SignalField) Close() {
	f.data.Free()
	f.next.Free()
}
