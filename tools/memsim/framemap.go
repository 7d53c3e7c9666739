//go:build !386

package main

import (
	"fmt"
	"image/color"
	"io"

	"github.com/fogleman/gg"
	"github.com/pkg/errors"

	"pagingos/kernel/mm"
	"pagingos/kernel/mm/pmm"
)

const (
	// maxMapRows caps the number of text rows printed for each pool.
	maxMapRows = 16

	// pngFramesPerRow and pngCellSize define the layout of the PNG map.
	pngFramesPerRow = 128
	pngCellSize     = 4
	pngLabelHeight  = 18
	pngMargin       = 8
)

var (
	statusGlyphs = [...]byte{
		pmm.StatusFree:         '.',
		pmm.StatusHead:         '#',
		pmm.StatusReserved:     'x',
		pmm.StatusContinuation: '#',
	}

	statusColors = [...]color.RGBA{
		pmm.StatusFree:         {R: 0xd8, G: 0xf0, B: 0xd8, A: 0xff},
		pmm.StatusHead:         {R: 0x1f, G: 0x3a, B: 0x93, A: 0xff},
		pmm.StatusReserved:     {R: 0x80, G: 0x80, B: 0x80, A: 0xff},
		pmm.StatusContinuation: {R: 0x4a, G: 0x74, B: 0xd9, A: 0xff},
	}
)

// dominantStatus returns the most common status among count frames starting
// at first. Ties favor allocated frames over reserved and free ones.
func dominantStatus(pool *pmm.FramePool, first mm.Frame, count uint32) pmm.FrameStatus {
	var hist [4]uint32
	for frame := first; frame < first+mm.Frame(count); frame++ {
		status, err := pool.Status(frame)
		if err != nil {
			break
		}
		hist[status]++
	}

	hist[pmm.StatusHead] += hist[pmm.StatusContinuation]
	best := pmm.StatusHead
	for _, status := range []pmm.FrameStatus{pmm.StatusReserved, pmm.StatusFree} {
		if hist[status] > hist[best] {
			best = status
		}
	}
	return best
}

// writeFrameMap prints one line of glyphs per row of frames for each pool.
// Every glyph summarizes a group of frames so that a pool never needs more
// than maxMapRows rows of width glyphs.
func writeFrameMap(w io.Writer, pools []*pmm.FramePool, width int) error {
	if width < 16 {
		width = 16
	}

	for _, pool := range pools {
		var (
			frameCount    = pool.FrameCount()
			cells         = uint32(width * maxMapRows)
			framesPerCell = (frameCount + cells - 1) / cells
		)

		_, err := fmt.Fprintf(w, "pool %d: frames 0x%x-0x%x, %d/%d free, %d frame(s) per glyph\n",
			pool.ID(), uintptr(pool.BaseFrame()), uintptr(pool.BaseFrame())+uintptr(frameCount)-1,
			pool.FreeFrames(), frameCount, framesPerCell,
		)
		if err != nil {
			return errors.Wrap(err, "writing frame map")
		}

		row := make([]byte, 0, width+1)
		for offset := uint32(0); offset < frameCount; offset += framesPerCell {
			row = append(row, statusGlyphs[dominantStatus(pool, pool.BaseFrame()+mm.Frame(offset), framesPerCell)])
			if len(row) == width || offset+framesPerCell >= frameCount {
				row = append(row, '\n')
				if _, err = w.Write(row); err != nil {
					return errors.Wrap(err, "writing frame map")
				}
				row = row[:0]
			}
		}
	}

	return nil
}

// renderFrameMap draws the status of every frame of every pool as a grid of
// colored cells and stores it as a PNG file.
func renderFrameMap(path string, pools []*pmm.FramePool) error {
	height := pngMargin
	for _, pool := range pools {
		rows := (int(pool.FrameCount()) + pngFramesPerRow - 1) / pngFramesPerRow
		height += pngLabelHeight + rows*pngCellSize + pngMargin
	}

	dc := gg.NewContext(2*pngMargin+pngFramesPerRow*pngCellSize, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	y := float64(pngMargin)
	for _, pool := range pools {
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(
			fmt.Sprintf("pool %d: frames 0x%x-0x%x (%d free)", pool.ID(), uintptr(pool.BaseFrame()),
				uintptr(pool.BaseFrame())+uintptr(pool.FrameCount())-1, pool.FreeFrames()),
			pngMargin, y+pngLabelHeight/2, 0, 0.5,
		)
		y += pngLabelHeight

		for offset := uint32(0); offset < pool.FrameCount(); offset++ {
			status, _ := pool.Status(pool.BaseFrame() + mm.Frame(offset))
			dc.SetColor(statusColors[status])
			dc.DrawRectangle(
				float64(pngMargin+int(offset)%pngFramesPerRow*pngCellSize),
				y+float64(int(offset)/pngFramesPerRow*pngCellSize),
				pngCellSize, pngCellSize,
			)
			dc.Fill()
		}

		rows := (int(pool.FrameCount()) + pngFramesPerRow - 1) / pngFramesPerRow
		y += float64(rows*pngCellSize + pngMargin)
	}

	return errors.Wrapf(dc.SavePNG(path), "saving frame map to %q", path)
}
