package tray

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"runtime"
)

const iconSize = 32

// iconPNG draws an open book: two pages split by a spine.
func iconPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, iconSize, iconSize))
	page := color.RGBA{R: 0xf5, G: 0xf0, B: 0xe1, A: 0xff}
	edge := color.RGBA{R: 0x1f, G: 0x5f, B: 0xaa, A: 0xff}
	text := color.RGBA{R: 0x88, G: 0x88, B: 0x88, A: 0xff}
	for y := 6; y < 27; y++ {
		for x := 3; x < 29; x++ {
			c := page
			switch {
			case x == 3 || x == 28 || y == 6 || y == 26 || x == 15 || x == 16:
				c = edge
			case y%4 == 0 && x > 5 && x < 26 && x != 14 && x != 17:
				c = text
			}
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// wrapICO embeds a PNG in a single-image ICO container.
func wrapICO(pngData []byte) []byte {
	var buf bytes.Buffer
	// ICONDIR
	_ = binary.Write(&buf, binary.LittleEndian, [3]uint16{0, 1, 1})
	// ICONDIRENTRY: width, height, colors, reserved, planes, bpp, size, offset
	buf.Write([]byte{iconSize, iconSize, 0, 0})
	_ = binary.Write(&buf, binary.LittleEndian, [2]uint16{1, 32})
	_ = binary.Write(&buf, binary.LittleEndian, [2]uint32{uint32(len(pngData)), 6 + 16})
	buf.Write(pngData)
	return buf.Bytes()
}

// Icon returns the tray icon in the format the platform tray expects.
func Icon() []byte {
	if runtime.GOOS == "windows" {
		return wrapICO(iconPNG())
	}
	return iconPNG()
}
