package host

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
)

// Frame sizes accepted by the renderers.
const (
	DefaultFrameWidth  = 1280
	DefaultFrameHeight = 720
	MaxFrameEdge       = 4096
)

// Screenshot renders the viewport. The image is a sky gradient with one
// block per static mesh; showUI draws the toolbar strip.
func (e *Editor) Screenshot(width, height int, showUI bool) ([]byte, error) {
	width, height, err := frameSize(width, height)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		shade := 90 + 110*y/height
		sky := color.RGBA{R: uint8(shade / 2), G: uint8(shade * 3 / 4), B: uint8(shade), A: 255}
		draw.Draw(img, image.Rect(0, y, width, y+1), &image.Uniform{C: sky}, image.Point{}, draw.Src)
	}

	meshes := e.QueryAssets(AssetQuery{ClassFilter: "StaticMesh"})
	ground := height * 2 / 3
	draw.Draw(img, image.Rect(0, ground, width, height), &image.Uniform{C: color.RGBA{R: 70, G: 90, B: 60, A: 255}}, image.Point{}, draw.Src)
	if n := len(meshes); n > 0 {
		slot := width / (n + 1)
		for i := range meshes {
			size := slot / 2
			x := slot*(i+1) - size/2
			draw.Draw(img, image.Rect(x, ground-size, x+size, ground), &image.Uniform{C: color.RGBA{R: 150, G: 140, B: 130, A: 255}}, image.Point{}, draw.Src)
		}
	}
	if showUI {
		strip := height / 20
		if strip < 1 {
			strip = 1
		}
		draw.Draw(img, image.Rect(0, 0, width, strip), &image.Uniform{C: color.RGBA{R: 30, G: 30, B: 30, A: 255}}, image.Point{}, draw.Src)
	}
	return encodePNG(img)
}

// RenderWidget renders a widget's layout: each control is an inset box
// inside its parent, children stacked vertically.
func (e *Editor) RenderWidget(p string, width, height int) ([]byte, error) {
	width, height, err := frameSize(width, height)
	if err != nil {
		return nil, err
	}
	w, err := e.Widget(p)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 24, G: 24, B: 28, A: 255}}, image.Point{}, draw.Src)
	drawNode(img, w.Root, img.Bounds(), 0)
	return encodePNG(img)
}

var nodePalette = []color.RGBA{
	{R: 60, G: 60, B: 70, A: 255},
	{R: 52, G: 101, B: 164, A: 255},
	{R: 78, G: 154, B: 6, A: 255},
	{R: 196, G: 160, B: 0, A: 255},
	{R: 204, G: 0, B: 0, A: 255},
}

func drawNode(img *image.RGBA, n *WidgetNode, r image.Rectangle, depth int) {
	inset := r.Inset(4)
	if inset.Empty() {
		return
	}
	draw.Draw(img, inset, &image.Uniform{C: nodePalette[depth%len(nodePalette)]}, image.Point{}, draw.Src)
	if len(n.Children) == 0 {
		return
	}
	row := inset.Dy() / len(n.Children)
	for i, c := range n.Children {
		cell := image.Rect(inset.Min.X, inset.Min.Y+i*row, inset.Max.X, inset.Min.Y+(i+1)*row)
		drawNode(img, c, cell, depth+1)
	}
}

func frameSize(width, height int) (int, int, error) {
	if width == 0 && height == 0 {
		return DefaultFrameWidth, DefaultFrameHeight, nil
	}
	if width <= 0 || height <= 0 || width > MaxFrameEdge || height > MaxFrameEdge {
		return 0, 0, invalid("resolution %dx%d out of range (1..%d)", width, height, MaxFrameEdge)
	}
	return width, height, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%s - encode png: %w", logPrefix, err)
	}
	return buf.Bytes(), nil
}
